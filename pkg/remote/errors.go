package remote

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fortiblox/X1-Chrono/internal/types"
	"github.com/fortiblox/X1-Chrono/pkg/solver"
	"github.com/fortiblox/X1-Chrono/pkg/vm"
	"github.com/fortiblox/X1-Chrono/pkg/vm/loader"
)

// Client-side errors decoded from status codes.
var (
	ErrMalformed    = errors.New("malformed request")
	ErrUnsupported  = errors.New("unsupported program")
	ErrLimit        = errors.New("execution limit exceeded")
	ErrUnauthorized = errors.New("unauthorized")
)

// toStatus maps an engine error to a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var vmErr *vm.Error
	var lineErr *loader.LineError
	code := codes.Internal
	switch {
	case errors.Is(err, solver.ErrNoSolution):
		code = codes.NotFound
	case errors.Is(err, solver.ErrUnsupportedProgram):
		code = codes.FailedPrecondition
	case errors.Is(err, vm.ErrStepLimitExceeded):
		code = codes.ResourceExhausted
	case errors.As(err, &vmErr), errors.As(err, &lineErr),
		errors.Is(err, loader.ErrSyntax), errors.Is(err, loader.ErrOddProgram),
		errors.Is(err, loader.ErrValueOutOfRange), errors.Is(err, loader.ErrProgramTooLong),
		errors.Is(err, solver.ErrTargetTooLong), errors.Is(err, solver.ErrEmptyTarget),
		errors.Is(err, types.ErrInvalidDigit), errors.Is(err, types.ErrEmptyList):
		code = codes.InvalidArgument
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	return status.Error(code, err.Error())
}

// fromStatus maps a status error back to a sentinel the caller can test
// with errors.Is.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var base error
	switch st.Code() {
	case codes.NotFound:
		base = solver.ErrNoSolution
	case codes.FailedPrecondition:
		base = ErrUnsupported
	case codes.ResourceExhausted:
		base = ErrLimit
	case codes.InvalidArgument:
		base = ErrMalformed
	case codes.Unauthenticated:
		base = ErrUnauthorized
	case codes.DeadlineExceeded:
		base = context.DeadlineExceeded
	case codes.Canceled:
		base = context.Canceled
	default:
		return err
	}
	return fmt.Errorf("%w: %s", base, st.Message())
}
