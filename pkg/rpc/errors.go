package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/fortiblox/X1-Chrono/internal/types"
	"github.com/fortiblox/X1-Chrono/pkg/solver"
	"github.com/fortiblox/X1-Chrono/pkg/store"
	"github.com/fortiblox/X1-Chrono/pkg/vm"
	"github.com/fortiblox/X1-Chrono/pkg/vm/loader"
)

// JSON-RPC 2.0 standard error codes.
const (
	// ParseError indicates invalid JSON was received.
	ParseError = -32700

	// InvalidRequest indicates the JSON sent is not a valid Request object.
	InvalidRequest = -32600

	// MethodNotFound indicates the method does not exist.
	MethodNotFound = -32601

	// InvalidParams indicates invalid method parameters.
	InvalidParams = -32602

	// InternalError indicates an internal JSON-RPC error.
	InternalError = -32603
)

// Machine error codes.
const (
	// NoSolution indicates no seed reproduces the target.
	NoSolution = -32001

	// MalformedProgram indicates the program cannot be loaded or executed.
	MalformedProgram = -32002

	// UnsupportedProgram indicates the program is outside the solvable loop shape.
	UnsupportedProgram = -32003

	// ExecutionLimit indicates a run exceeded its step limit.
	ExecutionLimit = -32004

	// StorageError indicates the result store failed.
	StorageError = -32005

	// NodeUnhealthy indicates the node is unhealthy.
	NodeUnhealthy = -32006

	// RequestTimeout indicates the request deadline passed.
	RequestTimeout = -32007
)

// Common error messages.
var (
	ErrParseError     = NewRPCError(ParseError, "Parse error")
	ErrInvalidRequest = NewRPCError(InvalidRequest, "Invalid Request")
	ErrMethodNotFound = NewRPCError(MethodNotFound, "Method not found")
	ErrInvalidParams  = NewRPCError(InvalidParams, "Invalid params")
	ErrInternalError  = NewRPCError(InternalError, "Internal error")
	ErrNoSolution     = NewRPCError(NoSolution, "No seed reproduces the target")
	ErrNodeUnhealthy  = NewRPCError(NodeUnhealthy, "Node is unhealthy")
)

// NewRPCError creates a new RPC error.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

// NewRPCErrorWithData creates a new RPC error with additional data.
func NewRPCErrorWithData(code int, message string, data interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("RPC error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// InvalidParamsError creates an invalid params error with a custom message.
func InvalidParamsError(msg string) *RPCError {
	return NewRPCError(InvalidParams, msg)
}

// InvalidParamsErrorf creates an invalid params error with a formatted message.
func InvalidParamsErrorf(format string, args ...interface{}) *RPCError {
	return NewRPCError(InvalidParams, fmt.Sprintf(format, args...))
}

// InternalServerErrorf creates an internal server error with a formatted message.
func InternalServerErrorf(format string, args ...interface{}) *RPCError {
	return NewRPCError(InternalError, fmt.Sprintf(format, args...))
}

// machineError maps an engine, solver, vm or loader error to an RPC error.
func machineError(err error) *RPCError {
	var vmErr *vm.Error
	var lineErr *loader.LineError
	switch {
	case errors.Is(err, solver.ErrNoSolution):
		return ErrNoSolution
	case errors.Is(err, solver.ErrUnsupportedProgram):
		return NewRPCError(UnsupportedProgram, err.Error())
	case errors.Is(err, vm.ErrStepLimitExceeded):
		return NewRPCError(ExecutionLimit, err.Error())
	case errors.As(err, &vmErr):
		return NewRPCErrorWithData(MalformedProgram, err.Error(), map[string]int{"ip": vmErr.IP})
	case errors.As(err, &lineErr):
		return NewRPCErrorWithData(MalformedProgram, err.Error(), map[string]int{"line": lineErr.Line})
	case errors.Is(err, loader.ErrSyntax), errors.Is(err, loader.ErrOddProgram),
		errors.Is(err, loader.ErrValueOutOfRange), errors.Is(err, loader.ErrProgramTooLong),
		errors.Is(err, loader.ErrMissingRegister), errors.Is(err, loader.ErrMissingProgram):
		return NewRPCError(MalformedProgram, err.Error())
	case errors.Is(err, solver.ErrTargetTooLong), errors.Is(err, solver.ErrEmptyTarget),
		errors.Is(err, types.ErrInvalidDigit), errors.Is(err, types.ErrEmptyList):
		return InvalidParamsError(err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewRPCError(RequestTimeout, err.Error())
	case errors.Is(err, store.ErrClosed), errors.Is(err, store.ErrCorrupt):
		return NewRPCError(StorageError, err.Error())
	default:
		return InternalServerErrorf("%v", err)
	}
}
