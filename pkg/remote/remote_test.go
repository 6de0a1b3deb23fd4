package remote

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/fortiblox/X1-Chrono/pkg/engine"
	"github.com/fortiblox/X1-Chrono/pkg/solver"
	"github.com/fortiblox/X1-Chrono/pkg/store"
	"github.com/fortiblox/X1-Chrono/pkg/vm"
)

const quine = "0,3,5,4,3,0"

// startServer serves a fresh engine over an in-memory listener and returns
// a connected client.
func startServer(t *testing.T, serverToken, clientToken string) *Client {
	t.Helper()

	ecfg := engine.DefaultConfig()
	ecfg.MaxSteps = 1000
	eng, err := engine.New(ecfg, store.NewMemoryStore())
	require.NoError(t, err)

	scfg := DefaultServerConfig()
	scfg.Token = serverToken
	srv, err := NewServer(scfg, eng)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	ccfg := DefaultClientConfig("bufnet")
	ccfg.Token = clientToken
	client, err := Dial(ccfg, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return client
}

func callCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRun(t *testing.T) {
	client := startServer(t, "", "")

	resp, err := client.Run(callCtx(t), &RunRequest{
		Registers: [3]uint64{729, 0, 0},
		Program:   "0,1,5,4,3,0",
	})
	require.NoError(t, err)
	assert.Equal(t, "4,6,3,5,6,3,5,2,1,0", resp.Output)
	assert.Equal(t, uint64(0), resp.Registers[0])
	assert.Empty(t, resp.Trace)
}

func TestRunVerifyAndTrace(t *testing.T) {
	client := startServer(t, "", "")

	resp, err := client.Run(callCtx(t), &RunRequest{
		Registers: [3]uint64{117440, 0, 0},
		Program:   quine,
		Verify:    true,
		Trace:     true,
	})
	require.NoError(t, err)
	assert.True(t, resp.Matches)
	assert.False(t, resp.Diverged)
	assert.Equal(t, quine, resp.Output)
	assert.Len(t, resp.Trace, int(resp.Steps))
}

func TestSolve(t *testing.T) {
	client := startServer(t, "", "")

	resp, err := client.Solve(callCtx(t), &SolveRequest{Program: quine})
	require.NoError(t, err)
	assert.Equal(t, uint64(117440), resp.Seed)
	assert.Equal(t, engine.SourceSearch, resp.Source)

	resp, err = client.Solve(callCtx(t), &SolveRequest{Program: quine, Target: "3,6,0"})
	require.NoError(t, err)
	assert.Equal(t, uint64(408), resp.Seed)
}

func TestDisassemble(t *testing.T) {
	client := startServer(t, "", "")

	resp, err := client.Disassemble(callCtx(t), &DisassembleRequest{Program: "0,1,5,4,3,0"})
	require.NoError(t, err)
	assert.Equal(t, []string{"adv 1", "out A", "jnz 0"}, resp.Instructions)
}

func TestErrors(t *testing.T) {
	client := startServer(t, "", "")
	ctx := callCtx(t)

	_, err := client.Solve(ctx, &SolveRequest{Program: "5,4,0,3,3,0"})
	assert.True(t, errors.Is(err, solver.ErrNoSolution), "got %v", err)

	_, err = client.Solve(ctx, &SolveRequest{Program: "0,1,5,4,3,0"})
	assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)

	_, err = client.Run(ctx, &RunRequest{Registers: [3]uint64{1, 0, 0}, Program: "3,0"})
	assert.True(t, errors.Is(err, ErrLimit), "got %v", err)

	_, err = client.Run(ctx, &RunRequest{Program: "0,1,5"})
	assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)

	_, err = client.Solve(ctx, &SolveRequest{Program: quine, Target: "9"})
	assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
}

func TestToken(t *testing.T) {
	t.Setenv("CHRONO_TEST_TOKEN", "s3cret")

	client := startServer(t, "${CHRONO_TEST_TOKEN}", "s3cret")
	_, err := client.Disassemble(callCtx(t), &DisassembleRequest{Program: "5,4"})
	require.NoError(t, err)

	denied := startServer(t, "s3cret", "wrong")
	_, err = denied.Disassemble(callCtx(t), &DisassembleRequest{Program: "5,4"})
	assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)

	anonymous := startServer(t, "s3cret", "")
	_, err = anonymous.Disassemble(callCtx(t), &DisassembleRequest{Program: "5,4"})
	assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{solver.ErrNoSolution, codes.NotFound},
		{solver.ErrUnsupportedProgram, codes.FailedPrecondition},
		{vm.ErrStepLimitExceeded, codes.ResourceExhausted},
		{&vm.Error{Err: vm.ErrReservedOperand}, codes.InvalidArgument},
		{solver.ErrTargetTooLong, codes.InvalidArgument},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		st, ok := status.FromError(toStatus(tt.err))
		require.True(t, ok)
		assert.Equal(t, tt.code, st.Code(), tt.err.Error())
	}
	assert.NoError(t, toStatus(nil))

	plain := errors.New("plain")
	assert.Equal(t, plain, fromStatus(plain))
}

func TestConfig(t *testing.T) {
	assert.NoError(t, DefaultServerConfig().Validate())

	cfg := DefaultServerConfig()
	cfg.Addr = ""
	assert.Error(t, cfg.Validate())

	_, err := NewServer(DefaultServerConfig(), nil)
	assert.ErrorIs(t, err, ErrNilEngine)

	_, err = Dial(ClientConfig{})
	assert.ErrorIs(t, err, ErrNoEndpoint)
}
