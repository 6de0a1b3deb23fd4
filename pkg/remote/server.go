// Package remote serves the machine over gRPC and provides a client for it.
//
// The service is chrono.v1.Machine with unary Run, Solve and Disassemble
// methods. Messages are JSON encoded, so no generated stubs are needed.
package remote

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/fortiblox/X1-Chrono/internal/types"
	"github.com/fortiblox/X1-Chrono/pkg/engine"
	"github.com/fortiblox/X1-Chrono/pkg/vm"
	"github.com/fortiblox/X1-Chrono/pkg/vm/loader"
)

var log = commonlog.GetLogger("chrono.remote")

// Full method names.
const (
	ServiceName       = "chrono.v1.Machine"
	methodRun         = "/" + ServiceName + "/Run"
	methodSolve       = "/" + ServiceName + "/Solve"
	methodDisassemble = "/" + ServiceName + "/Disassemble"
)

// TokenHeader is the metadata key carrying the access token.
const TokenHeader = "x-token"

// Default configuration values.
const (
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 5 * time.Second
	DefaultMaxMessageSize   = 16 * 1024 * 1024
)

// Server errors.
var (
	ErrServerRunning = errors.New("grpc server already running")
	ErrNilEngine     = errors.New("grpc server requires an engine")
)

// ServerConfig holds gRPC server configuration.
type ServerConfig struct {
	// Addr is the listen address (host:port).
	Addr string `toml:"addr"`

	// Token, when set, must be presented in the x-token header.
	// ${VAR} references are expanded from the environment.
	Token string `toml:"token"`

	KeepaliveTime    time.Duration `toml:"keepalive_time"`
	KeepaliveTimeout time.Duration `toml:"keepalive_timeout"`

	// MaxMessageSize bounds request and response sizes in bytes.
	MaxMessageSize int `toml:"max_message_size"`
}

// DefaultServerConfig returns a default gRPC server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:             "127.0.0.1:8990",
		KeepaliveTime:    DefaultKeepaliveTime,
		KeepaliveTimeout: DefaultKeepaliveTimeout,
		MaxMessageSize:   DefaultMaxMessageSize,
	}
}

// Validate checks the configuration.
func (c ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("grpc: addr is required")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("grpc: max_message_size must be positive")
	}
	if c.KeepaliveTime <= 0 || c.KeepaliveTimeout <= 0 {
		return fmt.Errorf("grpc: keepalive durations must be positive")
	}
	return nil
}

// MachineServer is the service implemented by the server.
type MachineServer interface {
	Run(context.Context, *RunRequest) (*RunResponse, error)
	Solve(context.Context, *SolveRequest) (*SolveResponse, error)
	Disassemble(context.Context, *DisassembleRequest) (*DisassembleResponse, error)
}

var machineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MachineServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Run",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(RunRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				return unary(srv, ctx, in, methodRun, interceptor, func(ctx context.Context, s MachineServer, req interface{}) (interface{}, error) {
					return s.Run(ctx, req.(*RunRequest))
				})
			},
		},
		{
			MethodName: "Solve",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(SolveRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				return unary(srv, ctx, in, methodSolve, interceptor, func(ctx context.Context, s MachineServer, req interface{}) (interface{}, error) {
					return s.Solve(ctx, req.(*SolveRequest))
				})
			},
		},
		{
			MethodName: "Disassemble",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(DisassembleRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				return unary(srv, ctx, in, methodDisassemble, interceptor, func(ctx context.Context, s MachineServer, req interface{}) (interface{}, error) {
					return s.Disassemble(ctx, req.(*DisassembleRequest))
				})
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chrono/v1/machine.proto",
}

func unary(srv interface{}, ctx context.Context, in interface{}, method string, interceptor grpc.UnaryServerInterceptor,
	call func(context.Context, MachineServer, interface{}) (interface{}, error)) (interface{}, error) {
	s := srv.(MachineServer)
	if interceptor == nil {
		return call(ctx, s, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return call(ctx, s, req)
	})
}

// Server serves the machine service backed by an engine.
type Server struct {
	config ServerConfig
	engine *engine.Engine
	token  string
	grpc   *grpc.Server

	mu      sync.Mutex
	running bool
}

// NewServer creates a gRPC server backed by eng.
func NewServer(config ServerConfig, eng *engine.Engine) (*Server, error) {
	if eng == nil {
		return nil, ErrNilEngine
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config: config,
		engine: eng,
		token:  expandToken(config.Token),
	}
	s.grpc = grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.MaxRecvMsgSize(config.MaxMessageSize),
		grpc.MaxSendMsgSize(config.MaxMessageSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    config.KeepaliveTime,
			Timeout: config.KeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             config.KeepaliveTime / 2,
			PermitWithoutStream: true,
		}),
		grpc.UnaryInterceptor(s.intercept),
	)
	s.grpc.RegisterService(&machineServiceDesc, &service{engine: eng})
	return s, nil
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done or Stop is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		ln.Close()
		return ErrServerRunning
	}
	s.running = true
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.grpc.GracefulStop()
		case <-stop:
		}
	}()

	log.Infof("gRPC server listening on %s", ln.Addr())
	if err := s.grpc.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop stops the server, waiting for in-flight calls.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

// intercept enforces the access token and logs each call.
func (s *Server) intercept(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if s.token != "" {
		md, _ := metadata.FromIncomingContext(ctx)
		vals := md.Get(TokenHeader)
		if len(vals) == 0 || subtle.ConstantTimeCompare([]byte(vals[0]), []byte(s.token)) != 1 {
			log.Warningf("%s: rejected call without a valid token", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "missing or invalid token")
		}
	}

	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		log.Debugf("%s failed in %s: %s", info.FullMethod, time.Since(start), err)
	} else {
		log.Debugf("%s ok in %s", info.FullMethod, time.Since(start))
	}
	return resp, err
}

// service adapts the engine to MachineServer.
type service struct {
	engine *engine.Engine
}

func parseTarget(s string) (types.Digits, error) {
	if s == "" {
		return nil, nil
	}
	target, err := types.ParseDigits(s)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "target: %v", err)
	}
	return target, nil
}

func (svc *service) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	prog, err := loader.ParseProgram(req.Program)
	if err != nil {
		return nil, toStatus(err)
	}
	target, err := parseTarget(req.Target)
	if err != nil {
		return nil, err
	}

	img := &loader.Image{Registers: types.Registers(req.Registers), Program: prog}
	report, err := svc.engine.Run(ctx, img, engine.RunOptions{
		Verify: req.Verify,
		Target: target,
		Trace:  req.Trace,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &RunResponse{
		Fingerprint:    report.Fingerprint.String(),
		Output:         report.Output.String(),
		Registers:      [3]uint64(report.Registers),
		Steps:          report.Steps,
		Diverged:       report.Diverged,
		Matches:        report.Matches,
		Cached:         report.Cached,
		TraceTruncated: report.TraceTruncated,
	}
	for _, step := range report.Trace {
		resp.Trace = append(resp.Trace, step.String())
	}
	return resp, nil
}

func (svc *service) Solve(ctx context.Context, req *SolveRequest) (*SolveResponse, error) {
	prog, err := loader.ParseProgram(req.Program)
	if err != nil {
		return nil, toStatus(err)
	}
	target, err := parseTarget(req.Target)
	if err != nil {
		return nil, err
	}

	report, err := svc.engine.Solve(ctx, prog, target)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SolveResponse{
		Fingerprint: report.Fingerprint.String(),
		Seed:        report.Seed,
		Pattern:     report.Pattern.String(),
		Nodes:       report.Nodes,
		Source:      report.Source,
	}, nil
}

func (svc *service) Disassemble(ctx context.Context, req *DisassembleRequest) (*DisassembleResponse, error) {
	prog, err := loader.ParseProgram(req.Program)
	if err != nil {
		return nil, toStatus(err)
	}
	instrs, err := vm.Disassemble(prog)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &DisassembleResponse{Instructions: make([]string, len(instrs))}
	for i, ins := range instrs {
		resp.Instructions[i] = ins.String()
	}
	return resp, nil
}
