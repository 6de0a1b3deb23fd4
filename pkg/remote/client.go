package remote

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// Client errors.
var (
	ErrNoEndpoint = errors.New("grpc endpoint is required")
	ErrClosed     = errors.New("grpc client closed")
)

// ClientConfig holds the configuration for the machine client.
type ClientConfig struct {
	// Endpoint is the server address (e.g., "localhost:8990").
	Endpoint string

	// Token is sent in the x-token header. ${VAR} references are
	// expanded from the environment.
	Token string

	// UseTLS enables TLS for the connection.
	UseTLS bool

	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration

	// MaxMessageSize is the maximum message size in bytes.
	MaxMessageSize int
}

// DefaultClientConfig returns a client configuration for endpoint.
func DefaultClientConfig(endpoint string) ClientConfig {
	return ClientConfig{
		Endpoint:         endpoint,
		KeepaliveTime:    DefaultKeepaliveTime,
		KeepaliveTimeout: DefaultKeepaliveTimeout,
		MaxMessageSize:   DefaultMaxMessageSize,
	}
}

// Client calls a remote machine service.
type Client struct {
	config ClientConfig
	conn   *grpc.ClientConn
}

// Dial creates a client. The connection is established lazily on the
// first call. Extra options are appended after the configured ones.
func Dial(config ClientConfig, extra ...grpc.DialOption) (*Client, error) {
	if config.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.KeepaliveTime <= 0 {
		config.KeepaliveTime = DefaultKeepaliveTime
	}
	if config.KeepaliveTimeout <= 0 {
		config.KeepaliveTimeout = DefaultKeepaliveTimeout
	}

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                config.KeepaliveTime,
			Timeout:             config.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(jsonCodec{}),
			grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
			grpc.MaxCallSendMsgSize(config.MaxMessageSize),
		),
	}

	if config.UseTLS {
		opts = append(opts, grpc.WithTransportCredentials(
			credentials.NewTLS(&tls.Config{
				MinVersion: tls.VersionTLS12,
			}),
		))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	if config.Token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(&tokenAuth{
			token:      expandToken(config.Token),
			requireTLS: config.UseTLS,
		}))
	}
	opts = append(opts, extra...)

	//nolint:staticcheck // grpc.NewClient is not available in the pinned version
	conn, err := grpc.Dial(config.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gRPC: %w", err)
	}
	return &Client{config: config, conn: conn}, nil
}

// Run executes an image remotely.
func (c *Client) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	resp := new(RunResponse)
	if err := c.invoke(ctx, methodRun, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Solve searches for a seed remotely. Proven-unsolvable targets yield an
// error wrapping solver.ErrNoSolution.
func (c *Client) Solve(ctx context.Context, req *SolveRequest) (*SolveResponse, error) {
	resp := new(SolveResponse)
	if err := c.invoke(ctx, methodSolve, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Disassemble lists a program remotely.
func (c *Client) Disassemble(ctx context.Context, req *DisassembleRequest) (*DisassembleResponse, error) {
	resp := new(DisassembleResponse)
	if err := c.invoke(ctx, methodDisassemble, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	if c.conn == nil {
		return ErrClosed
	}
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return fromStatus(err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// tokenAuth implements grpc.PerRPCCredentials for token authentication.
type tokenAuth struct {
	token      string
	requireTLS bool
}

// GetRequestMetadata returns the authentication metadata.
func (t *tokenAuth) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{
		TokenHeader: t.token,
	}, nil
}

// RequireTransportSecurity returns whether TLS is required.
func (t *tokenAuth) RequireTransportSecurity() bool {
	return t.requireTLS
}

func expandToken(s string) string {
	return os.ExpandEnv(s)
}
