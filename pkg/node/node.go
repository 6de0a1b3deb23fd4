// Package node ties the chrono components together into a long-running
// service.
//
// The Node owns:
// - The result store (memory, bolt or badger)
// - The engine that runs and solves programs
// - The JSON-RPC and gRPC servers exposing the engine
//
// The node manages the lifecycle of these components and reports status.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/fortiblox/X1-Chrono/pkg/engine"
	"github.com/fortiblox/X1-Chrono/pkg/remote"
	"github.com/fortiblox/X1-Chrono/pkg/rpc"
	"github.com/fortiblox/X1-Chrono/pkg/store"
)

var log = commonlog.GetLogger("chrono.node")

// Node errors.
var (
	ErrAlreadyRunning = errors.New("node is already running")
	ErrNotRunning     = errors.New("node is not running")
	ErrInitFailed     = errors.New("node initialization failed")
)

// Node is a chrono service instance.
type Node struct {
	config  Config
	version string

	store      store.Store
	engine     *engine.Engine
	rpcServer  *rpc.Server
	grpcServer *remote.Server

	running   atomic.Bool
	startTime time.Time
	cancel    context.CancelFunc
	group     *errgroup.Group

	mu       sync.RWMutex
	rpcAddr  string
	grpcAddr string

	lastError   error
	lastErrorMu sync.RWMutex
}

// New opens the store and builds the engine and servers. Nothing listens
// until Start is called.
func New(config Config, version string) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sc := config.storeConfig()
	if sc.Backend != store.BackendMemory && !sc.InMemory && config.DataDir != "" {
		if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data dir: %v", ErrInitFailed, err)
		}
	}
	st, err := store.Open(sc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	eng, err := engine.New(config.Engine, st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	n := &Node{
		config:  config,
		version: version,
		store:   st,
		engine:  eng,
	}
	if config.RPC.Enabled {
		n.rpcServer = rpc.New(config.RPC.Config, eng, version)
	}
	if config.GRPC.Enabled {
		n.grpcServer, err = remote.NewServer(config.GRPC.ServerConfig, eng)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("%w: %v", ErrInitFailed, err)
		}
	}

	log.Infof("node initialized (store %s, rpc %t, grpc %t)", sc.Backend, config.RPC.Enabled, config.GRPC.Enabled)
	return n, nil
}

// Engine returns the node's engine.
func (n *Node) Engine() *engine.Engine {
	return n.engine
}

// Start binds the enabled servers and serves them in the background until
// ctx is done, a server fails, or Stop is called.
func (n *Node) Start(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var rpcLn, grpcLn net.Listener
	var err error
	if n.rpcServer != nil {
		if rpcLn, err = net.Listen("tcp", n.config.RPC.Addr); err != nil {
			n.running.Store(false)
			return fmt.Errorf("%w: rpc listen: %v", ErrInitFailed, err)
		}
	}
	if n.grpcServer != nil {
		if grpcLn, err = net.Listen("tcp", n.config.GRPC.Addr); err != nil {
			if rpcLn != nil {
				rpcLn.Close()
			}
			n.running.Store(false)
			return fmt.Errorf("%w: grpc listen: %v", ErrInitFailed, err)
		}
	}

	ctx, n.cancel = context.WithCancel(ctx)
	n.startTime = time.Now()
	g, gctx := errgroup.WithContext(ctx)
	n.group = g

	n.mu.Lock()
	if rpcLn != nil {
		n.rpcAddr = rpcLn.Addr().String()
		g.Go(func() error {
			if err := n.rpcServer.Serve(gctx, rpcLn); err != nil {
				return n.fail(fmt.Errorf("rpc server: %w", err))
			}
			return nil
		})
	}
	if grpcLn != nil {
		n.grpcAddr = grpcLn.Addr().String()
		g.Go(func() error {
			if err := n.grpcServer.Serve(gctx, grpcLn); err != nil {
				return n.fail(fmt.Errorf("grpc server: %w", err))
			}
			return nil
		})
	}
	n.mu.Unlock()

	log.Infof("node started")
	return nil
}

// Wait blocks until every server has exited and returns the first failure.
func (n *Node) Wait() error {
	if n.group == nil {
		return ErrNotRunning
	}
	return n.group.Wait()
}

// Stop shuts down the servers and closes the store.
func (n *Node) Stop() error {
	if !n.running.Load() {
		return ErrNotRunning
	}

	if n.cancel != nil {
		n.cancel()
	}
	var serveErr error
	if n.group != nil {
		serveErr = n.group.Wait()
	}

	if err := n.store.Close(); err != nil {
		log.Warningf("close store: %s", err)
		if serveErr == nil {
			serveErr = err
		}
	}

	n.running.Store(false)
	log.Infof("node stopped after %s", time.Since(n.startTime).Round(time.Millisecond))
	return serveErr
}

func (n *Node) fail(err error) error {
	log.Errorf("%s", err)
	n.lastErrorMu.Lock()
	n.lastError = err
	n.lastErrorMu.Unlock()
	return err
}

// Status returns the current node status.
func (n *Node) Status() *Status {
	n.mu.RLock()
	rpcAddr, grpcAddr := n.rpcAddr, n.grpcAddr
	n.mu.RUnlock()

	n.lastErrorMu.RLock()
	lastErr := n.lastError
	n.lastErrorMu.RUnlock()

	st := &Status{
		Version:   n.version,
		IsRunning: n.running.Load(),
		RPCAddr:   rpcAddr,
		GRPCAddr:  grpcAddr,
		LastError: lastErr,
	}
	if st.IsRunning {
		st.Uptime = time.Since(n.startTime)
	}
	if stats, err := n.engine.Stats(); err == nil {
		st.Engine = stats
	}
	return st
}

// Status contains the current node status.
type Status struct {
	Version string

	// IsRunning indicates if the servers are running.
	IsRunning bool

	// Uptime is how long the node has been running.
	Uptime time.Duration

	// RPCAddr and GRPCAddr are the bound addresses of enabled servers.
	RPCAddr  string
	GRPCAddr string

	// Engine holds engine and store counters.
	Engine *engine.Stats

	// LastError is the most recent server failure.
	LastError error
}
