package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tliron/commonlog"
	"github.com/urfave/cli/v2"

	"github.com/fortiblox/X1-Chrono/internal/types"
	"github.com/fortiblox/X1-Chrono/pkg/engine"
	"github.com/fortiblox/X1-Chrono/pkg/node"
	"github.com/fortiblox/X1-Chrono/pkg/remote"
	"github.com/fortiblox/X1-Chrono/pkg/store"
	"github.com/fortiblox/X1-Chrono/pkg/vm"
	"github.com/fortiblox/X1-Chrono/pkg/vm/loader"
)

var log = commonlog.GetLogger("chrono.cli")

var errMissingFile = errors.New("missing FILE argument")

var (
	targetFlag = &cli.StringFlag{
		Name:  "target",
		Usage: "Comma-separated digits to reproduce (default: the program itself)",
	}
	maxStepsFlag = &cli.Uint64Flag{
		Name:  "max-steps",
		Usage: "Abort runs after `N` instructions",
		Value: vm.DefaultMaxSteps,
	}

	runCommand = &cli.Command{
		Name:      "run",
		Usage:     "Execute a machine image and print its output",
		ArgsUsage: "FILE",
		Action:    runAction,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verify", Usage: "Stop at the first digit that diverges from the target"},
			targetFlag,
			&cli.BoolFlag{Name: "trace", Usage: "Print every executed step before the output"},
			maxStepsFlag,
		},
	}

	solveCommand = &cli.Command{
		Name:      "solve",
		Usage:     "Find the smallest register A that makes the program print the target",
		ArgsUsage: "FILE",
		Action:    solveAction,
		Flags: []cli.Flag{
			targetFlag,
			maxStepsFlag,
			&cli.StringFlag{Name: "remote", Usage: "Solve on the gRPC server at `ADDR`"},
			&cli.StringFlag{Name: "token", Usage: "Access token for --remote", EnvVars: []string{"CHRONO_TOKEN"}},
			&cli.BoolFlag{Name: "tls", Usage: "Use TLS for --remote"},
			&cli.StringFlag{Name: "data-dir", Usage: "Persist seeds under `DIR`"},
			&cli.StringFlag{Name: "backend", Usage: "Store backend for --data-dir (bolt or badger)", Value: string(store.BackendBolt)},
		},
	}

	disasmCommand = &cli.Command{
		Name:      "disasm",
		Usage:     "Print the program as mnemonics",
		ArgsUsage: "FILE",
		Action:    disasmAction,
	}

	serveCommand = &cli.Command{
		Name:   "serve",
		Usage:  "Serve the engine over JSON-RPC and gRPC until interrupted",
		Action: serveAction,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Load node configuration from `FILE`"},
			&cli.StringFlag{Name: "rpc-addr", Usage: "Override the JSON-RPC listen address"},
			&cli.StringFlag{Name: "grpc-addr", Usage: "Override the gRPC listen address and enable it"},
		},
	}
)

func loadImage(c *cli.Context) (*loader.Image, error) {
	if c.NArg() < 1 {
		return nil, errMissingFile
	}
	return loader.LoadFile(c.Args().First())
}

func parseTarget(c *cli.Context) (types.Digits, error) {
	s := c.String(targetFlag.Name)
	if s == "" {
		return nil, nil
	}
	target, err := types.ParseDigits(s)
	if err != nil {
		return nil, fmt.Errorf("--target: %w", err)
	}
	return target, nil
}

func runAction(c *cli.Context) error {
	img, err := loadImage(c)
	if err != nil {
		return err
	}
	target, err := parseTarget(c)
	if err != nil {
		return err
	}

	w := c.App.Writer
	opts := vm.Options{MaxSteps: c.Uint64(maxStepsFlag.Name)}
	if c.Bool("trace") {
		opts.Tracer = func(s vm.Step) {
			fmt.Fprintln(w, s)
		}
	}
	in := vm.New(img.Program, opts)

	var res *vm.Result
	if c.Bool("verify") {
		if len(target) == 0 {
			target = img.Program.Digits()
		}
		res, err = in.Verify(img.Registers, target)
	} else {
		res, err = in.Run(img.Registers)
	}
	if res != nil {
		fmt.Fprintln(w, res.Output)
	}
	if err != nil {
		return err
	}

	log.Infof("run finished in %d steps, %s", res.Steps, res.Registers)
	if c.Bool("verify") && !res.Matches(target) {
		return cli.Exit("output does not reproduce the target", exitFailure)
	}
	return nil
}

func solveAction(c *cli.Context) error {
	img, err := loadImage(c)
	if err != nil {
		return err
	}
	target, err := parseTarget(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := c.String("remote"); addr != "" {
		return solveRemote(ctx, c, addr, img.Program, target)
	}

	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	ecfg := engine.DefaultConfig()
	ecfg.MaxSteps = c.Uint64(maxStepsFlag.Name)
	ecfg.PersistRuns = false
	eng, err := engine.New(ecfg, st)
	if err != nil {
		return err
	}

	start := time.Now()
	report, err := eng.Solve(ctx, img.Program, target)
	if err != nil {
		return err
	}
	log.Infof("seed %d from %s in %s (%d nodes, %s)", report.Seed, report.Source, time.Since(start), report.Nodes, report.Pattern)
	fmt.Fprintln(c.App.Writer, report.Seed)
	return nil
}

func solveRemote(ctx context.Context, c *cli.Context, addr string, program types.Program, target types.Digits) error {
	cfg := remote.DefaultClientConfig(addr)
	cfg.Token = c.String("token")
	cfg.UseTLS = c.Bool("tls")
	client, err := remote.Dial(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Solve(ctx, &remote.SolveRequest{
		Program: program.String(),
		Target:  target.String(),
	})
	if err != nil {
		return err
	}
	log.Infof("seed %d from %s (%s)", resp.Seed, addr, resp.Source)
	fmt.Fprintln(c.App.Writer, resp.Seed)
	return nil
}

func openStore(c *cli.Context) (store.Store, error) {
	dir := c.String("data-dir")
	if dir == "" {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	backend := store.Backend(c.String("backend"))
	name := "chrono.db"
	if backend == store.BackendBadger {
		name = "seeds"
	}
	cfg := store.DefaultConfig(filepath.Join(dir, name))
	cfg.Backend = backend
	return store.Open(cfg)
}

func disasmAction(c *cli.Context) error {
	img, err := loadImage(c)
	if err != nil {
		return err
	}
	instrs, err := vm.Disassemble(img.Program)
	for _, ins := range instrs {
		fmt.Fprintf(c.App.Writer, "%04d  %s\n", ins.Addr, ins)
	}
	return err
}

func serveAction(c *cli.Context) error {
	cfg := node.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = node.LoadConfig(path); err != nil {
			return err
		}
		if !c.IsSet(verbosityFlag.Name) && !c.IsSet(logFileFlag.Name) {
			var file *string
			if cfg.Log.File != "" {
				file = &cfg.Log.File
			}
			commonlog.Configure(cfg.Log.Verbosity, file)
		}
	}
	if addr := c.String("rpc-addr"); addr != "" {
		cfg.RPC.Enabled = true
		cfg.RPC.Addr = addr
	}
	if addr := c.String("grpc-addr"); addr != "" {
		cfg.GRPC.Enabled = true
		cfg.GRPC.Addr = addr
	}

	n, err := node.New(cfg, Version)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		return err
	}
	status := n.Status()
	fmt.Fprintf(c.App.Writer, "X1-Chrono %s serving (rpc %q, grpc %q)\n", Version, status.RPCAddr, status.GRPCAddr)

	serveErr := n.Wait()
	if err := n.Stop(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}
