// X1-Chrono: three-register machine runner and self-printing seed solver.
//
// This is the main entry point for the chrono command line. It runs machine
// images, disassembles programs, searches for the smallest seed that makes a
// program print a target, and serves the engine over JSON-RPC and gRPC.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/urfave/cli/v2"

	"github.com/fortiblox/X1-Chrono/pkg/solver"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Exit codes.
const (
	exitFailure    = 1
	exitNoSolution = 2
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:    "verbosity",
		Aliases: []string{"v"},
		Usage:   "Log verbosity (-1 silences, 0 warnings, 1 notices, 2 info, 3 debug)",
		Value:   0,
		EnvVars: []string{"CHRONO_VERBOSITY"},
	}
	logFileFlag = &cli.StringFlag{
		Name:    "log-file",
		Usage:   "Write logs to `FILE` instead of stderr",
		EnvVars: []string{"CHRONO_LOG_FILE"},
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "chrono",
		Usage:   "run, disassemble and solve three-register machine programs",
		Version: fmt.Sprintf("%s (%s)", Version, GitCommit),
		Flags:   []cli.Flag{verbosityFlag, logFileFlag},
		Before:  configureLogging,
		Commands: []*cli.Command{
			runCommand,
			solveCommand,
			disasmCommand,
			serveCommand,
		},
	}
}

// configureLogging applies the global logging flags.
func configureLogging(c *cli.Context) error {
	var path *string
	if f := c.String(logFileFlag.Name); f != "" {
		path = &f
	}
	commonlog.Configure(c.Int(verbosityFlag.Name), path)
	return nil
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "chrono: %v\n", err)
		if errors.Is(err, solver.ErrNoSolution) {
			os.Exit(exitNoSolution)
		}
		os.Exit(exitFailure)
	}
}
