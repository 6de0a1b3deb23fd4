package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fortiblox/X1-Chrono/internal/types"
	"github.com/fortiblox/X1-Chrono/pkg/engine"
	"github.com/fortiblox/X1-Chrono/pkg/store"
	"github.com/fortiblox/X1-Chrono/pkg/vm"
	"github.com/fortiblox/X1-Chrono/pkg/vm/loader"
)

// FeatureSet identifies the method surface reported by getVersion.
const FeatureSet = 1

// parseArgs splits positional params. Absent params yield no arguments.
func parseArgs(params json.RawMessage) ([]json.RawMessage, *RPCError) {
	if len(params) == 0 || string(params) == "null" {
		return nil, nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, InvalidParamsError("invalid params")
	}
	return args, nil
}

// parseProgramArg reads a program given either as "2,4,1,5" or as [2,4,1,5].
func parseProgramArg(raw json.RawMessage) (types.Program, *RPCError) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		prog, err := loader.ParseProgram(text)
		if err != nil {
			return nil, machineError(err)
		}
		return prog, nil
	}

	var cells []uint8
	if err := json.Unmarshal(raw, &cells); err != nil {
		return nil, InvalidParamsError("invalid program")
	}
	prog := types.Program(cells)
	if err := prog.Validate(); err != nil {
		return nil, NewRPCError(MalformedProgram, err.Error())
	}
	if len(prog)%2 != 0 {
		return nil, NewRPCError(MalformedProgram, loader.ErrOddProgram.Error())
	}
	return prog, nil
}

func parseTarget(s string) (types.Digits, *RPCError) {
	if s == "" {
		return nil, nil
	}
	target, err := types.ParseDigits(s)
	if err != nil {
		return nil, InvalidParamsErrorf("invalid target: %v", err)
	}
	return target, nil
}

// Node Methods

// getHealth returns the node health status.
func (s *Server) getHealth(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	if !s.IsHealthy() {
		return nil, ErrNodeUnhealthy
	}
	return "ok", nil
}

// getVersion returns the node version.
func (s *Server) getVersion(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	return VersionInfo{
		ChronoCore: s.version,
		FeatureSet: FeatureSet,
	}, nil
}

// getStats returns engine and store counters.
func (s *Server) getStats(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	stats, err := s.engine.Stats()
	if err != nil {
		return nil, NewRPCError(StorageError, err.Error())
	}
	return stats, nil
}

// Machine Methods

// runProgram executes an image. Params: [image, config?]
func (s *Server) runProgram(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(args) < 1 {
		return nil, InvalidParamsError("missing image parameter")
	}

	var ip ImageParam
	if err := json.Unmarshal(args[0], &ip); err != nil {
		return nil, InvalidParamsError("invalid image")
	}
	var config RunConfig
	if len(args) > 1 {
		if err := json.Unmarshal(args[1], &config); err != nil {
			return nil, InvalidParamsError("invalid config")
		}
	}
	switch config.Encoding {
	case "", EncodingJSON, EncodingBase64, EncodingBase64Zstd:
	default:
		return nil, InvalidParamsErrorf("unsupported encoding %q", config.Encoding)
	}

	img, err := ip.Image()
	if err != nil {
		if ip.Source == "" && ip.Program == "" {
			return nil, InvalidParamsError(err.Error())
		}
		return nil, machineError(err)
	}
	target, rpcErr := parseTarget(config.Target)
	if rpcErr != nil {
		return nil, rpcErr
	}

	report, err := s.engine.Run(ctx, img, engine.RunOptions{
		Verify: config.Verify,
		Target: target,
		Trace:  config.Trace,
	})
	if err != nil {
		return nil, machineError(err)
	}

	result := RunResult{
		Fingerprint: report.Fingerprint.String(),
		Output:      report.Output.String(),
		Registers:   [3]uint64(report.Registers),
		Steps:       report.Steps,
		Diverged:    report.Diverged,
		Cached:      report.Cached,
		Truncated:   report.TraceTruncated,
	}
	if config.Verify {
		matches := report.Matches
		result.Matches = &matches
	}
	if config.Trace {
		trace, err := EncodeTrace(report.Trace, config.Encoding)
		if err != nil {
			return nil, InternalServerErrorf("encode trace: %v", err)
		}
		result.Trace = trace
	}
	return result, nil
}

// disassemble lists the instructions of a program. Params: [program]
func (s *Server) disassemble(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(args) < 1 {
		return nil, InvalidParamsError("missing program parameter")
	}
	prog, rpcErr := parseProgramArg(args[0])
	if rpcErr != nil {
		return nil, rpcErr
	}

	instrs, err := vm.Disassemble(prog)
	if err != nil {
		return nil, machineError(err)
	}
	out := make([]InstructionInfo, len(instrs))
	for i, ins := range instrs {
		out[i] = InstructionInfo{
			Addr:    ins.Addr,
			Op:      ins.Op.String(),
			Operand: ins.Operand,
			Text:    ins.String(),
		}
	}
	return out, nil
}

// Search Methods

// solveProgram finds the smallest seed. Params: [program, config?]
func (s *Server) solveProgram(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(args) < 1 {
		return nil, InvalidParamsError("missing program parameter")
	}
	prog, rpcErr := parseProgramArg(args[0])
	if rpcErr != nil {
		return nil, rpcErr
	}

	var config SolveConfig
	if len(args) > 1 {
		if err := json.Unmarshal(args[1], &config); err != nil {
			return nil, InvalidParamsError("invalid config")
		}
	}
	target, rpcErr := parseTarget(config.Target)
	if rpcErr != nil {
		return nil, rpcErr
	}

	report, err := s.engine.Solve(ctx, prog, target)
	if err != nil {
		return nil, machineError(err)
	}

	p := report.Pattern
	return SolveResult{
		Fingerprint: report.Fingerprint.String(),
		Seed:        report.Seed,
		Pattern: PatternInfo{
			Lead:    p.Lead,
			Chunk:   p.Chunk,
			Mix:     p.Mix,
			Shifted: p.Shifted,
			Shift:   p.Shift,
			Formula: p.String(),
		},
		Nodes:  report.Nodes,
		Source: report.Source,
	}, nil
}

// getSeed returns a recorded search outcome, or null. Params: [fingerprint]
func (s *Server) getSeed(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(args) < 1 {
		return nil, InvalidParamsError("missing fingerprint parameter")
	}

	var fpStr string
	if err := json.Unmarshal(args[0], &fpStr); err != nil {
		return nil, InvalidParamsError("invalid fingerprint")
	}
	fp, err := types.FingerprintFromBase58(fpStr)
	if err != nil {
		return nil, InvalidParamsError("invalid fingerprint format")
	}

	rec, err := s.engine.GetSeed(fp)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, NewRPCError(StorageError, err.Error())
	}

	return SeedInfo{
		Fingerprint: rec.Fingerprint.String(),
		Program:     rec.Program.String(),
		Target:      rec.Target.String(),
		Found:       rec.Found,
		Seed:        rec.Seed,
		Nodes:       rec.Nodes,
		SolvedAt:    rec.SolvedAt.Unix(),
	}, nil
}
