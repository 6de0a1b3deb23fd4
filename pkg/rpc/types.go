package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/fortiblox/X1-Chrono/internal/types"
	"github.com/fortiblox/X1-Chrono/pkg/vm/loader"
)

// JSON-RPC 2.0 constants.
const (
	JSONRPCVersion = "2.0"
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Encoding types for trace data.
type Encoding string

const (
	EncodingJSON       Encoding = "json"
	EncodingBase64     Encoding = "base64"
	EncodingBase64Zstd Encoding = "base64+zstd"
)

// ImageParam describes a machine either as loader source text or as
// explicit registers and program.
type ImageParam struct {
	Source    string     `json:"source,omitempty"`
	Registers *[3]uint64 `json:"registers,omitempty"`
	Program   string     `json:"program,omitempty"`
}

// Image converts the parameter to a loader image.
func (p ImageParam) Image() (*loader.Image, error) {
	if p.Source != "" {
		return loader.ParseString(p.Source)
	}
	if p.Program == "" {
		return nil, fmt.Errorf("one of source or program is required")
	}

	prog, err := loader.ParseProgram(p.Program)
	if err != nil {
		return nil, err
	}
	img := &loader.Image{Program: prog}
	if p.Registers != nil {
		img.Registers = types.Registers(*p.Registers)
	}
	return img, nil
}

// RunConfig configures runProgram requests.
type RunConfig struct {
	Verify   bool     `json:"verify,omitempty"`
	Target   string   `json:"target,omitempty"`
	Trace    bool     `json:"trace,omitempty"`
	Encoding Encoding `json:"encoding,omitempty"`
}

// RunResult is returned by runProgram.
type RunResult struct {
	Fingerprint string      `json:"fingerprint"`
	Output      string      `json:"output"`
	Registers   [3]uint64   `json:"registers"`
	Steps       uint64      `json:"steps"`
	Diverged    bool        `json:"diverged,omitempty"`
	Matches     *bool       `json:"matches,omitempty"`
	Cached      bool        `json:"cached"`
	Trace       interface{} `json:"trace,omitempty"`
	Truncated   bool        `json:"traceTruncated,omitempty"`
}

// TraceStep is the JSON form of one traced step.
type TraceStep struct {
	IP        int       `json:"ip"`
	Op        string    `json:"op"`
	Operand   uint8     `json:"operand"`
	Registers [3]uint64 `json:"registers"`
}

// SolveConfig configures solveProgram requests.
type SolveConfig struct {
	Target string `json:"target,omitempty"`
}

// PatternInfo describes the analysed loop.
type PatternInfo struct {
	Lead    int    `json:"lead"`
	Chunk   bool   `json:"chunk"`
	Mix     uint8  `json:"mix"`
	Shifted bool   `json:"shifted"`
	Shift   uint8  `json:"shift"`
	Formula string `json:"formula"`
}

// SolveResult is returned by solveProgram.
type SolveResult struct {
	Fingerprint string      `json:"fingerprint"`
	Seed        uint64      `json:"seed"`
	Pattern     PatternInfo `json:"pattern"`
	Nodes       uint64      `json:"nodes"`
	Source      string      `json:"source"`
}

// SeedInfo is returned by getSeed.
type SeedInfo struct {
	Fingerprint string `json:"fingerprint"`
	Program     string `json:"program"`
	Target      string `json:"target"`
	Found       bool   `json:"found"`
	Seed        uint64 `json:"seed"`
	Nodes       uint64 `json:"nodes"`
	SolvedAt    int64  `json:"solvedAt"`
}

// InstructionInfo is one disassembled instruction.
type InstructionInfo struct {
	Addr    int    `json:"addr"`
	Op      string `json:"op"`
	Operand uint8  `json:"operand"`
	Text    string `json:"text"`
}

// VersionInfo is returned by getVersion.
type VersionInfo struct {
	ChronoCore string `json:"chrono-core"`
	FeatureSet uint32 `json:"feature-set"`
}
