package remote

// RunRequest asks the server to execute a machine image.
type RunRequest struct {
	Registers [3]uint64 `json:"registers"`
	Program   string    `json:"program"`
	Verify    bool      `json:"verify,omitempty"`
	Target    string    `json:"target,omitempty"`
	Trace     bool      `json:"trace,omitempty"`
}

// RunResponse is the outcome of a run.
type RunResponse struct {
	Fingerprint    string    `json:"fingerprint"`
	Output         string    `json:"output"`
	Registers      [3]uint64 `json:"registers"`
	Steps          uint64    `json:"steps"`
	Diverged       bool      `json:"diverged,omitempty"`
	Matches        bool      `json:"matches,omitempty"`
	Cached         bool      `json:"cached,omitempty"`
	Trace          []string  `json:"trace,omitempty"`
	TraceTruncated bool      `json:"traceTruncated,omitempty"`
}

// SolveRequest asks for the smallest seed. An empty target means the
// program itself.
type SolveRequest struct {
	Program string `json:"program"`
	Target  string `json:"target,omitempty"`
}

// SolveResponse is the outcome of a seed search.
type SolveResponse struct {
	Fingerprint string `json:"fingerprint"`
	Seed        uint64 `json:"seed"`
	Pattern     string `json:"pattern"`
	Nodes       uint64 `json:"nodes"`
	Source      string `json:"source"`
}

// DisassembleRequest asks for a program listing.
type DisassembleRequest struct {
	Program string `json:"program"`
}

// DisassembleResponse lists one rendered instruction per entry.
type DisassembleResponse struct {
	Instructions []string `json:"instructions"`
}
