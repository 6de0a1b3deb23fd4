package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Chrono/internal/types"
	"github.com/fortiblox/X1-Chrono/pkg/engine"
	"github.com/fortiblox/X1-Chrono/pkg/store"
)

const quine = "0,3,5,4,3,0"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	ecfg := engine.DefaultConfig()
	ecfg.MaxSteps = 1000
	eng, err := engine.New(ecfg, store.NewMemoryStore())
	require.NoError(t, err)

	config := DefaultConfig()
	config.Addr = "127.0.0.1:0"
	return New(config, eng, "chrono-test")
}

// Helper function to make an RPC request.
func makeRPCRequest(t *testing.T, server *Server, method string, params interface{}) *Response {
	t.Helper()

	var paramsRaw json.RawMessage
	if params != nil {
		var err error
		paramsRaw, err = json.Marshal(params)
		require.NoError(t, err)
	}

	body, err := json.Marshal(Request{
		JSONRPC: JSONRPCVersion,
		ID:      1,
		Method:  method,
		Params:  paramsRaw,
	})
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httpReq)

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return &resp
}

// decodeResult re-decodes a generic result into v.
func decodeResult(t *testing.T, resp *Response, v interface{}) {
	t.Helper()
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func requireCode(t *testing.T, resp *Response, code int) {
	t.Helper()
	require.NotNil(t, resp.Error, "expected error %d", code)
	assert.Equal(t, code, resp.Error.Code, resp.Error.Message)
}

func TestGetHealth(t *testing.T) {
	server := newTestServer(t)

	resp := makeRPCRequest(t, server, "getHealth", nil)
	require.Nil(t, resp.Error)
	assert.Equal(t, "ok", resp.Result)

	server.SetHealthy(false)
	resp = makeRPCRequest(t, server, "getHealth", nil)
	requireCode(t, resp, NodeUnhealthy)
}

func TestGetVersion(t *testing.T) {
	server := newTestServer(t)

	var v VersionInfo
	decodeResult(t, makeRPCRequest(t, server, "getVersion", nil), &v)
	assert.Equal(t, "chrono-test", v.ChronoCore)
	assert.Equal(t, uint32(FeatureSet), v.FeatureSet)
}

func TestRunProgram(t *testing.T) {
	server := newTestServer(t)
	img := ImageParam{Source: "Register A: 729\nRegister B: 0\nRegister C: 0\n\nProgram: 0,1,5,4,3,0\n"}

	var res RunResult
	decodeResult(t, makeRPCRequest(t, server, "runProgram", []interface{}{img}), &res)
	assert.Equal(t, "4,6,3,5,6,3,5,2,1,0", res.Output)
	assert.Equal(t, uint64(0), res.Registers[0])
	assert.False(t, res.Cached)
	assert.Nil(t, res.Matches)

	// The second identical run is served from the store.
	decodeResult(t, makeRPCRequest(t, server, "runProgram", []interface{}{img}), &res)
	assert.True(t, res.Cached)
	assert.Equal(t, "4,6,3,5,6,3,5,2,1,0", res.Output)
}

func TestRunProgramExplicitImage(t *testing.T) {
	server := newTestServer(t)
	img := ImageParam{Registers: &[3]uint64{0, 0, 9}, Program: "2,6"}

	var res RunResult
	decodeResult(t, makeRPCRequest(t, server, "runProgram", []interface{}{img}), &res)
	assert.Equal(t, "", res.Output)
	assert.Equal(t, uint64(1), res.Registers[1])
}

func TestRunProgramVerify(t *testing.T) {
	server := newTestServer(t)
	img := ImageParam{Registers: &[3]uint64{117440, 0, 0}, Program: quine}

	var res RunResult
	decodeResult(t, makeRPCRequest(t, server, "runProgram", []interface{}{img, RunConfig{Verify: true}}), &res)
	require.NotNil(t, res.Matches)
	assert.True(t, *res.Matches)
	assert.Equal(t, quine, res.Output)

	img.Registers = &[3]uint64{2024, 0, 0}
	decodeResult(t, makeRPCRequest(t, server, "runProgram", []interface{}{img, RunConfig{Verify: true}}), &res)
	require.NotNil(t, res.Matches)
	assert.False(t, *res.Matches)
	assert.True(t, res.Diverged)
	assert.Equal(t, "", res.Output)
}

func TestRunProgramTrace(t *testing.T) {
	server := newTestServer(t)
	img := ImageParam{Registers: &[3]uint64{729, 0, 0}, Program: "0,1,5,4,3,0"}

	resp := makeRPCRequest(t, server, "runProgram", []interface{}{img, RunConfig{Trace: true}})
	var res struct {
		Steps uint64   `json:"steps"`
		Trace []string `json:"trace"`
	}
	decodeResult(t, resp, &res)
	require.Len(t, res.Trace, 2)
	assert.Equal(t, string(EncodingBase64Zstd), res.Trace[1])

	lines, err := DecodeTrace(res.Trace[0], EncodingBase64Zstd)
	require.NoError(t, err)
	require.Len(t, lines, int(res.Steps))
	assert.True(t, strings.HasPrefix(lines[0], "0000  adv 1"), lines[0])

	var jres struct {
		Steps uint64      `json:"steps"`
		Trace []TraceStep `json:"trace"`
	}
	decodeResult(t, makeRPCRequest(t, server, "runProgram",
		[]interface{}{img, RunConfig{Trace: true, Encoding: EncodingJSON}}), &jres)
	require.Len(t, jres.Trace, int(jres.Steps))
	assert.Equal(t, "adv", jres.Trace[0].Op)
	assert.Equal(t, [3]uint64{729, 0, 0}, jres.Trace[0].Registers)
	assert.Equal(t, 2, jres.Trace[1].IP)
}

func TestRunProgramErrors(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name   string
		params []interface{}
		code   int
	}{
		{"missing image", []interface{}{}, InvalidParams},
		{"empty image", []interface{}{ImageParam{}}, InvalidParams},
		{"odd program", []interface{}{ImageParam{Program: "0,1,5"}}, MalformedProgram},
		{"bad source", []interface{}{ImageParam{Source: "Register A: x\n"}}, MalformedProgram},
		{"reserved operand", []interface{}{ImageParam{Program: "5,7"}}, MalformedProgram},
		{"step limit", []interface{}{ImageParam{Registers: &[3]uint64{1, 0, 0}, Program: "3,0"}}, ExecutionLimit},
		{"bad target", []interface{}{ImageParam{Program: quine}, RunConfig{Verify: true, Target: "1,9"}}, InvalidParams},
		{"bad encoding", []interface{}{ImageParam{Program: quine}, RunConfig{Trace: true, Encoding: "hex"}}, InvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireCode(t, makeRPCRequest(t, server, "runProgram", tt.params), tt.code)
		})
	}
}

func TestDisassemble(t *testing.T) {
	server := newTestServer(t)

	for _, program := range []interface{}{"0,1,5,4,3,0", []uint8{0, 1, 5, 4, 3, 0}} {
		var out []InstructionInfo
		decodeResult(t, makeRPCRequest(t, server, "disassemble", []interface{}{program}), &out)
		require.Len(t, out, 3)
		assert.Equal(t, "adv 1", out[0].Text)
		assert.Equal(t, "out A", out[1].Text)
		assert.Equal(t, 4, out[2].Addr)
		assert.Equal(t, "jnz", out[2].Op)
	}

	requireCode(t, makeRPCRequest(t, server, "disassemble", []interface{}{[]uint8{0, 8}}), MalformedProgram)
	requireCode(t, makeRPCRequest(t, server, "disassemble", nil), InvalidParams)
}

func TestSolveProgram(t *testing.T) {
	server := newTestServer(t)

	var res SolveResult
	decodeResult(t, makeRPCRequest(t, server, "solveProgram", []interface{}{quine}), &res)
	assert.Equal(t, uint64(117440), res.Seed)
	assert.Equal(t, engine.SourceSearch, res.Source)
	assert.Equal(t, 1, res.Pattern.Lead)
	assert.False(t, res.Pattern.Shifted)

	decodeResult(t, makeRPCRequest(t, server, "solveProgram", []interface{}{quine}), &res)
	assert.Equal(t, uint64(117440), res.Seed)
	assert.Equal(t, engine.SourceCache, res.Source)

	decodeResult(t, makeRPCRequest(t, server, "solveProgram",
		[]interface{}{quine, SolveConfig{Target: "3,6,0"}}), &res)
	assert.Equal(t, uint64(408), res.Seed)
}

func TestSolveProgramErrors(t *testing.T) {
	server := newTestServer(t)

	requireCode(t, makeRPCRequest(t, server, "solveProgram", []interface{}{"5,4,0,3,3,0"}), NoSolution)
	requireCode(t, makeRPCRequest(t, server, "solveProgram", []interface{}{"0,1,5,4,3,0"}), UnsupportedProgram)
	requireCode(t, makeRPCRequest(t, server, "solveProgram", []interface{}{"0,3,5"}), MalformedProgram)
	requireCode(t, makeRPCRequest(t, server, "solveProgram",
		[]interface{}{quine, SolveConfig{Target: "8"}}), InvalidParams)
	requireCode(t, makeRPCRequest(t, server, "solveProgram",
		[]interface{}{quine, SolveConfig{Target: strings.Repeat("0,", 30) + "0"}}), InvalidParams)
}

func TestGetSeed(t *testing.T) {
	server := newTestServer(t)
	prog := types.Program{0, 3, 5, 4, 3, 0}
	fp := types.SearchFingerprint(prog, prog.Digits())

	resp := makeRPCRequest(t, server, "getSeed", []interface{}{fp.String()})
	require.Nil(t, resp.Error)
	assert.Nil(t, resp.Result)

	var solved SolveResult
	decodeResult(t, makeRPCRequest(t, server, "solveProgram", []interface{}{quine}), &solved)
	assert.Equal(t, fp.String(), solved.Fingerprint)

	var info SeedInfo
	decodeResult(t, makeRPCRequest(t, server, "getSeed", []interface{}{fp.String()}), &info)
	assert.True(t, info.Found)
	assert.Equal(t, uint64(117440), info.Seed)
	assert.Equal(t, quine, info.Program)
	assert.Equal(t, quine, info.Target)

	requireCode(t, makeRPCRequest(t, server, "getSeed", []interface{}{"not-base58!"}), InvalidParams)
}

func TestGetStats(t *testing.T) {
	server := newTestServer(t)
	makeRPCRequest(t, server, "solveProgram", []interface{}{quine})

	var stats engine.Stats
	decodeResult(t, makeRPCRequest(t, server, "getStats", nil), &stats)
	assert.Equal(t, uint64(1), stats.Solves)
	assert.Equal(t, uint64(1), stats.Searches)
	require.NotNil(t, stats.Store)
	assert.Equal(t, uint64(1), stats.Store.Seeds)
}

func TestMethodNotFound(t *testing.T) {
	server := newTestServer(t)
	requireCode(t, makeRPCRequest(t, server, "getBalance", nil), MethodNotFound)
}

func TestInvalidRequests(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	post := func(body, contentType string) *Response {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		var resp Response
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return &resp
	}

	requireCode(t, post("{not json", "application/json"), ParseError)
	requireCode(t, post(`{"jsonrpc":"1.0","id":1,"method":"getHealth"}`, "application/json"), InvalidRequest)
	requireCode(t, post(`{"jsonrpc":"2.0","id":1,"method":"getHealth"}`, "text/plain"), InvalidRequest)
	requireCode(t, post(`[]`, "application/json"), InvalidRequest)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBatchRequest(t *testing.T) {
	server := newTestServer(t)
	body := `[
		{"jsonrpc":"2.0","id":1,"method":"getHealth"},
		{"jsonrpc":"2.0","id":2,"method":"solveProgram","params":["0,3,5,4,3,0"]},
		{"jsonrpc":"2.0","id":3,"method":"nope"}
	]`

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var responses []Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&responses))
	require.Len(t, responses, 3)
	assert.Equal(t, "ok", responses[0].Result)
	assert.Nil(t, responses[1].Error)
	require.NotNil(t, responses[2].Error)
	assert.Equal(t, MethodNotFound, responses[2].Error.Code)
}

func TestCORS(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeAndStop(t *testing.T) {
	server := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln) }()

	body := `{"jsonrpc":"2.0","id":1,"method":"getHealth"}`
	var httpResp *http.Response
	require.Eventually(t, func() bool {
		httpResp, err = http.Post("http://"+ln.Addr().String(), "application/json", strings.NewReader(body))
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer httpResp.Body.Close()

	var resp Response
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Result)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestEncodeTraceRoundTrip(t *testing.T) {
	lines, err := DecodeTrace("", EncodingBase64)
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = EncodeTrace(nil, "hex")
	assert.Error(t, err)
}
