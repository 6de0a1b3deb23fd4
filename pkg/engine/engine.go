// Package engine runs programs and searches for seeds on behalf of the
// servers and the CLI.
//
// The engine is responsible for:
// - Executing images with step limits and optional tracing
// - Solving seed searches, reusing program analysis across requests
// - Caching solved seeds in memory and persisting them in a store
//
// Unsolvable searches are persisted too, so repeated requests for an
// impossible target are answered without searching again.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/tliron/commonlog"

	"github.com/fortiblox/X1-Chrono/internal/types"
	"github.com/fortiblox/X1-Chrono/pkg/solver"
	"github.com/fortiblox/X1-Chrono/pkg/store"
	"github.com/fortiblox/X1-Chrono/pkg/vm"
	"github.com/fortiblox/X1-Chrono/pkg/vm/loader"
)

// Errors.
var (
	ErrNilStore  = errors.New("engine requires a store")
	ErrNilImage  = errors.New("nil image")
	ErrBadConfig = errors.New("invalid engine configuration")
)

var log = commonlog.GetLogger("chrono.engine")

// Result sources reported in SolveReport.Source.
const (
	SourceCache  = "cache"
	SourceStore  = "store"
	SourceSearch = "search"
)

// Config holds engine configuration.
type Config struct {
	// CacheSize is the number of seed records kept in memory.
	CacheSize int `toml:"cache_size"`

	// SolverCacheSize is the number of analysed programs kept in memory.
	SolverCacheSize int `toml:"solver_cache_size"`

	// MaxSteps bounds every run. Zero means vm.DefaultMaxSteps.
	MaxSteps uint64 `toml:"max_steps"`

	// MaxTraceSteps caps the number of steps a traced run records.
	MaxTraceSteps int `toml:"max_trace_steps"`

	// PersistRuns stores full run results alongside seeds.
	PersistRuns bool `toml:"persist_runs"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		CacheSize:       1024,
		SolverCacheSize: 128,
		MaxSteps:        vm.DefaultMaxSteps,
		MaxTraceSteps:   10_000,
		PersistRuns:     true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CacheSize <= 0 {
		return fmt.Errorf("%w: cache_size must be positive", ErrBadConfig)
	}
	if c.SolverCacheSize <= 0 {
		return fmt.Errorf("%w: solver_cache_size must be positive", ErrBadConfig)
	}
	if c.MaxTraceSteps < 0 {
		return fmt.Errorf("%w: max_trace_steps must not be negative", ErrBadConfig)
	}
	return nil
}

// Engine executes and solves programs.
type Engine struct {
	config Config
	store  store.Store

	seeds   *lru.Cache // types.Fingerprint -> *store.SeedRecord
	solvers *lru.Cache // program string -> *solver.Solver

	runs      atomic.Uint64
	solves    atomic.Uint64
	searches  atomic.Uint64
	cacheHits atomic.Uint64
	storeHits atomic.Uint64
}

// New creates an engine backed by s.
func New(config Config, s store.Store) (*Engine, error) {
	if s == nil {
		return nil, ErrNilStore
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	seeds, err := lru.New(config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create seed cache: %w", err)
	}
	solvers, err := lru.New(config.SolverCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create solver cache: %w", err)
	}

	return &Engine{
		config:  config,
		store:   s,
		seeds:   seeds,
		solvers: solvers,
	}, nil
}

// Store returns the backing store.
func (e *Engine) Store() store.Store {
	return e.store
}

// Stats contains engine counters.
type Stats struct {
	Runs        uint64       `json:"runs"`
	Solves      uint64       `json:"solves"`
	Searches    uint64       `json:"searches"`
	CacheHits   uint64       `json:"cacheHits"`
	StoreHits   uint64       `json:"storeHits"`
	CachedSeeds int          `json:"cachedSeeds"`
	Store       *store.Stats `json:"store,omitempty"`
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() (*Stats, error) {
	st, err := e.store.Stats()
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}
	return &Stats{
		Runs:        e.runs.Load(),
		Solves:      e.solves.Load(),
		Searches:    e.searches.Load(),
		CacheHits:   e.cacheHits.Load(),
		StoreHits:   e.storeHits.Load(),
		CachedSeeds: e.seeds.Len(),
		Store:       st,
	}, nil
}

// RunOptions configures Engine.Run.
type RunOptions struct {
	// Verify runs in verification mode against Target, or against the
	// program itself when Target is empty.
	Verify bool
	Target types.Digits

	// Trace records executed steps.
	Trace bool
}

// RunReport is the outcome of Engine.Run.
type RunReport struct {
	Fingerprint types.Fingerprint
	Output      types.Digits
	Registers   types.Registers
	Steps       uint64

	// Diverged and Matches are only meaningful for verification runs.
	Diverged bool
	Matches  bool

	Trace          []vm.Step
	TraceTruncated bool

	// Cached is set when the result came from the store.
	Cached bool
}

// Run executes img.
func (e *Engine) Run(ctx context.Context, img *loader.Image, opts RunOptions) (*RunReport, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.runs.Add(1)

	fp := types.RunFingerprint(img.Registers, img.Program)
	cacheable := !opts.Verify && !opts.Trace
	if cacheable {
		rec, err := e.store.GetRun(fp)
		switch {
		case err == nil:
			return &RunReport{
				Fingerprint: fp,
				Output:      rec.Output,
				Registers:   rec.Final,
				Steps:       rec.Steps,
				Cached:      true,
			}, nil
		case !errors.Is(err, store.ErrNotFound):
			log.Warningf("run %s: store lookup failed: %s", fp, err)
		}
	}

	vmOpts := vm.Options{MaxSteps: e.config.MaxSteps}
	var rec *vm.Recorder
	if opts.Trace {
		rec = vm.NewRecorder(e.config.MaxTraceSteps)
		vmOpts.Tracer = rec.Record
	}
	in := vm.New(img.Program, vmOpts)

	var (
		res *vm.Result
		err error
	)
	target := opts.Target
	if opts.Verify {
		if len(target) == 0 {
			target = img.Program.Digits()
		}
		res, err = in.Verify(img.Registers, target)
	} else {
		res, err = in.Run(img.Registers)
	}
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		Fingerprint: fp,
		Output:      res.Output,
		Registers:   res.Registers,
		Steps:       res.Steps,
		Diverged:    res.Diverged,
	}
	if opts.Verify {
		report.Matches = res.Matches(target)
	}
	if rec != nil {
		report.Trace = rec.Steps()
		report.TraceTruncated = rec.Overflow
	}

	if e.config.PersistRuns && !opts.Verify {
		err := e.store.PutRun(&store.RunRecord{
			Fingerprint: fp,
			Registers:   img.Registers,
			Program:     img.Program,
			Output:      res.Output,
			Final:       res.Registers,
			Steps:       res.Steps,
			ExecutedAt:  time.Now().UTC(),
		})
		if err != nil {
			log.Warningf("run %s: persist failed: %s", fp, err)
		}
	}
	return report, nil
}

// SolveReport is the outcome of Engine.Solve.
type SolveReport struct {
	Fingerprint types.Fingerprint
	Seed        uint64
	Pattern     solver.Pattern
	Nodes       uint64

	// Source is one of SourceCache, SourceStore or SourceSearch.
	Source string
}

// Solve finds the smallest A for which program prints target. An empty
// target means the program itself. A target proven unsolvable yields
// solver.ErrNoSolution.
func (e *Engine) Solve(ctx context.Context, program types.Program, target types.Digits) (*SolveReport, error) {
	e.solves.Add(1)
	if len(target) == 0 {
		target = program.Digits()
	}
	fp := types.SearchFingerprint(program, target)

	if rec, source := e.lookupSeed(fp); rec != nil {
		return e.fromRecord(rec, source)
	}

	s, err := e.solverFor(program)
	if err != nil {
		return nil, err
	}

	e.searches.Add(1)
	start := time.Now()
	sol, err := s.SolveFor(ctx, target)
	switch {
	case errors.Is(err, solver.ErrNoSolution):
		log.Infof("search %s: no solution", fp)
		e.remember(&store.SeedRecord{
			Fingerprint: fp,
			Program:     program,
			Target:      target,
			SolvedAt:    time.Now().UTC(),
		})
		return nil, err
	case err != nil:
		return nil, err
	}

	log.Infof("search %s: seed %d in %s (%d nodes)", fp, sol.Seed, time.Since(start), sol.Nodes)
	e.remember(&store.SeedRecord{
		Fingerprint: fp,
		Program:     program,
		Target:      target,
		Found:       true,
		Seed:        sol.Seed,
		Nodes:       sol.Nodes,
		SolvedAt:    time.Now().UTC(),
	})
	return &SolveReport{
		Fingerprint: fp,
		Seed:        sol.Seed,
		Pattern:     sol.Pattern,
		Nodes:       sol.Nodes,
		Source:      SourceSearch,
	}, nil
}

// GetSeed returns a previously recorded search outcome without searching.
func (e *Engine) GetSeed(fp types.Fingerprint) (*store.SeedRecord, error) {
	if rec, _ := e.lookupSeed(fp); rec != nil {
		return rec, nil
	}
	return nil, store.ErrNotFound
}

func (e *Engine) lookupSeed(fp types.Fingerprint) (*store.SeedRecord, string) {
	if v, ok := e.seeds.Get(fp); ok {
		e.cacheHits.Add(1)
		return v.(*store.SeedRecord), SourceCache
	}

	rec, err := e.store.GetSeed(fp)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warningf("seed %s: store lookup failed: %s", fp, err)
		}
		return nil, ""
	}
	e.storeHits.Add(1)
	e.seeds.Add(fp, rec)
	return rec, SourceStore
}

func (e *Engine) fromRecord(rec *store.SeedRecord, source string) (*SolveReport, error) {
	if !rec.Found {
		return nil, solver.ErrNoSolution
	}
	pattern, err := solver.Analyze(rec.Program)
	if err != nil {
		return nil, fmt.Errorf("analyze cached program: %w", err)
	}
	return &SolveReport{
		Fingerprint: rec.Fingerprint,
		Seed:        rec.Seed,
		Pattern:     pattern,
		Nodes:       rec.Nodes,
		Source:      source,
	}, nil
}

func (e *Engine) remember(rec *store.SeedRecord) {
	e.seeds.Add(rec.Fingerprint, rec)
	if err := e.store.PutSeed(rec); err != nil {
		log.Warningf("seed %s: persist failed: %s", rec.Fingerprint, err)
	}
}

func (e *Engine) solverFor(program types.Program) (*solver.Solver, error) {
	key := program.String()
	if v, ok := e.solvers.Get(key); ok {
		return v.(*solver.Solver), nil
	}
	s, err := solver.New(program, solver.Config{MaxSteps: e.config.MaxSteps})
	if err != nil {
		return nil, err
	}
	e.solvers.Add(key, s)
	return s, nil
}
