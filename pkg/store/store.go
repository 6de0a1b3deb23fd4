// Package store persists solved seeds and program runs.
//
// Records are keyed by a types.Fingerprint of their inputs. Three backends
// are available: an in-process map, BoltDB and BadgerDB. All backends share
// the same record encoding (see codec.go), so a record written by one can be
// copied verbatim into another.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/tliron/commonlog"

	"github.com/fortiblox/X1-Chrono/internal/types"
)

var (
	// ErrNotFound is returned when a record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrCorrupt is returned when a stored record fails its checksum.
	ErrCorrupt = errors.New("record corrupt")

	// ErrUnknownBackend is returned for an unrecognised Config.Backend.
	ErrUnknownBackend = errors.New("unknown store backend")
)

var log = commonlog.GetLogger("chrono.store")

// Backend names a storage engine.
type Backend string

// Backends.
const (
	BackendMemory Backend = "memory"
	BackendBolt   Backend = "bolt"
	BackendBadger Backend = "badger"
)

// Config holds store configuration options.
type Config struct {
	// Backend selects the storage engine.
	Backend Backend `toml:"backend"`

	// Path is the database file (bolt) or directory (badger).
	Path string `toml:"path"`

	// NoSync disables fsync after each write (faster but less durable).
	NoSync bool `toml:"no_sync"`

	// InMemory keeps a badger store entirely in memory.
	InMemory bool `toml:"in_memory"`

	// Timeout bounds how long bolt waits for the file lock.
	Timeout time.Duration `toml:"timeout"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig(path string) Config {
	return Config{
		Backend: BackendBolt,
		Path:    path,
		Timeout: 5 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendBolt:
		if c.Path == "" {
			return fmt.Errorf("bolt backend requires a path")
		}
	case BackendBadger:
		if c.Path == "" && !c.InMemory {
			return fmt.Errorf("badger backend requires a path or in_memory")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	return nil
}

// Store is the result store interface.
type Store interface {
	// Seed records
	GetSeed(fp types.Fingerprint) (*SeedRecord, error)
	PutSeed(rec *SeedRecord) error

	// Run records
	GetRun(fp types.Fingerprint) (*RunRecord, error)
	PutRun(rec *RunRecord) error

	// Maintenance
	Stats() (*Stats, error)
	Close() error
}

// Stats contains store statistics.
type Stats struct {
	// Backend is the storage engine in use.
	Backend Backend `json:"backend"`

	// Seeds is the number of seed records.
	Seeds uint64 `json:"seeds"`

	// Runs is the number of run records.
	Runs uint64 `json:"runs"`
}

// Open opens the store described by config.
func Open(config Config) (Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		s   Store
		err error
	)
	switch config.Backend {
	case BackendMemory:
		s = NewMemoryStore()
	case BackendBolt:
		s, err = OpenBolt(config)
	case BackendBadger:
		s, err = OpenBadger(config)
	}
	if err != nil {
		return nil, err
	}

	log.Infof("opened %s store at %q", config.Backend, config.Path)
	return s, nil
}
