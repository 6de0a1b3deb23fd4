package store

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/fortiblox/X1-Chrono/internal/types"
)

// Key prefixes for BadgerDB.
var (
	prefixSeed = []byte("s:")
	prefixRun  = []byte("r:")
)

// BadgerStore implements Store using BadgerDB.
type BadgerStore struct {
	db *badger.DB

	// counts are cached in memory
	seeds atomic.Uint64
	runs  atomic.Uint64

	closed atomic.Bool
}

// OpenBadger opens or creates a BadgerDB store.
func OpenBadger(config Config) (*BadgerStore, error) {
	opts := badger.DefaultOptions(config.Path)
	if config.InMemory {
		// Disk-less mode rejects a directory.
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.
		WithSyncWrites(!config.NoSync).
		WithNumCompactors(2).
		WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &BadgerStore{db: db}
	if err := s.loadCounts(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load counts: %w", err)
	}
	return s, nil
}

// loadCounts counts existing records by prefix.
func (s *BadgerStore) loadCounts() error {
	return s.db.View(func(txn *badger.Txn) error {
		count := func(prefix []byte) uint64 {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			defer it.Close()

			var n uint64
			for it.Rewind(); it.Valid(); it.Next() {
				n++
			}
			return n
		}
		s.seeds.Store(count(prefixSeed))
		s.runs.Store(count(prefixRun))
		return nil
	})
}

func recordKey(prefix []byte, fp types.Fingerprint) []byte {
	key := make([]byte, 0, len(prefix)+types.FingerprintSize)
	key = append(key, prefix...)
	return append(key, fp[:]...)
}

func (s *BadgerStore) get(prefix []byte, fp types.Fingerprint, v interface{}) error {
	if s.closed.Load() {
		return ErrClosed
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(prefix, fp))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return decodeRecord(data, v)
}

func (s *BadgerStore) put(prefix []byte, fp types.Fingerprint, v interface{}, counter *atomic.Uint64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}

	key := recordKey(prefix, fp)
	created := false
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		created = err != nil
		return txn.Set(key, data)
	})
	if err != nil {
		return err
	}
	if created {
		counter.Add(1)
	}
	return nil
}

// GetSeed returns the seed record for fp.
func (s *BadgerStore) GetSeed(fp types.Fingerprint) (*SeedRecord, error) {
	rec := &SeedRecord{}
	if err := s.get(prefixSeed, fp, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutSeed stores a seed record.
func (s *BadgerStore) PutSeed(rec *SeedRecord) error {
	return s.put(prefixSeed, rec.Fingerprint, rec, &s.seeds)
}

// GetRun returns the run record for fp.
func (s *BadgerStore) GetRun(fp types.Fingerprint) (*RunRecord, error) {
	rec := &RunRecord{}
	if err := s.get(prefixRun, fp, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutRun stores a run record.
func (s *BadgerStore) PutRun(rec *RunRecord) error {
	return s.put(prefixRun, rec.Fingerprint, rec, &s.runs)
}

// Stats returns record counts.
func (s *BadgerStore) Stats() (*Stats, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return &Stats{
		Backend: BackendBadger,
		Seeds:   s.seeds.Load(),
		Runs:    s.runs.Load(),
	}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// badgerLogger routes badger's internal logging to the store logger,
// demoting its info chatter to debug.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{})   { log.Errorf(format, args...) }
func (badgerLogger) Warningf(format string, args ...interface{}) { log.Warningf(format, args...) }
func (badgerLogger) Infof(format string, args ...interface{})    { log.Debugf(format, args...) }
func (badgerLogger) Debugf(format string, args ...interface{})   { log.Debugf(format, args...) }
