package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/X1-Chrono/internal/types"
)

// Bucket names for BoltDB.
var (
	// bucketSeeds stores seed records keyed by search fingerprint.
	bucketSeeds = []byte("seeds")

	// bucketRuns stores run records keyed by run fingerprint.
	bucketRuns = []byte("runs")

	// bucketMetadata stores store metadata.
	bucketMetadata = []byte("metadata")
)

// Metadata keys.
var (
	keyCreatedAt = []byte("created_at")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db     *bolt.DB
	config Config

	mu     sync.RWMutex
	closed bool
}

// OpenBolt opens or creates a BoltDB store.
func OpenBolt(config Config) (*BoltStore, error) {
	// Ensure directory exists.
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	opts := &bolt.Options{
		Timeout: timeout,
		NoSync:  config.NoSync,
	}

	db, err := bolt.Open(config.Path, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &BoltStore{
		db:     db,
		config: config,
	}
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}
	return s, nil
}

// initBuckets creates all required buckets.
func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSeeds, bucketRuns, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		meta := tx.Bucket(bucketMetadata)
		if meta.Get(keyCreatedAt) == nil {
			stamp, err := time.Now().UTC().MarshalBinary()
			if err != nil {
				return err
			}
			return meta.Put(keyCreatedAt, stamp)
		}
		return nil
	})
}

func (s *BoltStore) get(bucket []byte, fp types.Fingerprint, v interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get(fp[:])
		if raw == nil {
			return ErrNotFound
		}
		// Values are only valid for the life of the transaction.
		data = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		return err
	}
	return decodeRecord(data, v)
}

func (s *BoltStore) put(bucket []byte, fp types.Fingerprint, v interface{}) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(fp[:], data)
	})
}

// GetSeed returns the seed record for fp.
func (s *BoltStore) GetSeed(fp types.Fingerprint) (*SeedRecord, error) {
	rec := &SeedRecord{}
	if err := s.get(bucketSeeds, fp, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutSeed stores a seed record.
func (s *BoltStore) PutSeed(rec *SeedRecord) error {
	return s.put(bucketSeeds, rec.Fingerprint, rec)
}

// GetRun returns the run record for fp.
func (s *BoltStore) GetRun(fp types.Fingerprint) (*RunRecord, error) {
	rec := &RunRecord{}
	if err := s.get(bucketRuns, fp, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutRun stores a run record.
func (s *BoltStore) PutRun(rec *RunRecord) error {
	return s.put(bucketRuns, rec.Fingerprint, rec)
}

// Stats returns record counts.
func (s *BoltStore) Stats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	stats := &Stats{Backend: BackendBolt}
	err := s.db.View(func(tx *bolt.Tx) error {
		stats.Seeds = uint64(tx.Bucket(bucketSeeds).Stats().KeyN)
		stats.Runs = uint64(tx.Bucket(bucketRuns).Stats().KeyN)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
