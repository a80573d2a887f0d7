package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketCheckpoints = []byte("sync_checkpoints")
	bucketNode        = []byte("node")
)

var keyLastCheckpoint = []byte("last")

// Checkpoint records one completed catch-up pass against an upstream
type Checkpoint struct {
	Upstream    string    `json:"upstream"`
	CompletedAt time.Time `json:"completedAt"`
	Contexts    int       `json:"contexts"`
	Applied     int       `json:"applied"`
}

// StateDB persists node-local replication state: the last successful
// catch-up checkpoint and the node's first-start time. It lives next to the
// context files as <dataDir>/state.db.
type StateDB struct {
	db *bolt.DB
}

// NewStateDB opens (creating if needed) the state database
func NewStateDB(dataDir string) (*StateDB, error) {
	dbPath := filepath.Join(dataDir, "state.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCheckpoints, bucketNode} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &StateDB{db: db}, nil
}

// Close closes the database
func (s *StateDB) Close() error {
	return s.db.Close()
}

// SaveCheckpoint records a completed catch-up pass
func (s *StateDB) SaveCheckpoint(cp Checkpoint) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints)
		data, err := json.Marshal(cp)
		if err != nil {
			return err
		}
		return b.Put(keyLastCheckpoint, data)
	})
}

// LastCheckpoint returns the most recent checkpoint, or nil if none exists
func (s *StateDB) LastCheckpoint() (*Checkpoint, error) {
	var cp *Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints)
		data := b.Get(keyLastCheckpoint)
		if data == nil {
			return nil
		}
		cp = &Checkpoint{}
		return json.Unmarshal(data, cp)
	})
	return cp, err
}

// RecordFirstStart stores the node's first start time once; later calls keep
// the original value. Returns the recorded time.
func (s *StateDB) RecordFirstStart(now time.Time) (time.Time, error) {
	first := now
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNode)
		if data := b.Get([]byte("first_started")); data != nil {
			return json.Unmarshal(data, &first)
		}
		data, err := json.Marshal(now)
		if err != nil {
			return err
		}
		return b.Put([]byte("first_started"), data)
	})
	return first, err
}
