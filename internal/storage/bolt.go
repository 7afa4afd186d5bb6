package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var processedBucket = []byte("processed")

// BoltStore keeps processed records in a bbolt file, one key per id.
type BoltStore struct {
	db        *bolt.DB
	retention time.Duration
}

func OpenBoltStore(path string, retention time.Duration) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt state %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(processedBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bolt bucket: %w", err)
	}
	return &BoltStore{db: db, retention: retention}, nil
}

func (s *BoltStore) LoadIDs(ctx context.Context) ([]string, error) {
	oldest := cutoff(time.Now(), s.retention)

	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(processedBucket).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			if fresh(rec.MarkedAt, oldest) {
				ids = append(ids, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *BoltStore) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(processedBucket).Put([]byte(rec.ID), data)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
