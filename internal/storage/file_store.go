package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileStore keeps processed records in a JSON file, rewritten on every save.
type FileStore struct {
	filePath  string
	retention time.Duration
	items     map[string]Record
	mu        sync.RWMutex
}

// OpenFileStore loads filePath if it exists. Records older than retention
// are dropped on load; retention <= 0 keeps everything.
func OpenFileStore(filePath string, retention time.Duration) (*FileStore, error) {
	fs := &FileStore{
		filePath:  filePath,
		retention: retention,
		items:     make(map[string]Record),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var items []Record
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("failed to unmarshal state file: %w", err)
	}

	oldest := cutoff(time.Now(), fs.retention)
	for _, item := range items {
		if fresh(item.MarkedAt, oldest) {
			fs.items[item.ID] = item
		}
	}
	return nil
}

func (fs *FileStore) LoadIDs(ctx context.Context) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	ids := make([]string, 0, len(fs.items))
	for id := range fs.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (fs *FileStore) Save(ctx context.Context, rec Record) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.items[rec.ID] = rec
	return fs.flush()
}

// flush writes all records to a temp file and renames it over the state file.
func (fs *FileStore) flush() error {
	items := make([]Record, 0, len(fs.items))
	for _, item := range fs.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].MarkedAt.Before(items[j].MarkedAt) })

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if dir := filepath.Dir(fs.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state dir: %w", err)
		}
	}
	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return os.Rename(tmp, fs.filePath)
}

func (fs *FileStore) Close() error { return nil }
