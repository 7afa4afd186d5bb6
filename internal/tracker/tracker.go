// Package tracker remembers which item ids have already been taken.
package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/logger"
	"github.com/deusflow/pagepost/internal/storage"
)

// Store persists marked ids. Implemented by the storage backends.
type Store interface {
	LoadIDs(ctx context.Context) ([]string, error)
	Save(ctx context.Context, rec storage.Record) error
	Close() error
}

// Set is the processed-id set. It only grows. Without a Store it lives for
// the process lifetime.
type Set struct {
	mu    sync.RWMutex
	ids   map[string]struct{}
	store Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

func New() *Set {
	return &Set{ids: make(map[string]struct{}), log: logger.Nop(), now: time.Now}
}

// Open returns a Set seeded with the ids already in store. Later marks are
// written through to it.
func Open(ctx context.Context, store Store, log *zap.SugaredLogger) (*Set, error) {
	s := New()
	s.store = store
	s.log = logger.OrNop(log)

	ids, err := store.LoadIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	s.log.Infow("processed ids loaded", "count", len(ids))
	return s, nil
}

func (s *Set) Seen(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Mark records item as taken. A failed write to the store is logged; the
// in-memory mark always sticks.
func (s *Set) Mark(ctx context.Context, item domain.Item) {
	s.mu.Lock()
	s.ids[item.ID] = struct{}{}
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	rec := storage.Record{ID: item.ID, Title: item.Title, URL: item.URL, MarkedAt: s.now().UTC()}
	if err := s.store.Save(ctx, rec); err != nil {
		s.log.Warnw("failed to persist processed id", "item_id", item.ID, "error", err)
	}
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns the marked ids in sorted order.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close closes the attached store, if any.
func (s *Set) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
