package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/storage"
)

func TestSet_Memory(t *testing.T) {
	s := New()
	assert.False(t, s.Seen("a"))

	s.Mark(context.Background(), domain.Item{ID: "b"})
	s.Mark(context.Background(), domain.Item{ID: "a"})
	s.Mark(context.Background(), domain.Item{ID: "a"})

	assert.True(t, s.Seen("a"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"a", "b"}, s.IDs())
	assert.NoError(t, s.Close())
}

func TestSet_ConcurrentMarks(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Mark(context.Background(), domain.Item{ID: string(rune('a' + i%10))})
			_ = s.Seen("a")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, s.Len())
}

func TestSet_BoltRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := storage.OpenBoltStore(path, 0)
	require.NoError(t, err)
	s, err := Open(ctx, store, nil)
	require.NoError(t, err)
	s.Mark(ctx, domain.Item{ID: "abc", Title: "t", URL: "https://example.com"})
	require.NoError(t, s.Close())

	store, err = storage.OpenBoltStore(path, 0)
	require.NoError(t, err)
	s, err = Open(ctx, store, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.True(t, s.Seen("abc"))
}

type failingStore struct{}

func (failingStore) LoadIDs(ctx context.Context) ([]string, error) { return []string{"old"}, nil }
func (failingStore) Save(ctx context.Context, rec storage.Record) error {
	return errors.New("disk full")
}
func (failingStore) Close() error { return nil }

func TestSet_StoreFailureKeepsMemoryMark(t *testing.T) {
	s, err := Open(context.Background(), failingStore{}, nil)
	require.NoError(t, err)

	s.Mark(context.Background(), domain.Item{ID: "new"})
	assert.True(t, s.Seen("new"))
	assert.True(t, s.Seen("old"))
}
