// Package storage persists processed item ids so deduplication survives a
// restart. The scan loop works without it; every backend is optional.
package storage

import "time"

// Record is one processed item.
type Record struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	MarkedAt time.Time `json:"marked_at"`
}

// cutoff returns the oldest MarkedAt still loaded, or the zero time when
// retention is disabled.
func cutoff(now time.Time, retention time.Duration) time.Time {
	if retention <= 0 {
		return time.Time{}
	}
	return now.Add(-retention)
}

func fresh(markedAt, oldest time.Time) bool {
	return oldest.IsZero() || markedAt.After(oldest)
}
