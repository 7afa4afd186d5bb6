package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	Cycles             int64
	ItemsFetched       int64
	DuplicatesFiltered int64
	LowScoreFiltered   int64
	Published          int64
	Skipped            int64
	Failed             int64
	FetchErrors        int64

	// Timings
	LastCycleTime    time.Duration
	AverageCycleTime time.Duration
	TotalCycleTime   time.Duration

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	LastPostURL   string
	IsHealthy     bool

	// Extra sections reported by GetStats, keyed by name.
	sections map[string]func() interface{}
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) AddFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsFetched += int64(n)
}

func (m *Metrics) IncrementDuplicatesFiltered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered++
}

func (m *Metrics) IncrementLowScoreFiltered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LowScoreFiltered++
}

func (m *Metrics) RecordPublished(postURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published++
	m.LastPostURL = postURL
}

func (m *Metrics) IncrementSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Skipped++
}

// RecordFailure counts a failed item. Item failures do not make the
// process unhealthy; only fetch errors do.
func (m *Metrics) RecordFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failed++
	m.LastError = reason
	m.LastErrorTime = time.Now()
}

func (m *Metrics) RecordCycle(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Cycles++
	m.LastCycleTime = duration
	m.TotalCycleTime += duration
	m.AverageCycleTime = m.TotalCycleTime / time.Duration(m.Cycles)
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetFetchError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchErrors++
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

// Attach adds a named section to GetStats. fn is called on every read.
func (m *Metrics) Attach(name string, fn func() interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sections == nil {
		m.sections = make(map[string]func() interface{})
	}
	m.sections[name] = fn
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]interface{}{
		"cycles":                m.Cycles,
		"items_fetched":         m.ItemsFetched,
		"duplicates_filtered":   m.DuplicatesFiltered,
		"low_score_filtered":    m.LowScoreFiltered,
		"published":             m.Published,
		"skipped":               m.Skipped,
		"failed":                m.Failed,
		"fetch_errors":          m.FetchErrors,
		"last_cycle_time_ms":    m.LastCycleTime.Milliseconds(),
		"average_cycle_time_ms": m.AverageCycleTime.Milliseconds(),
		"last_run_time":         m.LastRunTime.Format(time.RFC3339),
		"last_error_time":       m.LastErrorTime.Format(time.RFC3339),
		"last_error":            m.LastError,
		"last_post_url":         m.LastPostURL,
		"is_healthy":            m.IsHealthy,
	}
	for name, fn := range m.sections {
		stats[name] = fn()
	}
	return stats
}
