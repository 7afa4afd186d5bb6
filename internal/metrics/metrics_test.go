package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.AddFetched(3)
	m.IncrementDuplicatesFiltered()
	m.IncrementLowScoreFiltered()
	m.RecordPublished("https://www.facebook.com/1")
	m.IncrementSkipped()
	m.RecordFailure("parse_error")
	m.RecordCycle(2 * time.Second)
	m.RecordCycle(4 * time.Second)

	stats := m.GetStats()
	assert.Equal(t, int64(3), stats["items_fetched"])
	assert.Equal(t, int64(1), stats["published"])
	assert.Equal(t, int64(1), stats["failed"])
	assert.Equal(t, int64(3000), stats["average_cycle_time_ms"])
	assert.Equal(t, "parse_error", stats["last_error"])
	assert.True(t, m.Healthy(), "item failures keep the process healthy")
}

func TestHandler_Health(t *testing.T) {
	m := New()
	h := Handler(m)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	m.SetFetchError("reddit down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "reddit down", body["last_error"])

	m.SetLastRun()
	assert.True(t, m.Healthy())
}

func TestHandler_Metrics(t *testing.T) {
	m := New()
	m.AddFetched(2)

	rec := httptest.NewRecorder()
	Handler(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["items_fetched"])
}

func TestHandler_MetricsIncludesAttachedSections(t *testing.T) {
	m := New()
	m.Attach("llm_budget", func() interface{} {
		return map[string]int{"total": 3, "max_total": 10}
	})

	rec := httptest.NewRecorder()
	Handler(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Budget struct {
			Total    int `json:"total"`
			MaxTotal int `json:"max_total"`
		} `json:"llm_budget"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Budget.Total)
	assert.Equal(t, 10, body.Budget.MaxTotal)
}
