package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/logger"
)

// Budget caps LLM requests per day, per provider and in total.
// A limit of zero means unlimited.
type Budget struct {
	mu        sync.Mutex
	used      map[string]int
	limits    map[string]int
	total     int
	maxTotal  int
	window    time.Duration
	resetTime time.Time
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewBudget creates a daily budget with maxTotal requests across all providers.
func NewBudget(maxTotal int, log *zap.SugaredLogger) *Budget {
	b := &Budget{
		used:     make(map[string]int),
		limits:   make(map[string]int),
		maxTotal: maxTotal,
		window:   24 * time.Hour,
		now:      time.Now,
		log:      logger.OrNop(log),
	}
	b.resetTime = b.now().Add(b.window)
	return b
}

// SetLimit sets a per-provider cap.
func (b *Budget) SetLimit(provider string, max int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[provider] = max
}

// CanUse checks if a request for provider would fit.
func (b *Budget) CanUse(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()
	return b.check(provider) == nil
}

// Use records one request. It fails with domain.ErrBudgetExhausted when a
// cap is already reached.
func (b *Budget) Use(provider string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()
	if err := b.check(provider); err != nil {
		b.log.Warnw("llm budget exhausted", "provider", provider, "used", b.used[provider], "total", b.total, "max_total", b.maxTotal)
		return err
	}

	b.used[provider]++
	b.total++
	b.log.Debugw("llm usage", "provider", provider, "used", b.used[provider], "total", b.total, "max_total", b.maxTotal)
	return nil
}

func (b *Budget) check(provider string) error {
	if max := b.limits[provider]; max > 0 && b.used[provider] >= max {
		return fmt.Errorf("%w: %s limit %d reached", domain.ErrBudgetExhausted, provider, max)
	}
	if b.maxTotal > 0 && b.total >= b.maxTotal {
		return fmt.Errorf("%w: total limit %d reached", domain.ErrBudgetExhausted, b.maxTotal)
	}
	return nil
}

// Stats is a snapshot for the monitoring endpoint.
type Stats struct {
	Used      map[string]int `json:"used"`
	Total     int            `json:"total"`
	MaxTotal  int            `json:"max_total"`
	ResetTime time.Time      `json:"reset_time"`
}

func (b *Budget) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	used := make(map[string]int, len(b.used))
	for k, v := range b.used {
		used[k] = v
	}
	return Stats{Used: used, Total: b.total, MaxTotal: b.maxTotal, ResetTime: b.resetTime}
}

// checkReset clears the counters once the window has passed.
func (b *Budget) checkReset() {
	now := b.now()
	if !now.After(b.resetTime) {
		return
	}
	b.log.Infow("resetting llm budget", "total", b.total, "max_total", b.maxTotal)
	b.used = make(map[string]int)
	b.total = 0
	b.resetTime = now.Add(b.window)
}
