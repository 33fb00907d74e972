package logger

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ProgressConfig configures a ProgressTracker
type ProgressConfig struct {
	Operation   string
	Total       int64
	LogInterval time.Duration
	Logger      Logger
}

// ProgressTracker counts items through a long loop, optionally tallied by
// outcome, and logs a line at most once per LogInterval.
type ProgressTracker struct {
	mu       sync.Mutex
	log      Logger
	op       string
	total    int64
	done     int64
	outcomes map[string]int64
	started  time.Time
	lastLog  time.Time
	interval time.Duration
}

// NewProgressTracker creates a tracker and logs the start of the operation
func NewProgressTracker(cfg ProgressConfig) *ProgressTracker {
	log := cfg.Logger
	if log == nil {
		log = GetGlobalLogger()
	}
	interval := cfg.LogInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	now := time.Now()
	p := &ProgressTracker{
		log:      log.WithComponent("progress").WithField("operation", cfg.Operation),
		op:       cfg.Operation,
		total:    cfg.Total,
		outcomes: make(map[string]int64),
		started:  now,
		lastLog:  now,
		interval: interval,
	}
	p.log.WithField("total", cfg.Total).Debug("Starting operation")
	return p
}

// Increment counts one item without an outcome
func (p *ProgressTracker) Increment() { p.Add(1) }

// Add counts delta items without an outcome
func (p *ProgressTracker) Add(delta int64) { p.record("", delta) }

// Record counts one item under outcome, e.g. "matched"
func (p *ProgressTracker) Record(outcome string) { p.record(outcome, 1) }

func (p *ProgressTracker) record(outcome string, delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += delta
	if outcome != "" {
		p.outcomes[outcome] += delta
	}
	if now := time.Now(); now.Sub(p.lastLog) >= p.interval {
		p.log.WithFields(p.snapshot(now).fields()).Info("Progress update")
		p.lastLog = now
	}
}

// Complete logs the final counts
func (p *ProgressTracker) Complete() {
	s := p.Stats()
	p.log.WithFields(s.fields()).Info("Operation completed")
}

// CompleteWithError logs the counts reached before err stopped the loop
func (p *ProgressTracker) CompleteWithError(err error) {
	s := p.Stats()
	p.log.WithError(err).WithFields(s.fields()).Error("Operation completed with error")
}

// Stats returns a snapshot of the counters
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot(time.Now())
}

func (p *ProgressTracker) snapshot(now time.Time) ProgressStats {
	s := ProgressStats{
		Operation: p.op,
		Total:     p.total,
		Current:   p.done,
		Elapsed:   now.Sub(p.started),
		Outcomes:  make(map[string]int64, len(p.outcomes)),
	}
	for k, v := range p.outcomes {
		s.Outcomes[k] = v
	}
	if p.total > 0 {
		s.Percentage = float64(p.done) / float64(p.total) * 100
	}
	return s
}

// ProgressStats is a point-in-time view of a ProgressTracker
type ProgressStats struct {
	Operation  string           `json:"operation"`
	Total      int64            `json:"total"`
	Current    int64            `json:"current"`
	Percentage float64          `json:"percentage"`
	Elapsed    time.Duration    `json:"elapsed"`
	Outcomes   map[string]int64 `json:"outcomes,omitempty"`
}

func (s ProgressStats) fields() Fields {
	f := Fields{
		"processed": s.Current,
		"elapsed":   s.Elapsed.Round(time.Millisecond).String(),
	}
	if s.Total > 0 {
		f["total"] = s.Total
		f["percentage"] = fmt.Sprintf("%.1f%%", s.Percentage)
	}
	keys := make([]string, 0, len(s.Outcomes))
	for k := range s.Outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f[k] = s.Outcomes[k]
	}
	return f
}

// TimedOperation runs fn and logs how long it took and whether it failed
func TimedOperation(operation string, log Logger, fn func() error) error {
	if log == nil {
		log = GetGlobalLogger()
	}
	start := time.Now()
	err := fn()

	entry := log.WithFields(Fields{
		"operation": operation,
		"elapsed":   time.Since(start).Round(time.Millisecond).String(),
	})
	if err != nil {
		entry.WithError(err).Error("Operation failed")
		return err
	}
	entry.Info("Operation completed")
	return nil
}
