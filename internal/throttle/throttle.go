// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package throttle scores inbound connections. Every request adds points to
// its connection's score, failures more than successes, and a background
// loop takes points away again. Scores above the soft threshold get rate
// limited, scores above the hard threshold get cut off.
package throttle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the deltas, thresholds and decay settings.
type Config struct { //nolint:govet // fieldalignment not critical
	SuccessDelta   int64
	FailureDelta   int64
	BlockedDelta   int64
	SoftThreshold  int64
	HardThreshold  int64
	DecayDecrement int64
	DecayInterval  time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SuccessDelta:   100,
		FailureDelta:   500,
		BlockedDelta:   1000,
		SoftThreshold:  7500,
		HardThreshold:  10000,
		DecayDecrement: 300,
		DecayInterval:  5 * time.Second,
	}
}

// Throttle holds one score per connection key.
type Throttle struct {
	mu     sync.Mutex
	scores map[string]int64
	cfg    Config

	blocks  *prometheus.CounterVec
	entries prometheus.GaugeFunc
}

// New creates a Throttle. A nil registerer skips metric registration.
func New(cfg Config, reg prometheus.Registerer) *Throttle {
	t := &Throttle{
		scores: make(map[string]int64),
		cfg:    cfg,
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "player_accounts_throttle_blocks_total",
			Help: "Requests refused by the throttle, by kind.",
		}, []string{"kind"}),
	}
	t.entries = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "player_accounts_throttle_entries",
		Help: "Connection keys with a positive score.",
	}, func() float64 { return float64(t.Len()) })

	if reg != nil {
		reg.MustRegister(t.blocks, t.entries)
	}
	return t
}

// Config returns the configuration the throttle was built with.
func (t *Throttle) Config() Config {
	return t.cfg
}

// Increase adds delta to the score of key, creating the entry at delta.
// Non-positive deltas are ignored.
func (t *Throttle) Increase(key string, delta int64) {
	if delta <= 0 {
		return
	}
	t.mu.Lock()
	t.scores[key] += delta
	t.mu.Unlock()
}

// Score returns the current score of key.
func (t *Throttle) Score(key string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scores[key]
}

// ShouldSoftBlock reports whether the score of key is above the soft
// threshold.
func (t *Throttle) ShouldSoftBlock(key string) bool {
	return t.Score(key) > t.cfg.SoftThreshold
}

// ShouldHardBlock reports whether the score of key is above the hard
// threshold.
func (t *Throttle) ShouldHardBlock(key string) bool {
	return t.Score(key) > t.cfg.HardThreshold
}

// RecordBlock counts a refused request of the given kind ("soft", "hard").
func (t *Throttle) RecordBlock(kind string) {
	t.blocks.WithLabelValues(kind).Inc()
}

// Len returns the number of tracked keys.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.scores)
}

// Decay runs one decay tick: every score drops by the decrement, floored at
// zero. Keys that reach zero are forgotten.
func (t *Throttle) Decay() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, score := range t.scores {
		score -= t.cfg.DecayDecrement
		if score <= 0 {
			delete(t.scores, key)
			continue
		}
		t.scores[key] = score
	}
}

// Run calls Decay at the configured interval until ctx is done.
func (t *Throttle) Run(ctx context.Context) error {
	interval := t.cfg.DecayInterval
	if interval <= 0 {
		interval = DefaultConfig().DecayInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Debug("throttle_decay_started", "interval", interval, "decrement", t.cfg.DecayDecrement)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.Decay()
		}
	}
}
