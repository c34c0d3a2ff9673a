package engine

import (
	"log/slog"

	"github.com/roach88/animflow/internal/nodes"
	"github.com/roach88/animflow/internal/timeline"
)

// DefaultMaxArrayCount caps array-modifier instance counts.
const DefaultMaxArrayCount = 1000

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSampler sets the timeline sampler. Default: timeline.DefaultSampler.
func WithSampler(s timeline.Sampler) Option {
	return func(m *Manager) {
		if s != nil {
			m.sampler = s
		}
	}
}

// WithMaxArrayCount caps array-modifier counts.
//
// Default: 1000 (DefaultMaxArrayCount)
// Counts above the cap are clamped, not rejected.
func WithMaxArrayCount(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxArrayCount = n
		}
	}
}

// WithEvaluator replaces the node evaluator, e.g. to share one expression
// cache between managers.
func WithEvaluator(e *nodes.Evaluator) Option {
	return func(m *Manager) {
		if e != nil {
			m.eval = e
		}
	}
}

// WithClock shares a pass clock, so passes across managers are ordered.
func WithClock(c *Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}
