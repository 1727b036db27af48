package controller

import (
	"context"

	"github.com/benbjohnson/clock"
)

// Option configures a Controller.
type Option func(*Controller)

// WithName sets the name used in logs and metrics.
func WithName(name string) Option {
	return func(c *Controller) {
		c.name = name
	}
}

// WithClock replaces the wall clock used for the sync period and the
// inventory timeout.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		c.clock = clk
	}
}

// WithTerminationContext replaces the process-wide termination context.
func WithTerminationContext(ctx context.Context) Option {
	return func(c *Controller) {
		c.termCtx = ctx
	}
}

// WithMetrics records sync metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}
