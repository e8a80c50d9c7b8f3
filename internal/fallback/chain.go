// Package fallback runs an ordered list of strategies that share one input
// and output contract. Each strategy may declare a capability check; the
// first available strategy that succeeds wins. Nothing is retried.
package fallback

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrExhausted is returned when no strategy produced a result.
var ErrExhausted = errors.New("fallback: all strategies failed")

// Strategy is one way of producing Out from In.
type Strategy[In, Out any] struct {
	Name string
	// Available is the capability check. nil means always available.
	Available func(ctx context.Context) bool
	Run       func(ctx context.Context, in In) (Out, error)
}

// Observer is told which strategy finished a run and whether it succeeded.
// Skipped strategies are reported with ok=false and err=nil.
type Observer func(ctx context.Context, stage, strategy string, ok bool, err error)

type Chain[In, Out any] struct {
	stage      string
	strategies []Strategy[In, Out]
	log        logrus.FieldLogger
	observe    Observer
}

func New[In, Out any](stage string, log logrus.FieldLogger, strategies ...Strategy[In, Out]) *Chain[In, Out] {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Chain[In, Out]{stage: stage, strategies: strategies, log: log}
}

// Observe installs an observer and returns the chain.
func (c *Chain[In, Out]) Observe(o Observer) *Chain[In, Out] {
	c.observe = o
	return c
}

// Append adds a strategy at the lowest priority.
func (c *Chain[In, Out]) Append(s Strategy[In, Out]) { c.strategies = append(c.strategies, s) }

func (c *Chain[In, Out]) Names() []string {
	out := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		out[i] = s.Name
	}
	return out
}

// Run tries each strategy in order and returns the first result with the
// name of the strategy that produced it.
func (c *Chain[In, Out]) Run(ctx context.Context, in In) (Out, string, error) {
	var (
		zero    Out
		lastErr error
	)
	for _, s := range c.strategies {
		if s.Available != nil && !s.Available(ctx) {
			c.log.WithFields(logrus.Fields{"stage": c.stage, "strategy": s.Name}).Debug("strategy unavailable, skipping")
			c.report(ctx, s.Name, false, nil)
			continue
		}

		out, err := s.Run(ctx, in)
		if err == nil {
			c.report(ctx, s.Name, true, nil)
			return out, s.Name, nil
		}
		lastErr = err
		c.report(ctx, s.Name, false, err)
		c.log.WithFields(logrus.Fields{"stage": c.stage, "strategy": s.Name}).WithError(err).Warn("strategy failed, trying next")
	}
	if lastErr == nil {
		lastErr = errors.New("no strategy available")
	}
	return zero, "", fmt.Errorf("%w (%s): %w", ErrExhausted, c.stage, lastErr)
}

func (c *Chain[In, Out]) report(ctx context.Context, name string, ok bool, err error) {
	if c.observe != nil {
		c.observe(ctx, c.stage, name, ok, err)
	}
}
