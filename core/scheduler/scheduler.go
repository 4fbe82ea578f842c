// Package scheduler runs the periodic certificate renewal loop. A failed
// pass is logged and retried on the next tick; it never terminates the
// loop or touches the proxy configuration.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/proxyguard/core/acme"
	"github.com/dmitrymomot/proxyguard/core/logger"
)

// Config holds scheduler configuration with environment variable support.
type Config struct {
	// Interval between renewal passes.
	Interval time.Duration `env:"RENEW_INTERVAL" envDefault:"12h"`
}

// Scheduler periodically renews certificates and applies the result.
type Scheduler struct {
	cfg   Config
	renew func(context.Context) (acme.Outcome, error)
	apply func(context.Context) error
	log   *slog.Logger
}

// New creates a Scheduler. renew performs one renewal pass; apply
// regenerates fragments for the current certificate state and reloads
// the proxy, and is invoked only after a pass actually renewed something.
func New(cfg Config, renew func(context.Context) (acme.Outcome, error), apply func(context.Context) error, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:   cfg,
		renew: renew,
		apply: apply,
		log:   log.With(logger.Component("scheduler")),
	}
}

// Run loops until the context is canceled and returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("renewal scheduler started", slog.Duration("interval", s.cfg.Interval))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single renewal cycle.
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()

	outcome, err := s.renew(ctx)
	switch outcome {
	case acme.OutcomeRenewed:
		s.log.Info("certificates renewed", logger.Elapsed(start))
		if err := s.apply(ctx); err != nil {
			s.log.Error("apply after renewal failed", logger.Error(err))
		}
	case acme.OutcomeFailed:
		s.log.Error("renewal pass failed, will retry next cycle", logger.Error(err))
	default:
		s.log.Debug("no certificates due for renewal")
	}
}
