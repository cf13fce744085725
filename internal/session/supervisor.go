package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/energy-stream/internal/activity"
	"github.com/YaganovValera/energy-stream/internal/metrics"
	"github.com/YaganovValera/energy-stream/internal/reconnect"
	"github.com/YaganovValera/energy-stream/pkg/logger"
)

// ErrReconnectBudgetExhausted is returned by Supervisor.Run when the policy
// gives up. The process should exit with a non-zero status.
var ErrReconnectBudgetExhausted = errors.New("reconnect budget exhausted")

// Runner is one connection attempt. *Session implements it.
type Runner interface {
	Run(ctx context.Context) Outcome
}

// Supervisor runs sessions one after another and asks the policy whether
// to retry after each recoverable ending.
type Supervisor struct {
	runner  Runner
	policy  reconnect.Policy
	status  *Status
	journal *activity.Journal
	log     *logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewSupervisor(runner Runner, policy reconnect.Policy, status *Status, journal *activity.Journal, log *logger.Logger) *Supervisor {
	return &Supervisor{
		runner:  runner,
		policy:  policy,
		status:  status,
		journal: journal,
		log:     log.Named("supervisor"),
		sleep:   sleepCtx,
	}
}

// Run blocks until a normal close, cancellation or an exhausted budget.
// Only the last one is an error.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		out := s.runner.Run(ctx)
		if out.Kind == Cancelled || ctx.Err() != nil {
			s.log.Info("supervisor: context cancelled, exiting")
			return nil
		}
		if !out.Recoverable() {
			s.log.Info("supervisor: session closed normally", zap.Int("code", out.Code))
			return nil
		}

		attempts := s.status.ReconnectAttempts()
		d := s.policy.Decide(attempts)
		if d.GiveUp {
			s.journal.Add(activity.Error, "Max reconnection attempts reached. Exiting.")
			return fmt.Errorf("%w: %d attempts, last: %v", ErrReconnectBudgetExhausted, attempts, out.Err)
		}

		n := s.status.IncrementAttempts()
		metrics.ReconnectAttempts.Inc()
		metrics.ReconnectDelay.Observe(d.Delay.Seconds())
		s.journal.Addf(activity.Info, "Reconnecting in %s (%d/%d)...", d.Delay, n, s.policy.MaxAttempts())
		s.log.Debug("supervisor: backing off",
			zap.Duration("delay", d.Delay),
			zap.Int("attempt", n),
			zap.String("outcome", out.Kind.String()),
		)

		if err := s.sleep(ctx, d.Delay); err != nil {
			return nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
