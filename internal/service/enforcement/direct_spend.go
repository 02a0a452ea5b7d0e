package enforcement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/josh-kwaku/spendguard/internal/domain"
	"github.com/josh-kwaku/spendguard/internal/logging"
)

// linearBackOff waits step, 2*step, 3*step, ... between attempts.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.step * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

func (e *Enforcer) retryPolicy(ctx context.Context) backoff.BackOff {
	retries := e.cfg.MaxRetryAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: e.cfg.RetryDelay}, uint64(retries)),
		ctx,
	)
}

// DirectSpend charges amount straight to the most specific budgeted level
// without a reservation. Every level is re-read and re-checked on each
// attempt; only version conflicts are retried.
func (e *Enforcer) DirectSpend(ctx context.Context, path domain.HierarchyPath, amount int64, description string) (spent *domain.Budget, err error) {
	log := logging.FromContext(ctx).With("agent_id", path.AgentID, "amount", amount)
	ctx, span := e.start(ctx, "DirectSpend", path, amount)
	var check *domain.HierarchyCheck
	defer func() { e.finish(span, "direct_spend", check, err) }()

	attempt := 0
	op := func() error {
		attempt++
		c, budgets, err := e.evaluate(ctx, path, amount, "", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		check = c
		if !c.Allowed {
			return backoff.Permanent(domain.NewBudgetExceededError(amount, c))
		}

		target := targetBudget(path, budgets)
		b, err := e.store.UpdateSpentAmount(ctx, target.ID, amount, target.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			e.metrics.VersionConflict()
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		spent = b
		return nil
	}

	notify := func(err error, wait time.Duration) {
		e.metrics.SpendRetry()
		log.Debug("direct spend conflicted, retrying", "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, e.retryPolicy(ctx), notify); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			log.Warn("direct spend gave up after conflicts", "attempts", attempt)
		}
		return nil, fmt.Errorf("DirectSpend: %w", err)
	}

	log.Info("direct spend recorded",
		"budget_id", spent.ID,
		"level", spent.Level,
		"description", description,
		"attempts", attempt,
	)
	return spent, nil
}
