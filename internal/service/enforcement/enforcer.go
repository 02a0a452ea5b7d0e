package enforcement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/spendguard/internal/config"
	"github.com/josh-kwaku/spendguard/internal/domain"
	"github.com/josh-kwaku/spendguard/internal/logging"
	"github.com/josh-kwaku/spendguard/internal/metrics"
)

const tracerName = "github.com/josh-kwaku/spendguard/internal/service/enforcement"

type budgetStore interface {
	GetBudget(ctx context.Context, level domain.BudgetLevel, levelID string, asOf time.Time) (*domain.Budget, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.BudgetReservation, error)
	CreateBudgetReservation(ctx context.Context, budgetID uuid.UUID, amount int64, agentID string, currency domain.Currency) (*domain.BudgetReservation, error)
	ConsumeBudgetReservation(ctx context.Context, id uuid.UUID) (*domain.Budget, error)
	CancelBudgetReservation(ctx context.Context, id uuid.UUID) (*domain.Budget, error)
	UpdateSpentAmount(ctx context.Context, budgetID uuid.UUID, amount, expectedVersion int64) (*domain.Budget, error)
}

// Enforcer admits spend only when every budgeted level of the agent's
// hierarchy can cover it.
type Enforcer struct {
	store   budgetStore
	cfg     config.EngineConfig
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

func NewEnforcer(store budgetStore, cfg config.EngineConfig, m *metrics.Metrics) *Enforcer {
	return &Enforcer{
		store:   store,
		cfg:     cfg,
		metrics: m,
		tracer:  otel.Tracer(tracerName),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (e *Enforcer) CheckHierarchicalBudget(ctx context.Context, path domain.HierarchyPath, amount int64) (check *domain.HierarchyCheck, err error) {
	ctx, span := e.start(ctx, "CheckHierarchicalBudget", path, amount)
	defer func() { e.finish(span, "check", check, err) }()

	check, _, err = e.evaluate(ctx, path, amount, "", nil)
	if err != nil {
		return nil, fmt.Errorf("CheckHierarchicalBudget: %w", err)
	}
	return check, nil
}

// ReserveBudget holds amount against the most specific budgeted level once
// the whole hierarchy admits it.
func (e *Enforcer) ReserveBudget(ctx context.Context, path domain.HierarchyPath, amount int64, agentID string, currency domain.Currency) (res *domain.BudgetReservation, err error) {
	log := logging.FromContext(ctx)
	ctx, span := e.start(ctx, "ReserveBudget", path, amount)
	var check *domain.HierarchyCheck
	defer func() { e.finish(span, "reserve", check, err) }()

	check, budgets, err := e.evaluate(ctx, path, amount, currency, nil)
	if err != nil {
		return nil, fmt.Errorf("ReserveBudget: %w", err)
	}
	if !check.Allowed {
		log.Info("reservation denied", "agent_id", agentID, "amount", amount, "reasons", check.Reasons)
		return nil, fmt.Errorf("ReserveBudget: %w", domain.NewBudgetExceededError(amount, check))
	}

	target := targetBudget(path, budgets)
	res, err = e.store.CreateBudgetReservation(ctx, target.ID, amount, agentID, currency)
	if err != nil {
		return nil, fmt.Errorf("ReserveBudget: %w", err)
	}
	span.SetAttributes(attribute.String("reservation_id", res.ID.String()))
	return res, nil
}

// SpendFromReservation converts a live reservation into spend after
// re-checking the hierarchy. An expired or no longer affordable reservation
// is cancelled instead.
func (e *Enforcer) SpendFromReservation(ctx context.Context, path domain.HierarchyPath, reservationID uuid.UUID) (b *domain.Budget, err error) {
	ctx = logging.With(ctx, "reservation_id", reservationID)
	log := logging.FromContext(ctx)

	res, err := e.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("SpendFromReservation: %w", err)
	}

	ctx, span := e.start(ctx, "SpendFromReservation", path, res.Amount)
	var check *domain.HierarchyCheck
	defer func() { e.finish(span, "spend_reservation", check, err) }()

	if res.Expired(e.now()) {
		if err := e.cancelQuietly(ctx, reservationID); err != nil {
			return nil, fmt.Errorf("SpendFromReservation: cancel expired: %w", err)
		}
		log.Info("expired reservation cancelled on spend", "expired_at", res.ExpiresAt)
		return nil, fmt.Errorf("SpendFromReservation: %w", domain.ErrReservationExpired)
	}

	check, _, err = e.evaluate(ctx, path, res.Amount, res.Currency, res)
	if err != nil {
		return nil, fmt.Errorf("SpendFromReservation: %w", err)
	}
	if !check.Allowed {
		if err := e.cancelQuietly(ctx, reservationID); err != nil {
			return nil, fmt.Errorf("SpendFromReservation: cancel denied: %w", err)
		}
		log.Info("reservation spend denied", "amount", res.Amount, "reasons", check.Reasons)
		return nil, fmt.Errorf("SpendFromReservation: %w", domain.NewBudgetExceededError(res.Amount, check))
	}

	b, err = e.store.ConsumeBudgetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("SpendFromReservation: %w", err)
	}
	return b, nil
}

// ReleaseReservation cancels a reservation the caller no longer needs.
func (e *Enforcer) ReleaseReservation(ctx context.Context, reservationID uuid.UUID) (*domain.Budget, error) {
	b, err := e.store.CancelBudgetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("ReleaseReservation: %w", err)
	}
	return b, nil
}

// cancelQuietly cancels a reservation, treating one that is already gone as
// done.
func (e *Enforcer) cancelQuietly(ctx context.Context, id uuid.UUID) error {
	_, err := e.store.CancelBudgetReservation(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrReservationNotFound) {
		return err
	}
	return nil
}

// evaluate checks amount against every enforced level of path. Every
// budget found must be in currency; an empty currency is taken from the
// first budget. hold, when set, is a reservation made for this same amount;
// it is credited back at the budget it sits on.
func (e *Enforcer) evaluate(ctx context.Context, path domain.HierarchyPath, amount int64, currency domain.Currency, hold *domain.BudgetReservation) (*domain.HierarchyCheck, map[domain.BudgetLevel]*domain.Budget, error) {
	if amount <= 0 {
		return nil, nil, domain.ErrInvalidAmount
	}
	levels := path.Levels()

	now := e.now()
	result := &domain.HierarchyCheck{Allowed: true}
	if len(levels) > 0 {
		result.DecidingLevel = levels[0].Level
		result.DecidingLevelID = levels[0].LevelID
	}
	budgets := make(map[domain.BudgetLevel]*domain.Budget, len(levels))

	for _, ref := range levels {
		b, err := e.store.GetBudget(ctx, ref.Level, ref.LevelID, now)
		if errors.Is(err, domain.ErrBudgetNotFound) {
			if e.cfg.RequireBudgetAtEveryLevel {
				reason := fmt.Sprintf("no budget configured for %s %s", ref.Level, ref.LevelID)
				result.Checks = append(result.Checks, domain.BudgetCheck{
					Level:     ref.Level,
					LevelID:   ref.LevelID,
					Requested: amount,
					Shortfall: amount,
					Reason:    reason,
				})
				result.Allowed = false
				result.Reasons = append(result.Reasons, reason)
			}
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s %s: %w", ref.Level, ref.LevelID, err)
		}
		if currency == "" {
			currency = b.Currency
		}
		if b.Currency != currency {
			return nil, nil, fmt.Errorf("%s %s budget is %s, expected %s: %w",
				ref.Level, ref.LevelID, b.Currency, currency, domain.ErrCurrencyMismatch)
		}

		var held int64
		if hold != nil && hold.BudgetID == b.ID {
			held = hold.Amount
		}
		c := b.Check(amount, held)
		result.Checks = append(result.Checks, c)
		budgets[ref.Level] = b
		if !c.Allowed {
			result.Allowed = false
			result.Reasons = append(result.Reasons, c.Reason)
		}
	}

	if len(budgets) == 0 {
		result.Allowed = false
		result.Reasons = append(result.Reasons, "no budgets found")
	}
	return result, budgets, nil
}

// targetBudget is the most specific level of path that has a budget.
func targetBudget(path domain.HierarchyPath, budgets map[domain.BudgetLevel]*domain.Budget) *domain.Budget {
	for _, ref := range path.Levels() {
		if b, ok := budgets[ref.Level]; ok {
			return b
		}
	}
	return nil
}

func (e *Enforcer) start(ctx context.Context, op string, path domain.HierarchyPath, amount int64) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "enforcement."+op, trace.WithAttributes(
		attribute.String("agent_id", path.AgentID),
		attribute.String("team_id", path.TeamID),
		attribute.String("department_id", path.DepartmentID),
		attribute.Int64("amount", amount),
	))
}

func (e *Enforcer) finish(span trace.Span, op string, check *domain.HierarchyCheck, err error) {
	defer span.End()

	var exceeded *domain.BudgetExceededError
	switch {
	case errors.As(err, &exceeded):
		e.metrics.Decision(op, metrics.OutcomeDenied)
		span.SetAttributes(attribute.Bool("allowed", false))
	case err != nil:
		e.metrics.Decision(op, metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case check != nil && !check.Allowed:
		e.metrics.Decision(op, metrics.OutcomeDenied)
		span.SetAttributes(attribute.Bool("allowed", false))
	default:
		e.metrics.Decision(op, metrics.OutcomeAllowed)
		span.SetAttributes(attribute.Bool("allowed", true))
	}
	if check != nil {
		span.SetAttributes(attribute.String("deciding_level", string(check.DecidingLevel)))
	}
}
