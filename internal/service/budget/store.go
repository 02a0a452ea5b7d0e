package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/josh-kwaku/spendguard/internal/config"
	"github.com/josh-kwaku/spendguard/internal/domain"
	"github.com/josh-kwaku/spendguard/internal/logging"
	"github.com/josh-kwaku/spendguard/internal/metrics"
)

type budgetRepo interface {
	Create(ctx context.Context, b *domain.Budget) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Budget, error)
	GetActive(ctx context.Context, level domain.BudgetLevel, levelID string, asOf time.Time) (*domain.Budget, error)
	AddReserved(ctx context.Context, id uuid.UUID, delta int64) (*domain.Budget, error)
	ConsumeReserved(ctx context.Context, id uuid.UUID, amount int64) (*domain.Budget, error)
	UpdateSpent(ctx context.Context, id uuid.UUID, amount, expectedVersion int64) (*domain.Budget, error)
}

type reservationRepo interface {
	Create(ctx context.Context, r *domain.BudgetReservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BudgetReservation, error)
	Delete(ctx context.Context, id uuid.UUID) (*domain.BudgetReservation, error)
	ListExpired(ctx context.Context, before time.Time, limit int) ([]domain.BudgetReservation, error)
	DeleteExpired(ctx context.Context, ids []uuid.UUID, before time.Time) ([]domain.BudgetReservation, error)
}

type txRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Store struct {
	budgets      budgetRepo
	reservations reservationRepo
	tx           txRunner
	cfg          config.EngineConfig
	metrics      *metrics.Metrics
	validate     *validator.Validate
	now          func() time.Time
}

func NewStore(budgets budgetRepo, reservations reservationRepo, tx txRunner, cfg config.EngineConfig, m *metrics.Metrics) *Store {
	return &Store{
		budgets:      budgets,
		reservations: reservations,
		tx:           tx,
		cfg:          cfg,
		metrics:      m,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type CreateBudgetRequest struct {
	Level       domain.BudgetLevel `validate:"required,oneof=AGENT TEAM DEPARTMENT"`
	LevelID     string             `validate:"required,max=255"`
	TotalAmount int64              `validate:"gte=0"`
	Currency    domain.Currency    `validate:"required,len=3,uppercase"`
	PeriodStart time.Time          `validate:"required"`
	PeriodEnd   time.Time          `validate:"required,gtfield=PeriodStart"`
}

func (s *Store) CreateBudget(ctx context.Context, req CreateBudgetRequest) (*domain.Budget, error) {
	log := logging.FromContext(ctx)

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("CreateBudget: %w: %s", domain.ErrInvalidRequest, err)
	}

	now := s.now()
	b := &domain.Budget{
		ID:          uuid.New(),
		Level:       req.Level,
		LevelID:     req.LevelID,
		TotalAmount: req.TotalAmount,
		Currency:    req.Currency,
		PeriodStart: req.PeriodStart.UTC(),
		PeriodEnd:   req.PeriodEnd.UTC(),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.budgets.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("CreateBudget: %w", err)
	}

	log.Info("budget created",
		"budget_id", b.ID,
		"level", b.Level,
		"level_id", b.LevelID,
		"total_amount", b.TotalAmount,
		"currency", b.Currency,
	)
	return b, nil
}

// GetBudget returns the budget for the level whose period covers asOf.
func (s *Store) GetBudget(ctx context.Context, level domain.BudgetLevel, levelID string, asOf time.Time) (*domain.Budget, error) {
	if !level.IsValid() {
		return nil, fmt.Errorf("GetBudget: level %q: %w", level, domain.ErrInvalidRequest)
	}
	b, err := s.budgets.GetActive(ctx, level, levelID, asOf)
	if err != nil {
		return nil, fmt.Errorf("GetBudget: %w", err)
	}
	return b, nil
}

func (s *Store) GetBudgetByID(ctx context.Context, id uuid.UUID) (*domain.Budget, error) {
	b, err := s.budgets.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetBudgetByID: %w", err)
	}
	return b, nil
}

// GetHierarchyBudgets returns the active budget of every enforced level of
// path. Levels without a budget are absent from the map.
func (s *Store) GetHierarchyBudgets(ctx context.Context, path domain.HierarchyPath, asOf time.Time) (map[domain.BudgetLevel]*domain.Budget, error) {
	out := make(map[domain.BudgetLevel]*domain.Budget)
	for _, ref := range path.Levels() {
		b, err := s.budgets.GetActive(ctx, ref.Level, ref.LevelID, asOf)
		if errors.Is(err, domain.ErrBudgetNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("GetHierarchyBudgets: %s %s: %w", ref.Level, ref.LevelID, err)
		}
		out[ref.Level] = b
	}
	return out, nil
}

// CheckBudget is a read-only evaluation of amount against the active budget.
func (s *Store) CheckBudget(ctx context.Context, level domain.BudgetLevel, levelID string, amount int64, asOf time.Time) (*domain.BudgetCheck, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("CheckBudget: %w", domain.ErrInvalidAmount)
	}
	b, err := s.GetBudget(ctx, level, levelID, asOf)
	if err != nil {
		return nil, fmt.Errorf("CheckBudget: %w", err)
	}
	check := b.Check(amount, 0)
	return &check, nil
}

// UpdateSpentAmount adds amount to the budget's spend if nobody changed it
// since expectedVersion was read.
func (s *Store) UpdateSpentAmount(ctx context.Context, budgetID uuid.UUID, amount, expectedVersion int64) (*domain.Budget, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("UpdateSpentAmount: %w", domain.ErrInvalidAmount)
	}
	b, err := s.budgets.UpdateSpent(ctx, budgetID, amount, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("UpdateSpentAmount: %w", err)
	}
	return b, nil
}
