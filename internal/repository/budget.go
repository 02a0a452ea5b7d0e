package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/spendguard/internal/domain"
)

const budgetColumns = `id, level, level_id, total_amount, spent_amount, reserved_amount,
	currency, period_start, period_end, version, created_at, updated_at`

type BudgetRepository struct {
	db *sql.DB
}

func NewBudgetRepository(db *sql.DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

func (r *BudgetRepository) Create(ctx context.Context, b *domain.Budget) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO budgets (
			id, level, level_id, total_amount, spent_amount, reserved_amount,
			currency, period_start, period_end, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.Level, b.LevelID, b.TotalAmount, b.SpentAmount, b.ReservedAmount,
		b.Currency, b.PeriodStart, b.PeriodEnd, b.Version, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *BudgetRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Budget, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = $1`, id,
	)
	b, err := scanBudget(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrBudgetNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return b, nil
}

// GetActive returns the budget for the level whose period covers asOf. When
// periods overlap the one that started last wins.
func (r *BudgetRepository) GetActive(ctx context.Context, level domain.BudgetLevel, levelID string, asOf time.Time) (*domain.Budget, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets
		WHERE level = $1 AND level_id = $2 AND period_start <= $3 AND period_end >= $3
		ORDER BY period_start DESC, created_at DESC LIMIT 1`,
		level, levelID, asOf,
	)
	b, err := scanBudget(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetActive: %w", domain.ErrBudgetNotFound)
		}
		return nil, fmt.Errorf("GetActive: %w", err)
	}
	return b, nil
}

// AddReserved moves reserved_amount by delta without a version compare.
func (r *BudgetRepository) AddReserved(ctx context.Context, id uuid.UUID, delta int64) (*domain.Budget, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`UPDATE budgets SET reserved_amount = GREATEST(reserved_amount + $1, 0),
			version = version + 1, updated_at = now()
		WHERE id = $2 RETURNING `+budgetColumns,
		delta, id,
	)
	b, err := scanBudget(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("AddReserved: %w", domain.ErrBudgetNotFound)
		}
		return nil, fmt.Errorf("AddReserved: %w", err)
	}
	return b, nil
}

// ConsumeReserved turns amount of the reserved total into spend.
func (r *BudgetRepository) ConsumeReserved(ctx context.Context, id uuid.UUID, amount int64) (*domain.Budget, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`UPDATE budgets SET reserved_amount = GREATEST(reserved_amount - $1, 0),
			spent_amount = spent_amount + $1,
			version = version + 1, updated_at = now()
		WHERE id = $2 RETURNING `+budgetColumns,
		amount, id,
	)
	b, err := scanBudget(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ConsumeReserved: %w", domain.ErrBudgetNotFound)
		}
		return nil, fmt.Errorf("ConsumeReserved: %w", err)
	}
	return b, nil
}

// UpdateSpent adds amount to spent_amount only if the row is still at
// expectedVersion.
func (r *BudgetRepository) UpdateSpent(ctx context.Context, id uuid.UUID, amount, expectedVersion int64) (*domain.Budget, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`UPDATE budgets SET spent_amount = spent_amount + $1,
			version = version + 1, updated_at = now()
		WHERE id = $2 AND version = $3 RETURNING `+budgetColumns,
		amount, id, expectedVersion,
	)
	b, err := scanBudget(row)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("UpdateSpent: %w", err)
	}

	if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, domain.ErrBudgetNotFound) {
		return nil, fmt.Errorf("UpdateSpent: %w", domain.ErrBudgetNotFound)
	}
	return nil, fmt.Errorf("UpdateSpent: %w", domain.ErrVersionConflict)
}

func scanBudget(s scanner) (*domain.Budget, error) {
	var b domain.Budget
	err := s.Scan(
		&b.ID, &b.Level, &b.LevelID, &b.TotalAmount, &b.SpentAmount, &b.ReservedAmount,
		&b.Currency, &b.PeriodStart, &b.PeriodEnd, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
