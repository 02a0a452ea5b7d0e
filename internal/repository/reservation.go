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

const reservationColumns = `id, budget_id, amount, currency, agent_id, expires_at, created_at`

type ReservationRepository struct {
	db *sql.DB
}

func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, res *domain.BudgetReservation) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO budget_reservations (id, budget_id, amount, currency, agent_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.ID, res.BudgetID, res.Amount, res.Currency, res.AgentID, res.ExpiresAt, res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.BudgetReservation, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM budget_reservations WHERE id = $1`, id,
	)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrReservationNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return res, nil
}

// Delete removes the reservation and returns the removed row. Of two
// concurrent callers only one gets the row back.
func (r *ReservationRepository) Delete(ctx context.Context, id uuid.UUID) (*domain.BudgetReservation, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`DELETE FROM budget_reservations WHERE id = $1 RETURNING `+reservationColumns, id,
	)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Delete: %w", domain.ErrReservationNotFound)
		}
		return nil, fmt.Errorf("Delete: %w", err)
	}
	return res, nil
}

func (r *ReservationRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]domain.BudgetReservation, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM budget_reservations
		WHERE expires_at < $1 ORDER BY budget_id, expires_at LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListExpired: %w", err)
	}
	defer rows.Close()

	out, err := scanReservations(rows)
	if err != nil {
		return nil, fmt.Errorf("ListExpired: %w", err)
	}
	return out, nil
}

// DeleteExpired deletes the listed reservations that still exist and are
// still expired at before, returning only the rows it removed.
func (r *ReservationRepository) DeleteExpired(ctx context.Context, ids []uuid.UUID, before time.Time) ([]domain.BudgetReservation, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`DELETE FROM budget_reservations
		WHERE id = ANY($1::uuid[]) AND expires_at < $2
		RETURNING `+reservationColumns,
		uuidArray(ids), before,
	)
	if err != nil {
		return nil, fmt.Errorf("DeleteExpired: %w", err)
	}
	defer rows.Close()

	out, err := scanReservations(rows)
	if err != nil {
		return nil, fmt.Errorf("DeleteExpired: %w", err)
	}
	return out, nil
}

func scanReservations(rows *sql.Rows) ([]domain.BudgetReservation, error) {
	var out []domain.BudgetReservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func scanReservation(s scanner) (*domain.BudgetReservation, error) {
	var res domain.BudgetReservation
	err := s.Scan(
		&res.ID, &res.BudgetID, &res.Amount, &res.Currency, &res.AgentID,
		&res.ExpiresAt, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
