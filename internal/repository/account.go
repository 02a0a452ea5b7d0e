package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/spendguard/internal/domain"
)

const accountColumns = `id, name, account_type, currency, agent_id, team_id, department_id,
	created_at, updated_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO accounts (
			id, name, account_type, currency, agent_id, team_id, department_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		account.ID, account.Name, account.Type, account.Currency,
		account.Tags.AgentID, account.Tags.TeamID, account.Tags.DepartmentID,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

// GetByAgentID returns the oldest account tagged with the agent.
func (r *AccountRepository) GetByAgentID(ctx context.Context, agentID string) (*domain.Account, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		WHERE agent_id = $1 ORDER BY created_at, id LIMIT 1`, agentID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByAgentID: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByAgentID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) UpdateTags(ctx context.Context, id uuid.UUID, tags domain.AccountTags) (*domain.Account, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`UPDATE accounts SET agent_id = $1, team_id = $2, department_id = $3, updated_at = now()
		WHERE id = $4 RETURNING `+accountColumns,
		tags.AgentID, tags.TeamID, tags.DepartmentID, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("UpdateTags: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("UpdateTags: %w", err)
	}
	return a, nil
}

// LockForUpdate row-locks the accounts in id order and must run inside
// DB.InTx. Ids that do not exist are absent from the result.
func (r *AccountRepository) LockForUpdate(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	if _, ok := TxFromContext(ctx); !ok {
		return nil, errors.New("LockForUpdate: called outside a transaction")
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`, uuidArray(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("LockForUpdate: %w", err)
	}
	defer rows.Close()

	locked := make(map[uuid.UUID]*domain.Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("LockForUpdate: scan: %w", err)
		}
		locked[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LockForUpdate: rows: %w", err)
	}
	return locked, nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.Name, &a.Type, &a.Currency,
		&a.Tags.AgentID, &a.Tags.TeamID, &a.Tags.DepartmentID,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
