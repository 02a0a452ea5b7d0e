package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/spendguard/internal/domain"
)

const transactionColumns = `id, idempotency_key, description, metadata, created_at`

const ledgerColumns = `id, seq, transaction_id, account_id, direction, amount, currency,
	balance_after, created_at`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	var metadata *string
	if len(tx.Metadata) > 0 {
		m := string(tx.Metadata)
		metadata = &m
	}
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO transactions (id, idempotency_key, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		tx.ID, tx.IdempotencyKey, tx.Description, metadata, tx.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("CreateTransaction: %w", domain.ErrDuplicateIdempotencyKey)
		}
		return fmt.Errorf("CreateTransaction: %w", err)
	}
	return nil
}

func (r *LedgerRepository) CreateEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`INSERT INTO ledger_entries (
			id, transaction_id, account_id, direction, amount, currency,
			balance_after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`,
		entry.ID, entry.TransactionID, entry.AccountID, entry.Direction,
		entry.Amount, entry.Currency, entry.BalanceAfter, entry.CreatedAt,
	).Scan(&entry.Sequence)
	if err != nil {
		return fmt.Errorf("CreateEntry: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id,
	)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetTransactionByID: %w", domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("GetTransactionByID: %w", err)
	}
	return tx, nil
}

func (r *LedgerRepository) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`, key,
	)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetTransactionByIdempotencyKey: %w", domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("GetTransactionByIdempotencyKey: %w", err)
	}
	return tx, nil
}

func (r *LedgerRepository) GetEntriesByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE transaction_id = $1 ORDER BY seq`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetEntriesByTransactionID: %w", err)
	}
	defer rows.Close()

	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("GetEntriesByTransactionID: %w", err)
	}
	return entries, nil
}

// GetByAccountID pages through an account's entries newest first and
// returns the total entry count alongside.
func (r *LedgerRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	q := conn(ctx, r.db)

	var total int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1`, accountID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByAccountID: count: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE account_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByAccountID: %w", err)
	}
	defer rows.Close()

	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByAccountID: %w", err)
	}
	return entries, total, nil
}

// BalanceOf is the sum of debits minus the sum of credits posted to the account.
func (r *LedgerRepository) BalanceOf(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var balance int64
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN direction = 'DEBIT' THEN amount ELSE -amount END), 0)
		FROM ledger_entries WHERE account_id = $1`, accountID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("BalanceOf: %w", err)
	}
	return balance, nil
}

// BalancesOf returns the balance of each account; accounts without entries
// map to zero.
func (r *LedgerRepository) BalancesOf(ctx context.Context, accountIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	balances := make(map[uuid.UUID]int64, len(accountIDs))
	for _, id := range accountIDs {
		balances[id] = 0
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT account_id, SUM(CASE WHEN direction = 'DEBIT' THEN amount ELSE -amount END)
		FROM ledger_entries WHERE account_id = ANY($1::uuid[]) GROUP BY account_id`,
		uuidArray(accountIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("BalancesOf: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var balance int64
		if err := rows.Scan(&id, &balance); err != nil {
			return nil, fmt.Errorf("BalancesOf: scan: %w", err)
		}
		balances[id] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("BalancesOf: rows: %w", err)
	}
	return balances, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var metadata []byte
	err := s.Scan(&tx.ID, &tx.IdempotencyKey, &tx.Description, &metadata, &tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	tx.Metadata = metadata
	return &tx, nil
}

func scanLedgerEntries(rows *sql.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.Scan(
		&e.ID, &e.Sequence, &e.TransactionID, &e.AccountID, &e.Direction,
		&e.Amount, &e.Currency, &e.BalanceAfter, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
