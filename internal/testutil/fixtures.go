package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/spendguard/internal/domain"
)

func SeedAccount(t *testing.T, db *sql.DB, name string, accountType domain.AccountType, currency string, tags domain.AccountTags) *domain.Account {
	t.Helper()

	now := time.Now().UTC()
	a := &domain.Account{
		ID:        uuid.New(),
		Name:      name,
		Type:      accountType,
		Currency:  domain.Currency(currency),
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := db.Exec(
		`INSERT INTO accounts (id, name, account_type, currency, agent_id, team_id, department_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Name, a.Type, a.Currency, tags.AgentID, tags.TeamID, tags.DepartmentID, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", name, err)
	}
	return a
}

// SeedBudget inserts a budget whose period started an hour ago and runs for
// a day.
func SeedBudget(t *testing.T, db *sql.DB, level domain.BudgetLevel, levelID string, total, spent, reserved int64) *domain.Budget {
	t.Helper()

	now := time.Now().UTC()
	b := &domain.Budget{
		ID:             uuid.New(),
		Level:          level,
		LevelID:        levelID,
		TotalAmount:    total,
		SpentAmount:    spent,
		ReservedAmount: reserved,
		Currency:       "USD",
		PeriodStart:    now.Add(-time.Hour),
		PeriodEnd:      now.Add(23 * time.Hour),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := db.Exec(
		`INSERT INTO budgets (id, level, level_id, total_amount, spent_amount, reserved_amount,
			currency, period_start, period_end, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.Level, b.LevelID, b.TotalAmount, b.SpentAmount, b.ReservedAmount,
		b.Currency, b.PeriodStart, b.PeriodEnd, b.Version, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed budget %s/%s: %v", level, levelID, err)
	}
	return b
}

// SeedReservation inserts a reservation row directly, without touching the
// budget's reserved total.
func SeedReservation(t *testing.T, db *sql.DB, budgetID uuid.UUID, amount int64, expiresAt time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO budget_reservations (id, budget_id, amount, currency, agent_id, expires_at, created_at)
		 VALUES ($1, $2, $3, 'USD', 'agent-seed', $4, $5)`,
		id, budgetID, amount, expiresAt, time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("seed reservation for budget %s: %v", budgetID, err)
	}
	return id
}

type BudgetRow struct {
	Spent    int64
	Reserved int64
	Version  int64
}

func GetBudgetRow(t *testing.T, db *sql.DB, budgetID uuid.UUID) BudgetRow {
	t.Helper()

	var row BudgetRow
	err := db.QueryRow(
		`SELECT spent_amount, reserved_amount, version FROM budgets WHERE id = $1`, budgetID,
	).Scan(&row.Spent, &row.Reserved, &row.Version)
	if err != nil {
		t.Fatalf("get budget %s: %v", budgetID, err)
	}
	return row
}

func CountReservations(t *testing.T, db *sql.DB, budgetID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM budget_reservations WHERE budget_id = $1`, budgetID).Scan(&count)
	if err != nil {
		t.Fatalf("count reservations for budget %s: %v", budgetID, err)
	}
	return count
}

func CountLedgerEntries(t *testing.T, db *sql.DB, transactionID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE transaction_id = $1`, transactionID).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries for transaction %s: %v", transactionID, err)
	}
	return count
}

func CountTransactions(t *testing.T, db *sql.DB) int {
	t.Helper()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return count
}

func Ptr[T any](v T) *T {
	return &v
}
