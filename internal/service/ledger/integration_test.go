package ledger_test

import (
	"context"
	"database/sql"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/spendguard/internal/domain"
	"github.com/josh-kwaku/spendguard/internal/metrics"
	"github.com/josh-kwaku/spendguard/internal/repository"
	"github.com/josh-kwaku/spendguard/internal/service/ledger"
	"github.com/josh-kwaku/spendguard/internal/testutil"
)

func setupRecorder(t *testing.T, db *sql.DB) *ledger.Recorder {
	t.Helper()
	return ledger.NewRecorder(
		repository.NewAccountRepository(db),
		repository.NewLedgerRepository(db),
		repository.NewDB(db),
		metrics.New(prometheus.NewRegistry()),
	)
}

func seedPair(t *testing.T, db *sql.DB) (*domain.Account, *domain.Account) {
	t.Helper()
	cash := testutil.SeedAccount(t, db, "cash", domain.AccountTypeAsset, "USD", domain.AccountTags{})
	spend := testutil.SeedAccount(t, db, "llm spend", domain.AccountTypeExpense, "USD", domain.AccountTags{AgentID: testutil.Ptr("agent-1")})
	return cash, spend
}

func TestRecordTransaction_RunningBalances(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := setupRecorder(t, db)
	ctx := context.Background()
	a, b := seedPair(t, db)

	first, err := rec.RecordTransaction(ctx, &domain.Transaction{
		Description: "seed",
		Entries: []domain.EntryInput{
			{AccountID: a.ID, Direction: domain.DirectionDebit, Amount: 1000, Currency: "USD"},
			{AccountID: b.ID, Direction: domain.DirectionCredit, Amount: 1000, Currency: "USD"},
		},
	})
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	assert.Equal(t, int64(1000), first.Entries[0].BalanceAfter)
	assert.Equal(t, int64(-1000), first.Entries[1].BalanceAfter)

	second, err := rec.RecordTransaction(ctx, &domain.Transaction{
		Entries: []domain.EntryInput{
			{AccountID: a.ID, Direction: domain.DirectionCredit, Amount: 250, Currency: "USD"},
			{AccountID: b.ID, Direction: domain.DirectionDebit, Amount: 250, Currency: "USD"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(750), second.Entries[0].BalanceAfter)
	assert.Equal(t, int64(-750), second.Entries[1].BalanceAfter)

	balance, err := rec.AccountBalance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(750), balance)

	entries, total, err := rec.AccountEntries(ctx, a.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].BalanceAfter, balance, "newest entry carries the current balance")
}

func TestRecordTransaction_SameAccountTwiceInOneTransaction(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := setupRecorder(t, db)
	ctx := context.Background()
	a, b := seedPair(t, db)

	got, err := rec.RecordTransaction(ctx, &domain.Transaction{
		Entries: []domain.EntryInput{
			{AccountID: a.ID, Direction: domain.DirectionDebit, Amount: 100, Currency: "USD"},
			{AccountID: a.ID, Direction: domain.DirectionDebit, Amount: 50, Currency: "USD"},
			{AccountID: b.ID, Direction: domain.DirectionCredit, Amount: 150, Currency: "USD"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Entries[0].BalanceAfter)
	assert.Equal(t, int64(150), got.Entries[1].BalanceAfter)
	assert.Equal(t, int64(-150), got.Entries[2].BalanceAfter)
}

func TestRecordTransaction_UnbalancedWritesNothing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := setupRecorder(t, db)
	ctx := context.Background()
	a, b := seedPair(t, db)

	_, err := rec.RecordTransaction(ctx, &domain.Transaction{
		Entries: []domain.EntryInput{
			{AccountID: a.ID, Direction: domain.DirectionDebit, Amount: 100, Currency: "USD"},
			{AccountID: b.ID, Direction: domain.DirectionCredit, Amount: 99, Currency: "USD"},
		},
	})
	require.ErrorIs(t, err, domain.ErrUnbalancedTransaction)
	assert.Equal(t, 0, testutil.CountTransactions(t, db))
}

func TestRecordTransaction_BalanceOverflowWritesNothing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := setupRecorder(t, db)
	ctx := context.Background()
	a, b := seedPair(t, db)

	_, err := rec.RecordTransaction(ctx, &domain.Transaction{
		Entries: []domain.EntryInput{
			{AccountID: a.ID, Direction: domain.DirectionDebit, Amount: math.MaxInt64, Currency: "USD"},
			{AccountID: b.ID, Direction: domain.DirectionCredit, Amount: math.MaxInt64, Currency: "USD"},
		},
	})
	require.NoError(t, err)

	_, err = rec.RecordTransaction(ctx, &domain.Transaction{
		Entries: []domain.EntryInput{
			{AccountID: a.ID, Direction: domain.DirectionDebit, Amount: 1, Currency: "USD"},
			{AccountID: b.ID, Direction: domain.DirectionCredit, Amount: 1, Currency: "USD"},
		},
	})
	require.ErrorIs(t, err, domain.ErrBalanceOverflow)
	assert.Equal(t, 1, testutil.CountTransactions(t, db))

	balance, err := rec.AccountBalance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), balance)
}

func TestRecordTransaction_UnknownAccountRollsBack(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := setupRecorder(t, db)
	ctx := context.Background()
	a, _ := seedPair(t, db)

	_, err := rec.RecordTransaction(ctx, &domain.Transaction{
		Entries: []domain.EntryInput{
			{AccountID: a.ID, Direction: domain.DirectionDebit, Amount: 100, Currency: "USD"},
			{AccountID: uuid.New(), Direction: domain.DirectionCredit, Amount: 100, Currency: "USD"},
		},
	})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Equal(t, 0, testutil.CountTransactions(t, db))
}

func TestRecordTransaction_AccountCurrencyMismatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := setupRecorder(t, db)
	ctx := context.Background()
	a, _ := seedPair(t, db)
	eur := testutil.SeedAccount(t, db, "eur cash", domain.AccountTypeAsset, "EUR", domain.AccountTags{})

	_, err := rec.RecordTransaction(ctx, &domain.Transaction{
		Entries: []domain.EntryInput{
			{AccountID: a.ID, Direction: domain.DirectionDebit, Amount: 100, Currency: "USD"},
			{AccountID: eur.ID, Direction: domain.DirectionCredit, Amount: 100, Currency: "USD"},
		},
	})
	require.ErrorIs(t, err, domain.ErrCurrencyMismatch)
}

func TestRecordTransaction_Idempotency(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := setupRecorder(t, db)
	ctx := context.Background()
	a, b := seedPair(t, db)
	key := "run-42-step-3"

	prior, err := rec.IsTransactionIdempotent(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, prior)

	first, err := rec.RecordExpense(ctx, b.ID, a.ID, ledger.Posting{
		Amount: 300, Currency: "USD", Description: "completion tokens", IdempotencyKey: &key,
	})
	require.NoError(t, err)

	_, err = rec.RecordExpense(ctx, b.ID, a.ID, ledger.Posting{
		Amount: 300, Currency: "USD", Description: "completion tokens", IdempotencyKey: &key,
	})
	require.ErrorIs(t, err, domain.ErrDuplicateIdempotencyKey)
	assert.Equal(t, 1, testutil.CountTransactions(t, db))

	prior, err = rec.IsTransactionIdempotent(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, first.TransactionID, prior.TransactionID)
	assert.Len(t, prior.Entries, 2)
}

func TestTwoLegHelpers_Directions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := setupRecorder(t, db)
	ctx := context.Background()
	cash, spend := seedPair(t, db)
	revenue := testutil.SeedAccount(t, db, "resale", domain.AccountTypeRevenue, "USD", domain.AccountTags{})
	wallet := testutil.SeedAccount(t, db, "wallet", domain.AccountTypeAsset, "USD", domain.AccountTags{})

	transfer, err := rec.RecordTransfer(ctx, cash.ID, wallet.ID, ledger.Posting{Amount: 10, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionCredit, transfer.Entries[0].Direction)
	assert.Equal(t, cash.ID, transfer.Entries[0].AccountID)
	assert.Equal(t, domain.DirectionDebit, transfer.Entries[1].Direction)

	expense, err := rec.RecordExpense(ctx, spend.ID, cash.ID, ledger.Posting{Amount: 20, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionDebit, expense.Entries[0].Direction)
	assert.Equal(t, spend.ID, expense.Entries[0].AccountID)

	income, err := rec.RecordRevenue(ctx, revenue.ID, cash.ID, ledger.Posting{Amount: 30, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionCredit, income.Entries[0].Direction)
	assert.Equal(t, revenue.ID, income.Entries[0].AccountID)

	_, err = rec.RecordTransfer(ctx, cash.ID, cash.ID, ledger.Posting{Amount: 10, Currency: "USD"})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestReverseTransaction_RestoresBalances(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := setupRecorder(t, db)
	ctx := context.Background()
	cash, spend := seedPair(t, db)

	original, err := rec.RecordExpense(ctx, spend.ID, cash.ID, ledger.Posting{Amount: 500, Currency: "USD"})
	require.NoError(t, err)

	reversal, err := rec.ReverseTransaction(ctx, original.TransactionID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, testutil.CountLedgerEntries(t, db, reversal.TransactionID))
	assert.Equal(t, domain.DirectionCredit, reversal.Entries[0].Direction)
	assert.JSONEq(t, `{"reverses":"`+original.TransactionID.String()+`"}`, string(reversal.Metadata))

	for _, id := range []uuid.UUID{cash.ID, spend.ID} {
		balance, err := rec.AccountBalance(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, balance)
	}

	_, err = rec.ReverseTransaction(ctx, uuid.New(), nil)
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestRecordTransaction_ConcurrentWritersKeepBalancesConsistent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := setupRecorder(t, db)
	ctx := context.Background()
	cash, spend := seedPair(t, db)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rec.RecordExpense(ctx, spend.ID, cash.ID, ledger.Posting{Amount: 25, Currency: "USD"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	balance, err := rec.AccountBalance(ctx, spend.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(writers*25), balance)

	entries, _, err := rec.AccountEntries(ctx, spend.ID, 100, 0)
	require.NoError(t, err)
	require.Len(t, entries, writers)
	// Newest first: each running balance is exactly one posting above the next.
	for i := 0; i < len(entries)-1; i++ {
		assert.Equal(t, entries[i+1].BalanceAfter+25, entries[i].BalanceAfter)
	}
}
