package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/spendguard/internal/domain"
	"github.com/josh-kwaku/spendguard/internal/logging"
	"github.com/josh-kwaku/spendguard/internal/metrics"
)

type accountRepo interface {
	LockForUpdate(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Account, error)
}

type ledgerRepo interface {
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	CreateEntry(ctx context.Context, entry *domain.LedgerEntry) error
	GetTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
	GetEntriesByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error)
	GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
	BalanceOf(ctx context.Context, accountID uuid.UUID) (int64, error)
	BalancesOf(ctx context.Context, accountIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

type txRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Recorder struct {
	accounts accountRepo
	ledger   ledgerRepo
	tx       txRunner
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRecorder(accounts accountRepo, ledger ledgerRepo, tx txRunner, m *metrics.Metrics) *Recorder {
	return &Recorder{
		accounts: accounts,
		ledger:   ledger,
		tx:       tx,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RecordTransaction writes a balanced transaction and one entry per input,
// in input order, each carrying its account's running balance. Nothing is
// written if any step fails.
func (r *Recorder) RecordTransaction(ctx context.Context, tx *domain.Transaction) (*domain.RecordedTransaction, error) {
	log := logging.FromContext(ctx)

	if err := validateTransaction(tx); err != nil {
		r.metrics.LedgerTransaction(metrics.OutcomeRejected)
		return nil, fmt.Errorf("RecordTransaction: %w", err)
	}

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}

	var recorded *domain.RecordedTransaction
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		recorded, err = r.write(ctx, tx)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			r.metrics.LedgerTransaction(metrics.OutcomeDuplicate)
		} else {
			r.metrics.LedgerTransaction(metrics.OutcomeError)
		}
		return nil, fmt.Errorf("RecordTransaction: %w", err)
	}

	r.metrics.LedgerTransaction(metrics.OutcomeRecorded)
	log.Info("ledger transaction recorded",
		"transaction_id", recorded.TransactionID,
		"entries", len(recorded.Entries),
		"currency", tx.Currency(),
	)
	return recorded, nil
}

func (r *Recorder) write(ctx context.Context, tx *domain.Transaction) (*domain.RecordedTransaction, error) {
	ids := touchedAccounts(tx.Entries)

	locked, err := r.accounts.LockForUpdate(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lock accounts: %w", err)
	}
	for _, id := range ids {
		acct, ok := locked[id]
		if !ok {
			return nil, fmt.Errorf("account %s: %w", id, domain.ErrAccountNotFound)
		}
		if acct.Currency != tx.Currency() {
			return nil, fmt.Errorf("account %s holds %s, transaction is %s: %w",
				id, acct.Currency, tx.Currency(), domain.ErrCurrencyMismatch)
		}
	}

	// Stamped after the locks so entry times follow the order balances run in.
	tx.CreatedAt = r.now()

	balances, err := r.ledger.BalancesOf(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("read balances: %w", err)
	}

	if err := r.ledger.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	entries := make([]domain.LedgerEntry, 0, len(tx.Entries))
	for _, in := range tx.Entries {
		next, ok := applyEntry(balances[in.AccountID], in.Direction, in.Amount)
		if !ok {
			return nil, fmt.Errorf("account %s: %w", in.AccountID, domain.ErrBalanceOverflow)
		}
		balances[in.AccountID] = next
		entry := domain.LedgerEntry{
			ID:            uuid.New(),
			TransactionID: tx.ID,
			AccountID:     in.AccountID,
			Direction:     in.Direction,
			Amount:        in.Amount,
			Currency:      in.Currency,
			BalanceAfter:  balances[in.AccountID],
			CreatedAt:     tx.CreatedAt,
		}
		if err := r.ledger.CreateEntry(ctx, &entry); err != nil {
			return nil, fmt.Errorf("create entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return &domain.RecordedTransaction{
		TransactionID:  tx.ID,
		IdempotencyKey: tx.IdempotencyKey,
		Description:    tx.Description,
		Metadata:       tx.Metadata,
		Entries:        entries,
		RecordedAt:     tx.CreatedAt,
	}, nil
}

// IsTransactionIdempotent returns the transaction already recorded under
// key, or nil when the key is unused.
func (r *Recorder) IsTransactionIdempotent(ctx context.Context, key string) (*domain.RecordedTransaction, error) {
	tx, err := r.ledger.GetTransactionByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("IsTransactionIdempotent: %w", err)
	}

	recorded, err := r.load(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("IsTransactionIdempotent: %w", err)
	}
	return recorded, nil
}

func (r *Recorder) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.RecordedTransaction, error) {
	tx, err := r.ledger.GetTransactionByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}

	recorded, err := r.load(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return recorded, nil
}

func (r *Recorder) AccountBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	balance, err := r.ledger.BalanceOf(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("AccountBalance: %w", err)
	}
	return balance, nil
}

func (r *Recorder) AccountEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	entries, total, err := r.ledger.GetByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("AccountEntries: %w", err)
	}
	return entries, total, nil
}

func (r *Recorder) load(ctx context.Context, tx *domain.Transaction) (*domain.RecordedTransaction, error) {
	entries, err := r.ledger.GetEntriesByTransactionID(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	return &domain.RecordedTransaction{
		TransactionID:  tx.ID,
		IdempotencyKey: tx.IdempotencyKey,
		Description:    tx.Description,
		Metadata:       tx.Metadata,
		Entries:        entries,
		RecordedAt:     tx.CreatedAt,
	}, nil
}

// touchedAccounts returns the distinct account ids sorted, which is the
// order rows are locked in.
func touchedAccounts(entries []domain.EntryInput) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		if !slices.Contains(ids, e.AccountID) {
			ids = append(ids, e.AccountID)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids
}
