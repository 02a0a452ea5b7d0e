package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/spendguard/internal/domain"
)

// Posting carries the fields shared by the two-leg helpers.
type Posting struct {
	Amount         int64
	Currency       domain.Currency
	Description    string
	IdempotencyKey *string
	Metadata       json.RawMessage
}

func (p Posting) transaction(entries ...domain.EntryInput) *domain.Transaction {
	return &domain.Transaction{
		IdempotencyKey: p.IdempotencyKey,
		Description:    p.Description,
		Metadata:       p.Metadata,
		Entries:        entries,
	}
}

func (p Posting) leg(account uuid.UUID, dir domain.Direction) domain.EntryInput {
	return domain.EntryInput{AccountID: account, Direction: dir, Amount: p.Amount, Currency: p.Currency}
}

// RecordTransfer moves value out of from (credit) and into to (debit).
func (r *Recorder) RecordTransfer(ctx context.Context, from, to uuid.UUID, p Posting) (*domain.RecordedTransaction, error) {
	if from == to {
		return nil, fmt.Errorf("RecordTransfer: source and destination are the same account: %w", domain.ErrInvalidRequest)
	}
	rec, err := r.RecordTransaction(ctx, p.transaction(
		p.leg(from, domain.DirectionCredit),
		p.leg(to, domain.DirectionDebit),
	))
	if err != nil {
		return nil, fmt.Errorf("RecordTransfer: %w", err)
	}
	return rec, nil
}

// RecordExpense debits the expense account and credits the account that paid.
func (r *Recorder) RecordExpense(ctx context.Context, expenseAccount, paymentAccount uuid.UUID, p Posting) (*domain.RecordedTransaction, error) {
	rec, err := r.RecordTransaction(ctx, p.transaction(
		p.leg(expenseAccount, domain.DirectionDebit),
		p.leg(paymentAccount, domain.DirectionCredit),
	))
	if err != nil {
		return nil, fmt.Errorf("RecordExpense: %w", err)
	}
	return rec, nil
}

// RecordRevenue credits the revenue account and debits the account that
// received the money.
func (r *Recorder) RecordRevenue(ctx context.Context, revenueAccount, receivingAccount uuid.UUID, p Posting) (*domain.RecordedTransaction, error) {
	rec, err := r.RecordTransaction(ctx, p.transaction(
		p.leg(revenueAccount, domain.DirectionCredit),
		p.leg(receivingAccount, domain.DirectionDebit),
	))
	if err != nil {
		return nil, fmt.Errorf("RecordRevenue: %w", err)
	}
	return rec, nil
}

// ReverseTransaction records a new transaction that offsets every entry of
// the original with the opposite direction. The original is left as is.
func (r *Recorder) ReverseTransaction(ctx context.Context, id uuid.UUID, idempotencyKey *string) (*domain.RecordedTransaction, error) {
	original, err := r.GetTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ReverseTransaction: %w", err)
	}

	entries := make([]domain.EntryInput, 0, len(original.Entries))
	for _, e := range original.Entries {
		entries = append(entries, domain.EntryInput{
			AccountID: e.AccountID,
			Direction: e.Direction.Opposite(),
			Amount:    e.Amount,
			Currency:  e.Currency,
		})
	}

	metadata, err := json.Marshal(map[string]string{"reverses": id.String()})
	if err != nil {
		return nil, fmt.Errorf("ReverseTransaction: metadata: %w", err)
	}

	rec, err := r.RecordTransaction(ctx, &domain.Transaction{
		IdempotencyKey: idempotencyKey,
		Description:    "reversal of " + id.String(),
		Metadata:       metadata,
		Entries:        entries,
	})
	if err != nil {
		return nil, fmt.Errorf("ReverseTransaction: %w", err)
	}
	return rec, nil
}
