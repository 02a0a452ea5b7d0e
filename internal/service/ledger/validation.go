package ledger

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/josh-kwaku/spendguard/internal/domain"
)

func validateTransaction(tx *domain.Transaction) error {
	if tx == nil || len(tx.Entries) == 0 {
		return fmt.Errorf("validateTransaction: %w", domain.ErrEmptyTransaction)
	}
	if tx.IdempotencyKey != nil && *tx.IdempotencyKey == "" {
		return fmt.Errorf("validateTransaction: empty idempotency key: %w", domain.ErrInvalidRequest)
	}

	currency := tx.Entries[0].Currency
	if !currency.IsValid() {
		return fmt.Errorf("validateTransaction: %q: %w", currency, domain.ErrInvalidCurrency)
	}

	var debits, credits int64
	for i, e := range tx.Entries {
		if e.AccountID == uuid.Nil {
			return &domain.InvalidEntryError{Index: i, Reason: "account id is required"}
		}
		if e.Amount <= 0 {
			return &domain.InvalidEntryError{Index: i, Reason: fmt.Sprintf("amount must be positive, got %d", e.Amount)}
		}
		if e.Currency != currency {
			return fmt.Errorf("validateTransaction: entry %d is %s, expected %s: %w",
				i, e.Currency, currency, domain.ErrCurrencyMismatch)
		}

		switch e.Direction {
		case domain.DirectionDebit:
			if e.Amount > math.MaxInt64-debits {
				return &domain.InvalidEntryError{Index: i, Reason: "debit total overflows int64"}
			}
			debits += e.Amount
		case domain.DirectionCredit:
			if e.Amount > math.MaxInt64-credits {
				return &domain.InvalidEntryError{Index: i, Reason: "credit total overflows int64"}
			}
			credits += e.Amount
		default:
			return &domain.InvalidEntryError{Index: i, Reason: fmt.Sprintf("unknown direction %q", e.Direction)}
		}
	}

	if debits != credits {
		return &domain.UnbalancedTransactionError{Debits: debits, Credits: credits}
	}
	return nil
}

// applyEntry returns balance moved by an entry, or false when the result
// does not fit in an int64.
func applyEntry(balance int64, dir domain.Direction, amount int64) (int64, bool) {
	delta := dir.Signed(amount)
	if (delta > 0 && balance > math.MaxInt64-delta) || (delta < 0 && balance < math.MinInt64-delta) {
		return 0, false
	}
	return balance + delta, true
}
