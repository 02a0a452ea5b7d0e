package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

func (d Direction) IsValid() bool {
	return d == DirectionDebit || d == DirectionCredit
}

func (d Direction) Opposite() Direction {
	if d == DirectionDebit {
		return DirectionCredit
	}
	return DirectionDebit
}

// Signed returns the effect of an entry of this direction on an account
// balance: debits increase it, credits decrease it.
func (d Direction) Signed(amount int64) int64 {
	if d == DirectionCredit {
		return -amount
	}
	return amount
}

type EntryInput struct {
	AccountID uuid.UUID
	Direction Direction
	Amount    int64
	Currency  Currency
}

type Transaction struct {
	ID             uuid.UUID
	IdempotencyKey *string
	Description    string
	Metadata       json.RawMessage
	Entries        []EntryInput
	CreatedAt      time.Time
}

// Currency reports the currency shared by the entries, or "" for an empty
// transaction.
func (t *Transaction) Currency() Currency {
	if len(t.Entries) == 0 {
		return ""
	}
	return t.Entries[0].Currency
}

type LedgerEntry struct {
	ID            uuid.UUID
	Sequence      int64
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	Direction     Direction
	Amount        int64
	Currency      Currency
	BalanceAfter  int64
	CreatedAt     time.Time
}

type RecordedTransaction struct {
	TransactionID  uuid.UUID
	IdempotencyKey *string
	Description    string
	Metadata       json.RawMessage
	Entries        []LedgerEntry
	RecordedAt     time.Time
}
