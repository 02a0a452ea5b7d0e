package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrBudgetNotFound          = errors.New("budget not found")
	ErrReservationNotFound     = errors.New("reservation not found")
	ErrReservationExpired      = errors.New("reservation expired")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrInvalidCurrency         = errors.New("invalid currency")
	ErrCurrencyMismatch        = errors.New("currency mismatch")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrEmptyTransaction        = errors.New("transaction has no entries")
	ErrInvalidEntry            = errors.New("invalid entry")
	ErrUnbalancedTransaction   = errors.New("unbalanced transaction")
	ErrVersionConflict         = errors.New("optimistic lock conflict")
	ErrBudgetExceeded          = errors.New("budget exceeded")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrBalanceOverflow         = errors.New("account balance out of range")
)

type UnbalancedTransactionError struct {
	Debits  int64
	Credits int64
}

func (e *UnbalancedTransactionError) Error() string {
	return fmt.Sprintf("unbalanced transaction: debits %d, credits %d", e.Debits, e.Credits)
}

func (e *UnbalancedTransactionError) Unwrap() error { return ErrUnbalancedTransaction }

type InvalidEntryError struct {
	Index  int
	Reason string
}

func (e *InvalidEntryError) Error() string {
	return fmt.Sprintf("invalid entry %d: %s", e.Index, e.Reason)
}

func (e *InvalidEntryError) Unwrap() error { return ErrInvalidEntry }

// BudgetExceededError carries every failing level of a denied request.
type BudgetExceededError struct {
	Requested int64
	Failures  []BudgetCheck
	Reasons   []string
}

func (e *BudgetExceededError) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("budget exceeded: requested %d", e.Requested)
	}
	return "budget exceeded: " + strings.Join(e.Reasons, "; ")
}

func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// NewBudgetExceededError builds the error for a denied hierarchy check.
func NewBudgetExceededError(amount int64, check *HierarchyCheck) *BudgetExceededError {
	return &BudgetExceededError{
		Requested: amount,
		Failures:  check.Failures(),
		Reasons:   check.Reasons,
	}
}
