package domain

import (
	"time"

	"github.com/google/uuid"
)

// Currency is an ISO 4217 alphabetic code. Amounts are always minor units.
type Currency string

func (c Currency) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// AccountTags places an account in the spend hierarchy. Tags are the only
// mutable part of an account.
type AccountTags struct {
	AgentID      *string
	TeamID       *string
	DepartmentID *string
}

type Account struct {
	ID        uuid.UUID
	Name      string
	Type      AccountType
	Currency  Currency
	Tags      AccountTags
	CreatedAt time.Time
	UpdatedAt time.Time
}
