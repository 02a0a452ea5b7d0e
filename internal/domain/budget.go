package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BudgetLevel string

const (
	LevelAgent      BudgetLevel = "AGENT"
	LevelTeam       BudgetLevel = "TEAM"
	LevelDepartment BudgetLevel = "DEPARTMENT"
)

// LevelOrder lists the levels from most to least specific.
var LevelOrder = []BudgetLevel{LevelAgent, LevelTeam, LevelDepartment}

func (l BudgetLevel) IsValid() bool {
	switch l {
	case LevelAgent, LevelTeam, LevelDepartment:
		return true
	}
	return false
}

type Budget struct {
	ID             uuid.UUID
	Level          BudgetLevel
	LevelID        string
	TotalAmount    int64
	SpentAmount    int64
	ReservedAmount int64
	Currency       Currency
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (b *Budget) Available() int64 {
	return b.TotalAmount - b.SpentAmount - b.ReservedAmount
}

// Covers reports whether t falls inside the budget period, bounds inclusive.
func (b *Budget) Covers(t time.Time) bool {
	return !t.Before(b.PeriodStart) && !t.After(b.PeriodEnd)
}

// Check evaluates a request of amount against the budget. held is an amount
// already reserved on this budget for the same request; it is credited back
// so a reservation is not counted twice when it is spent.
func (b *Budget) Check(amount, held int64) BudgetCheck {
	reserved := b.ReservedAmount - held
	if reserved < 0 {
		reserved = 0
	}
	available := b.TotalAmount - b.SpentAmount - reserved

	c := BudgetCheck{
		BudgetID:    b.ID,
		Level:       b.Level,
		LevelID:     b.LevelID,
		Found:       true,
		Total:       b.TotalAmount,
		Spent:       b.SpentAmount,
		Reserved:    reserved,
		Available:   available,
		Requested:   amount,
		Utilization: utilization(b.SpentAmount+reserved, b.TotalAmount),
	}
	if amount <= available {
		c.Allowed = true
		return c
	}
	c.Shortfall = amount - available
	c.Reason = fmt.Sprintf("insufficient budget at %s %s: available %d, requested %d",
		b.Level, b.LevelID, available, amount)
	return c
}

// utilization is used/total as a percentage rounded to two places.
func utilization(used, total int64) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(used).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(total)).
		Round(2)
}

type BudgetReservation struct {
	ID        uuid.UUID
	BudgetID  uuid.UUID
	Amount    int64
	Currency  Currency
	AgentID   string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (r *BudgetReservation) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

type BudgetCheck struct {
	BudgetID    uuid.UUID
	Level       BudgetLevel
	LevelID     string
	Found       bool
	Allowed     bool
	Total       int64
	Spent       int64
	Reserved    int64
	Available   int64
	Requested   int64
	Shortfall   int64
	Utilization decimal.Decimal
	Reason      string
}

// HierarchyCheck is the combined verdict over every level of a path.
// DecidingLevel is the most specific level in the path.
type HierarchyCheck struct {
	Allowed         bool
	DecidingLevel   BudgetLevel
	DecidingLevelID string
	Checks          []BudgetCheck
	Reasons         []string
}

func (h *HierarchyCheck) Failures() []BudgetCheck {
	var out []BudgetCheck
	for _, c := range h.Checks {
		if !c.Allowed {
			out = append(out, c)
		}
	}
	return out
}
