package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/spendguard/internal/domain"
	"github.com/josh-kwaku/spendguard/internal/logging"
)

const sweepBatchSize = 500

// CreateBudgetReservation holds amount on the budget until the reservation
// is consumed, cancelled or swept. The hold is taken with an atomic
// increment, not a version compare.
func (s *Store) CreateBudgetReservation(ctx context.Context, budgetID uuid.UUID, amount int64, agentID string, currency domain.Currency) (*domain.BudgetReservation, error) {
	log := logging.FromContext(ctx)

	if amount <= 0 {
		return nil, fmt.Errorf("CreateBudgetReservation: %w", domain.ErrInvalidAmount)
	}

	now := s.now()
	res := &domain.BudgetReservation{
		ID:        uuid.New(),
		BudgetID:  budgetID,
		Amount:    amount,
		Currency:  currency,
		AgentID:   agentID,
		ExpiresAt: now.Add(s.cfg.ReservationExpiry),
		CreatedAt: now,
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.budgets.GetByID(ctx, budgetID)
		if err != nil {
			return err
		}
		if b.Currency != currency {
			return fmt.Errorf("budget is %s, reservation is %s: %w", b.Currency, currency, domain.ErrCurrencyMismatch)
		}
		if _, err := s.budgets.AddReserved(ctx, budgetID, amount); err != nil {
			return err
		}
		return s.reservations.Create(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("CreateBudgetReservation: %w", err)
	}

	log.Info("budget reserved",
		"reservation_id", res.ID,
		"budget_id", budgetID,
		"amount", amount,
		"agent_id", agentID,
		"expires_at", res.ExpiresAt,
	)
	return res, nil
}

func (s *Store) GetReservation(ctx context.Context, id uuid.UUID) (*domain.BudgetReservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetReservation: %w", err)
	}
	return res, nil
}

// CancelBudgetReservation drops the reservation and returns its hold to the
// budget.
func (s *Store) CancelBudgetReservation(ctx context.Context, id uuid.UUID) (*domain.Budget, error) {
	var b *domain.Budget
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		res, err := s.reservations.Delete(ctx, id)
		if err != nil {
			return err
		}
		b, err = s.budgets.AddReserved(ctx, res.BudgetID, -res.Amount)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("CancelBudgetReservation: %w", err)
	}

	logging.FromContext(ctx).Info("reservation cancelled", "reservation_id", id, "budget_id", b.ID)
	return b, nil
}

// ConsumeBudgetReservation turns the whole reservation into spend.
func (s *Store) ConsumeBudgetReservation(ctx context.Context, id uuid.UUID) (*domain.Budget, error) {
	var b *domain.Budget
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		res, err := s.reservations.Delete(ctx, id)
		if err != nil {
			return err
		}
		b, err = s.budgets.ConsumeReserved(ctx, res.BudgetID, res.Amount)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ConsumeBudgetReservation: %w", err)
	}

	logging.FromContext(ctx).Info("reservation consumed", "reservation_id", id, "budget_id", b.ID)
	return b, nil
}

// CleanupExpiredReservations releases every reservation that expired before
// now and returns how many were released. Each budget is handled in its own
// storage transaction; a failing budget is logged and skipped.
func (s *Store) CleanupExpiredReservations(ctx context.Context) (int, error) {
	log := logging.FromContext(ctx)
	now := s.now()

	released := 0
	for {
		expired, err := s.reservations.ListExpired(ctx, now, sweepBatchSize)
		if err != nil {
			return released, fmt.Errorf("CleanupExpiredReservations: %w", err)
		}

		pass := 0
		for _, g := range groupByBudget(ctx, expired) {
			n, err := s.releaseGroup(ctx, g, now)
			if err != nil {
				log.Error("failed to release expired reservations",
					"budget_id", g.budgetID,
					"reservations", len(g.ids),
					"error", err,
				)
				continue
			}
			pass += n
		}
		released += pass

		if len(expired) < sweepBatchSize || pass == 0 {
			break
		}
	}

	s.metrics.ReservationsReleased(released)
	if released > 0 {
		log.Info("expired reservations released", "count", released)
	}
	return released, nil
}

type reservationGroup struct {
	budgetID uuid.UUID
	ids      []uuid.UUID
}

func groupByBudget(ctx context.Context, expired []domain.BudgetReservation) []reservationGroup {
	log := logging.FromContext(ctx)
	index := make(map[uuid.UUID]int)
	var groups []reservationGroup
	for _, r := range expired {
		if r.Amount <= 0 || r.BudgetID == uuid.Nil {
			log.Warn("skipping malformed reservation", "reservation_id", r.ID, "amount", r.Amount)
			continue
		}
		i, ok := index[r.BudgetID]
		if !ok {
			i = len(groups)
			index[r.BudgetID] = i
			groups = append(groups, reservationGroup{budgetID: r.BudgetID})
		}
		groups[i].ids = append(groups[i].ids, r.ID)
	}
	return groups
}

// releaseGroup deletes the reservations of one budget that are still present
// and lowers the reserved total by what was actually deleted. Rows consumed
// or cancelled since they were listed are not released again.
func (s *Store) releaseGroup(ctx context.Context, g reservationGroup, before time.Time) (int, error) {
	var released int
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		deleted, err := s.reservations.DeleteExpired(ctx, g.ids, before)
		if err != nil {
			return err
		}
		if len(deleted) == 0 {
			return nil
		}

		var total int64
		for _, r := range deleted {
			total += r.Amount
		}
		if _, err := s.budgets.AddReserved(ctx, g.budgetID, -total); err != nil {
			return err
		}
		released = len(deleted)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("releaseGroup: %w", err)
	}
	return released, nil
}
