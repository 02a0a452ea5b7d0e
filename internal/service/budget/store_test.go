package budget

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/spendguard/internal/config"
	"github.com/josh-kwaku/spendguard/internal/domain"
)

type recordingBudgetRepo struct {
	budgetRepo
	created []*domain.Budget
}

func (r *recordingBudgetRepo) Create(_ context.Context, b *domain.Budget) error {
	r.created = append(r.created, b)
	return nil
}

func TestCreateBudget_Validation(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	valid := CreateBudgetRequest{
		Level: domain.LevelTeam, LevelID: "team-ml", TotalAmount: 50_000,
		Currency: "USD", PeriodStart: start, PeriodEnd: end,
	}

	tests := []struct {
		name    string
		mutate  func(r *CreateBudgetRequest)
		wantErr bool
	}{
		{name: "valid", mutate: func(*CreateBudgetRequest) {}},
		{name: "zero total is allowed", mutate: func(r *CreateBudgetRequest) { r.TotalAmount = 0 }},
		{name: "unknown level", mutate: func(r *CreateBudgetRequest) { r.Level = "ORG" }, wantErr: true},
		{name: "missing level id", mutate: func(r *CreateBudgetRequest) { r.LevelID = "" }, wantErr: true},
		{name: "negative total", mutate: func(r *CreateBudgetRequest) { r.TotalAmount = -1 }, wantErr: true},
		{name: "lowercase currency", mutate: func(r *CreateBudgetRequest) { r.Currency = "usd" }, wantErr: true},
		{name: "period ends before it starts", mutate: func(r *CreateBudgetRequest) { r.PeriodEnd = start.Add(-time.Hour) }, wantErr: true},
		{name: "missing period start", mutate: func(r *CreateBudgetRequest) { r.PeriodStart = time.Time{} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &recordingBudgetRepo{}
			s := NewStore(repo, nil, nil, config.DefaultEngineConfig(), nil)

			req := valid
			tt.mutate(&req)
			b, err := s.CreateBudget(context.Background(), req)

			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidRequest)
				assert.Empty(t, repo.created)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1), b.Version)
			assert.Zero(t, b.SpentAmount)
			assert.Zero(t, b.ReservedAmount)
			require.Len(t, repo.created, 1)
		})
	}
}

func TestGroupByBudget(t *testing.T) {
	b1, b2 := uuid.New(), uuid.New()
	r1, r2, r3, bad := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	groups := groupByBudget(context.Background(), []domain.BudgetReservation{
		{ID: r1, BudgetID: b1, Amount: 10},
		{ID: r2, BudgetID: b2, Amount: 20},
		{ID: bad, BudgetID: b1, Amount: 0},
		{ID: r3, BudgetID: b1, Amount: 30},
	})

	require.Len(t, groups, 2)
	assert.Equal(t, b1, groups[0].budgetID)
	assert.Equal(t, []uuid.UUID{r1, r3}, groups[0].ids)
	assert.Equal(t, b2, groups[1].budgetID)
	assert.Equal(t, []uuid.UUID{r2}, groups[1].ids)
}

func TestCheckBudget_RejectsNonPositiveAmount(t *testing.T) {
	s := NewStore(&recordingBudgetRepo{}, nil, nil, config.DefaultEngineConfig(), nil)

	_, err := s.CheckBudget(context.Background(), domain.LevelAgent, "a", 0, time.Now())
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}
