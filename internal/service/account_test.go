package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/spendguard/internal/domain"
	"github.com/josh-kwaku/spendguard/internal/repository"
	"github.com/josh-kwaku/spendguard/internal/service"
	"github.com/josh-kwaku/spendguard/internal/testutil"
)

func TestAccountService_CreateAndResolve(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := service.NewAccountService(repository.NewAccountRepository(db))
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, service.CreateAccountRequest{
		Name:     "agent-7 spend",
		Type:     domain.AccountTypeExpense,
		Currency: "USD",
		Tags: domain.AccountTags{
			AgentID:      testutil.Ptr("agent-7"),
			TeamID:       testutil.Ptr("team-search"),
			DepartmentID: testutil.Ptr(""),
		},
	})
	require.NoError(t, err)
	assert.Nil(t, acct.Tags.DepartmentID, "empty tag is stored as absent")

	path, err := svc.ResolveHierarchy(ctx, "agent-7")
	require.NoError(t, err)
	assert.Equal(t, domain.HierarchyPath{AgentID: "agent-7", TeamID: "team-search"}, path)

	tagged, err := svc.TagAccount(ctx, acct.ID, domain.AccountTags{
		AgentID:      testutil.Ptr("agent-7"),
		TeamID:       testutil.Ptr("team-search"),
		DepartmentID: testutil.Ptr("dept-product"),
	})
	require.NoError(t, err)
	require.NotNil(t, tagged.Tags.DepartmentID)
	assert.Equal(t, acct.Name, tagged.Name)

	path, err = svc.ResolveHierarchy(ctx, "agent-7")
	require.NoError(t, err)
	assert.Equal(t, "dept-product", path.DepartmentID)

	got, err := svc.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountTypeExpense, got.Type)
}

func TestAccountService_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := service.NewAccountService(repository.NewAccountRepository(db))
	ctx := context.Background()

	_, err := svc.GetAccount(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = svc.ResolveHierarchy(ctx, "agent-ghost")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = svc.TagAccount(ctx, uuid.New(), domain.AccountTags{})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountService_CreateValidation(t *testing.T) {
	svc := service.NewAccountService(nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  service.CreateAccountRequest
	}{
		{"missing name", service.CreateAccountRequest{Type: domain.AccountTypeAsset, Currency: "USD"}},
		{"unknown type", service.CreateAccountRequest{Name: "x", Type: "wallet", Currency: "USD"}},
		{"bad currency", service.CreateAccountRequest{Name: "x", Type: domain.AccountTypeAsset, Currency: "US"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateAccount(ctx, tt.req)
			require.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}
