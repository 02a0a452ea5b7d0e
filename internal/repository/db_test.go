package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/spendguard/internal/domain"
	"github.com/josh-kwaku/spendguard/internal/repository"
	"github.com/josh-kwaku/spendguard/internal/testutil"
)

func newAccount(name string) *domain.Account {
	now := time.Now().UTC()
	return &domain.Account{
		ID:        uuid.New(),
		Name:      name,
		Type:      domain.AccountTypeAsset,
		Currency:  "USD",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestInTx(t *testing.T) {
	db := testutil.SetupTestDB(t)
	txdb := repository.NewDB(db)
	accounts := repository.NewAccountRepository(db)
	ctx := context.Background()

	t.Run("commits writes made through the context", func(t *testing.T) {
		a := newAccount("committed")
		err := txdb.InTx(ctx, func(ctx context.Context) error {
			return accounts.Create(ctx, a)
		})
		require.NoError(t, err)

		got, err := accounts.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "committed", got.Name)
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		a := newAccount("rolled back")
		boom := errors.New("boom")
		err := txdb.InTx(ctx, func(ctx context.Context) error {
			require.NoError(t, accounts.Create(ctx, a))
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = accounts.GetByID(ctx, a.ID)
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("nested call joins the outer transaction", func(t *testing.T) {
		outer, inner := newAccount("outer"), newAccount("inner")
		err := txdb.InTx(ctx, func(ctx context.Context) error {
			require.NoError(t, accounts.Create(ctx, outer))
			outerTx, _ := repository.TxFromContext(ctx)

			require.NoError(t, txdb.InTx(ctx, func(ctx context.Context) error {
				innerTx, _ := repository.TxFromContext(ctx)
				assert.Same(t, outerTx, innerTx)
				return accounts.Create(ctx, inner)
			}))
			return errors.New("abort outer")
		})
		require.Error(t, err)

		_, err = accounts.GetByID(ctx, inner.ID)
		assert.ErrorIs(t, err, domain.ErrAccountNotFound, "inner write must roll back with the outer transaction")
	})

	t.Run("lock outside a transaction is rejected", func(t *testing.T) {
		_, err := accounts.LockForUpdate(ctx, []uuid.UUID{uuid.New()})
		assert.Error(t, err)
	})
}
