package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty-points-system/internal/core/domain"
	"loyalty-points-system/internal/core/ports"
)

func TestWithinTx_RollsBackOnError(t *testing.T) {
	store := New()
	acct := store.PutAccount(domain.Account{UTORid: "alice001", Role: domain.RoleRegular, Points: 10})
	boom := errors.New("boom")

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		_, err := tx.AddPoints(ctx, acct.ID, 50)
		require.NoError(t, err)
		record := domain.Transaction{AccountID: acct.ID, Amount: 50}
		require.NoError(t, tx.CreateTransaction(ctx, &record))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	got, _ := store.Account(acct.ID)
	assert.Equal(t, int64(10), got.Points)
	assert.Empty(t, store.TransactionsFor(acct.ID))
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	store := New()
	acct := store.PutAccount(domain.Account{UTORid: "alice001", Role: domain.RoleRegular, Points: 10})

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		_, err := tx.AddPoints(ctx, acct.ID, 5)
		return err
	})

	require.NoError(t, err)
	got, _ := store.Account(acct.ID)
	assert.Equal(t, int64(15), got.Points)
}

func TestAddPoints_RejectsNegativeBalance(t *testing.T) {
	store := New()
	acct := store.PutAccount(domain.Account{UTORid: "alice001", Points: 10})

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		_, err := tx.AddPoints(ctx, acct.ID, -11)
		return err
	})

	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)
}

func TestRecordPromotionUsage_OncePerAccount(t *testing.T) {
	store := New()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		require.NoError(t, tx.RecordPromotionUsage(ctx, 2, 3, 10))
		require.NoError(t, tx.RecordPromotionUsage(ctx, 2, 3, 10))
		require.NoError(t, tx.RecordPromotionUsage(ctx, 2, 4, 11))
		return tx.RecordPromotionUsage(ctx, 2, 3, 12)
	})

	assert.ErrorIs(t, err, domain.ErrPromotionAlreadyUsed)
}

func TestApplyEventAward_BoundedByPool(t *testing.T) {
	store := New()
	store.PutEvent(domain.Event{ID: 1, PointsRemain: 30})
	ctx := context.Background()

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.ApplyEventAward(ctx, 1, 20)
	}))
	err := store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.ApplyEventAward(ctx, 1, 20)
	})

	assert.ErrorIs(t, err, domain.ErrInsufficientPool)
	ev, _ := store.Event(1)
	assert.Equal(t, int64(10), ev.PointsRemain)
	assert.Equal(t, int64(20), ev.PointsAwarded)
}

func TestLookups_NotFound(t *testing.T) {
	store := New()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		_, err := tx.AccountByUTORid(ctx, "nobody00")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.EventByID(ctx, 9)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.TransactionByID(ctx, 9)
		return err
	})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoadFixtures(t *testing.T) {
	store := New()

	require.NoError(t, store.LoadFixtures("../../../../configs/fixtures.yaml"))

	alice, ok := store.Account(3)
	require.True(t, ok)
	assert.Equal(t, "alice001", alice.UTORid)
	assert.Equal(t, int64(500), alice.Points)

	ev, ok := store.Event(1)
	require.True(t, ok)
	assert.Equal(t, int64(1000), ev.PointsRemain)
	assert.Equal(t, []int64{3, 4}, ev.Guests)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		promos, err := tx.PromotionsByType(ctx, domain.PromotionAutomatic)
		require.NoError(t, err)
		require.Len(t, promos, 1)
		assert.True(t, promos[0].Rate.Valid)
		return nil
	})
	require.NoError(t, err)
}
