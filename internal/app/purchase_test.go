package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty-points-system/internal/core/domain"
	"loyalty-points-system/internal/core/ports"
)

func TestCreatePurchase_CreditsCustomer(t *testing.T) {
	// --- Arrange ---
	f := newFixture(t)
	cashier := f.account("cashier1", 0, asRole(domain.RoleCashier))
	alice := f.account("alice", 0)

	// --- Act ---
	result, err := f.svc.CreatePurchase(context.Background(), actorOf(cashier), ports.PurchaseRequest{
		CustomerUTORid: "alice",
		Spent:          dec("40.00"),
		Remark:         "coffee",
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, int64(160), result.Transaction.Amount)
	assert.Equal(t, int64(160), result.Earned)
	assert.Equal(t, "alice", result.CustomerUTORid)
	assert.Equal(t, cashier.ID, result.Transaction.CreatedBy)
	assert.False(t, result.Transaction.Suspicious)
	assert.Equal(t, domain.TypePurchase, result.Transaction.Type())
	assert.Equal(t, int64(160), f.balance(t, alice.ID))
}

func TestCreatePurchase_SuspiciousCreatorSuppressesCredit(t *testing.T) {
	f := newFixture(t)
	cashier := f.account("cashier1", 0, asRole(domain.RoleCashier), suspicious)
	alice := f.account("alice", 0)

	result, err := f.svc.CreatePurchase(context.Background(), actorOf(cashier), ports.PurchaseRequest{
		CustomerUTORid: "alice",
		Spent:          dec("40.00"),
	})

	require.NoError(t, err)
	assert.Equal(t, int64(160), result.Transaction.Amount)
	assert.True(t, result.Transaction.Suspicious)
	assert.Zero(t, result.Earned)
	assert.Zero(t, f.balance(t, alice.ID))

	stored, ok := f.store.Transaction(result.Transaction.ID)
	require.True(t, ok)
	assert.True(t, stored.Suspicious)
}

func TestCreatePurchase_SuspiciousCustomerStillCredited(t *testing.T) {
	f := newFixture(t)
	cashier := f.account("cashier1", 0, asRole(domain.RoleCashier))
	alice := f.account("alice", 0, suspicious)

	result, err := f.svc.CreatePurchase(context.Background(), actorOf(cashier), ports.PurchaseRequest{CustomerUTORid: "alice", Spent: dec("1")})

	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Earned)
	assert.Equal(t, int64(4), f.balance(t, alice.ID))
}

func TestCreatePurchase_StacksManualAndAutomaticPromotions(t *testing.T) {
	f := newFixture(t)
	cashier := f.account("cashier1", 0, asRole(domain.RoleCashier))
	alice := f.account("alice", 0)

	manual := activePromotion(1, domain.PromotionOneTime)
	manual.Points = points(100)
	automatic := activePromotion(2, domain.PromotionAutomatic)
	automatic.Rate = nullDec("0.01")
	automatic.MinSpending = nullDec("20")
	f.store.PutPromotion(manual)
	f.store.PutPromotion(automatic)

	result, err := f.svc.CreatePurchase(context.Background(), actorOf(cashier), ports.PurchaseRequest{
		CustomerUTORid: "alice",
		Spent:          dec("25"),
		PromotionIDs:   []int64{1},
	})

	// base 100, manual +100, automatic round(100 * 0.26) = 26
	require.NoError(t, err)
	assert.Equal(t, int64(226), result.Earned)
	assert.ElementsMatch(t, []int64{1, 2}, result.Transaction.PromotionIDs())
	assert.Equal(t, int64(226), f.balance(t, alice.ID))
}

func TestCreatePurchase_OneTimePromotionConsumedOnce(t *testing.T) {
	f := newFixture(t)
	cashier := f.account("cashier1", 0, asRole(domain.RoleCashier))
	alice := f.account("alice", 0)
	promo := activePromotion(1, domain.PromotionOneTime)
	promo.Points = points(50)
	f.store.PutPromotion(promo)

	req := ports.PurchaseRequest{CustomerUTORid: "alice", Spent: dec("10"), PromotionIDs: []int64{1}}
	_, err := f.svc.CreatePurchase(context.Background(), actorOf(cashier), req)
	require.NoError(t, err)
	require.Equal(t, int64(90), f.balance(t, alice.ID))

	_, err = f.svc.CreatePurchase(context.Background(), actorOf(cashier), req)

	assert.ErrorIs(t, err, domain.ErrPromotionAlreadyUsed)
	assert.Equal(t, int64(90), f.balance(t, alice.ID))
	assert.Len(t, f.store.TransactionsFor(alice.ID), 1)
}

func TestCreatePurchase_Errors(t *testing.T) {
	f := newFixture(t)
	cashier := f.account("cashier1", 0, asRole(domain.RoleCashier))
	f.account("alice", 0)
	f.store.PutPromotion(activePromotion(2, domain.PromotionAutomatic))

	tests := []struct {
		name    string
		actor   domain.Actor
		req     ports.PurchaseRequest
		wantErr error
	}{
		{"unknown customer", actorOf(cashier), ports.PurchaseRequest{CustomerUTORid: "nobody", Spent: dec("1")}, domain.ErrAccountNotFound},
		{"unknown creator", domain.Actor{AccountID: 999}, ports.PurchaseRequest{CustomerUTORid: "alice", Spent: dec("1")}, domain.ErrAccountNotFound},
		{"zero spend", actorOf(cashier), ports.PurchaseRequest{CustomerUTORid: "alice", Spent: dec("0")}, domain.ErrValidation},
		{"automatic promotion selected", actorOf(cashier), ports.PurchaseRequest{CustomerUTORid: "alice", Spent: dec("1"), PromotionIDs: []int64{2}}, domain.ErrPromotionNotApplicable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreatePurchase(context.Background(), tt.actor, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
