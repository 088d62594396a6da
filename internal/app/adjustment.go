package app

import (
	"context"
	"fmt"

	"loyalty-points-system/internal/core/domain"
	"loyalty-points-system/internal/core/ports"
)

// CreateAdjustment applies a raw correction to a customer's balance. No bonus is computed;
// attached promotions go through the same validation and consumption as a purchase.
func (s *service) CreateAdjustment(ctx context.Context, actor domain.Actor, req ports.AdjustmentRequest) (*domain.Transaction, error) {
	if !actor.Role.Elevated() {
		return nil, fmt.Errorf("%w: adjustments require an elevated role", domain.ErrForbidden)
	}
	if req.Amount == 0 {
		return nil, fmt.Errorf("%w: amount must be non-zero", domain.ErrValidation)
	}

	var record domain.Transaction
	err := s.run(ctx, "adjustment", func(ctx context.Context, tx ports.Tx) error {
		customer, err := tx.AccountByUTORid(ctx, req.CustomerUTORid)
		if err != nil {
			return err
		}
		if _, err := tx.TransactionByID(ctx, req.RelatedTransactionID); err != nil {
			return fmt.Errorf("related %w", err)
		}

		now := s.now()
		promotions, err := ValidateManualPromotions(ctx, tx, req.PromotionIDs, customer.ID, now)
		if err != nil {
			return err
		}

		record = domain.Transaction{
			AccountID: customer.ID,
			Amount:    req.Amount,
			Remark:    req.Remark,
			CreatedBy: actor.AccountID,
			CreatedAt: now,
			Details: domain.AdjustmentDetails{
				RelatedTransactionID: req.RelatedTransactionID,
				PromotionIDs:         promotionIDs(promotions),
			},
		}
		if err := tx.CreateTransaction(ctx, &record); err != nil {
			return fmt.Errorf("failed to save adjustment: %w", err)
		}
		if _, err := tx.AddPoints(ctx, customer.ID, req.Amount); err != nil {
			return err
		}
		return MarkPromotionsConsumed(ctx, tx, customer.ID, record.ID, promotions)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.ActionCreated, record)
	s.logger.Info("adjustment recorded", "transaction_id", record.ID, "account_id", record.AccountID, "amount", record.Amount)
	return &record, nil
}
