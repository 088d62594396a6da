package app

import (
	"context"
	"fmt"

	"loyalty-points-system/internal/core/domain"
	"loyalty-points-system/internal/core/ports"
)

// CreatePurchase records a purchase for a customer and credits the earned points, unless the
// creating operator is flagged suspicious. In that case the full amount is recorded, the
// record is marked suspicious and the balance is left alone until the flag is cleared.
func (s *service) CreatePurchase(ctx context.Context, actor domain.Actor, req ports.PurchaseRequest) (*ports.PurchaseResult, error) {
	if !req.Spent.IsPositive() {
		return nil, fmt.Errorf("%w: spent must be positive", domain.ErrValidation)
	}

	var result *ports.PurchaseResult
	err := s.run(ctx, "purchase", func(ctx context.Context, tx ports.Tx) error {
		customer, err := tx.AccountByUTORid(ctx, req.CustomerUTORid)
		if err != nil {
			return err
		}
		creator, err := tx.AccountByID(ctx, actor.AccountID)
		if err != nil {
			return err
		}

		now := s.now()
		manual, err := ValidateManualPromotions(ctx, tx, req.PromotionIDs, customer.ID, now)
		if err != nil {
			return err
		}
		automatic, err := QualifyingAutomaticPromotions(ctx, tx, req.Spent, now)
		if err != nil {
			return err
		}
		total := purchasePoints(req.Spent, manual, automatic)

		record := domain.Transaction{
			AccountID:  customer.ID,
			Amount:     total,
			Remark:     req.Remark,
			CreatedBy:  creator.ID,
			CreatedAt:  now,
			Suspicious: creator.Suspicious,
			Details: domain.PurchaseDetails{
				Spent:        req.Spent,
				PromotionIDs: promotionIDs(manual, automatic),
			},
		}
		if err := tx.CreateTransaction(ctx, &record); err != nil {
			return fmt.Errorf("failed to save purchase: %w", err)
		}

		var earned int64
		if !creator.Suspicious {
			if _, err := tx.AddPoints(ctx, customer.ID, total); err != nil {
				return err
			}
			earned = total
		}

		if err := MarkPromotionsConsumed(ctx, tx, customer.ID, record.ID, manual); err != nil {
			return err
		}

		result = &ports.PurchaseResult{
			Transaction:    record,
			CustomerUTORid: customer.UTORid,
			Earned:         earned,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.ActionCreated, result.Transaction)
	s.logger.Info("purchase recorded",
		"transaction_id", result.Transaction.ID,
		"account_id", result.Transaction.AccountID,
		"amount", result.Transaction.Amount,
		"earned", result.Earned,
	)
	return result, nil
}
