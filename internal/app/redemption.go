package app

import (
	"context"
	"fmt"

	"loyalty-points-system/internal/core/domain"
	"loyalty-points-system/internal/core/ports"
)

// RequestRedemption opens a redemption for the caller's own account. The balance is checked
// but not reserved; the debit happens at approval.
func (s *service) RequestRedemption(ctx context.Context, actor domain.Actor, amount int64, remark string) (*domain.Transaction, error) {
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}

	var record domain.Transaction
	err := s.run(ctx, "redemption_request", func(ctx context.Context, tx ports.Tx) error {
		account, err := tx.AccountByID(ctx, actor.AccountID)
		if err != nil {
			return err
		}
		if !account.Verified {
			return fmt.Errorf("%w: account %d is not verified", domain.ErrForbidden, account.ID)
		}
		if amount > account.Points {
			return domain.ErrInsufficientPoints
		}

		record = domain.Transaction{
			AccountID: account.ID,
			Amount:    -amount,
			Remark:    remark,
			CreatedBy: account.ID,
			CreatedAt: s.now(),
			Details:   domain.RedemptionDetails{},
		}
		return tx.CreateTransaction(ctx, &record)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.ActionCreated, record)
	return &record, nil
}

// ProcessRedemption approves a pending redemption: the balance is checked again, debited, and
// the record closed, all in one unit. A second call fails with ErrAlreadyProcessed.
func (s *service) ProcessRedemption(ctx context.Context, actor domain.Actor, transactionID int64) (*domain.Transaction, error) {
	var record domain.Transaction
	err := s.run(ctx, "redemption_process", func(ctx context.Context, tx ports.Tx) error {
		var err error
		record, err = tx.TransactionByID(ctx, transactionID)
		if err != nil {
			return err
		}
		details, ok := record.Details.(domain.RedemptionDetails)
		if !ok {
			return fmt.Errorf("%w: transaction %d is a %s", domain.ErrWrongTransactionType, record.ID, record.Type())
		}
		if details.Processed {
			return domain.ErrAlreadyProcessed
		}

		processor, err := tx.AccountByID(ctx, actor.AccountID)
		if err != nil {
			return err
		}
		owner, err := tx.AccountByID(ctx, record.AccountID)
		if err != nil {
			return err
		}
		if owner.Points < -record.Amount {
			return domain.ErrInsufficientPoints
		}

		// A redemption flagged while pending stays unapplied until the flag is cleared.
		if !record.Suspicious {
			if _, err := tx.AddPoints(ctx, owner.ID, record.Amount); err != nil {
				return err
			}
		}

		now := s.now()
		if err := tx.MarkRedemptionProcessed(ctx, record.ID, processor.ID, now); err != nil {
			return err
		}
		processedBy := processor.ID
		record.Details = domain.RedemptionDetails{Processed: true, ProcessedBy: &processedBy, ProcessedAt: &now}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.ActionProcessed, record)
	s.logger.Info("redemption processed", "transaction_id", record.ID, "account_id", record.AccountID, "processed_by", actor.AccountID)
	return &record, nil
}
