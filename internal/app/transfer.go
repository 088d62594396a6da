package app

import (
	"context"
	"fmt"

	"loyalty-points-system/internal/core/domain"
	"loyalty-points-system/internal/core/ports"
)

// Transfer moves points from the caller to a recipient and writes the two linked records.
func (s *service) Transfer(ctx context.Context, actor domain.Actor, req ports.TransferRequest) (*ports.TransferResult, error) {
	if err := requirePositive("amount", req.Amount); err != nil {
		return nil, err
	}
	if req.RecipientID == actor.AccountID {
		return nil, fmt.Errorf("%w: cannot transfer to the same account", domain.ErrValidation)
	}

	var result ports.TransferResult
	err := s.run(ctx, "transfer", func(ctx context.Context, tx ports.Tx) error {
		// Rows are locked in id order so opposing transfers cannot deadlock.
		sender, recipient, err := lockPair(ctx, tx, actor.AccountID, req.RecipientID)
		if err != nil {
			return err
		}
		if !sender.Verified {
			return fmt.Errorf("%w: account %d is not verified", domain.ErrForbidden, sender.ID)
		}
		if sender.Points < req.Amount {
			return domain.ErrInsufficientPoints
		}

		now := s.now()
		result.Sent = domain.Transaction{
			AccountID: sender.ID,
			Amount:    -req.Amount,
			Remark:    req.Remark,
			CreatedBy: sender.ID,
			CreatedAt: now,
			Details:   domain.TransferDetails{CounterpartyID: recipient.ID},
		}
		result.Received = domain.Transaction{
			AccountID: recipient.ID,
			Amount:    req.Amount,
			Remark:    req.Remark,
			CreatedBy: sender.ID,
			CreatedAt: now,
			Details:   domain.TransferDetails{CounterpartyID: sender.ID},
		}
		if err := tx.CreateTransaction(ctx, &result.Sent); err != nil {
			return fmt.Errorf("failed to save transfer: %w", err)
		}
		if err := tx.CreateTransaction(ctx, &result.Received); err != nil {
			return fmt.Errorf("failed to save transfer: %w", err)
		}

		if _, err := tx.AddPoints(ctx, sender.ID, -req.Amount); err != nil {
			return err
		}
		_, err = tx.AddPoints(ctx, recipient.ID, req.Amount)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.ActionCreated, result.Sent, result.Received)
	s.logger.Info("transfer completed", "sender_id", result.Sent.AccountID, "recipient_id", result.Received.AccountID, "amount", req.Amount)
	return &result, nil
}

func lockPair(ctx context.Context, tx ports.Tx, senderID, recipientID int64) (domain.Account, domain.Account, error) {
	var sender, recipient domain.Account
	load := func(id int64) error {
		account, err := tx.AccountByID(ctx, id)
		if err != nil {
			if id == recipientID {
				return fmt.Errorf("recipient: %w", err)
			}
			return err
		}
		if id == senderID {
			sender = account
		} else {
			recipient = account
		}
		return nil
	}

	first, second := senderID, recipientID
	if second < first {
		first, second = second, first
	}
	if err := load(first); err != nil {
		return sender, recipient, err
	}
	if err := load(second); err != nil {
		return sender, recipient, err
	}
	return sender, recipient, nil
}
