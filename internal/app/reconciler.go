package app

import (
	"context"

	"loyalty-points-system/internal/core/domain"
	"loyalty-points-system/internal/core/ports"
)

// SetTransactionSuspicious flips a transaction's suspicious flag and moves its effect on the
// owner's balance with it: turning the flag on reverses an applied amount, turning it off
// applies a suppressed one. Setting the current value is a no-op.
func (s *service) SetTransactionSuspicious(ctx context.Context, transactionID int64, suspicious bool) (*domain.Transaction, error) {
	var (
		record  domain.Transaction
		changed bool
	)
	err := s.run(ctx, "set_suspicious", func(ctx context.Context, tx ports.Tx) error {
		var err error
		record, err = tx.TransactionByID(ctx, transactionID)
		if err != nil {
			return err
		}
		if record.Suspicious == suspicious {
			return nil
		}

		// A pending redemption has not touched the balance yet; only its flag moves.
		pending := false
		if r, ok := record.Details.(domain.RedemptionDetails); ok && !r.Processed {
			pending = true
		}
		if !pending {
			delta := record.Amount
			if suspicious {
				delta = -delta
			}
			if _, err := tx.AddPoints(ctx, record.AccountID, delta); err != nil {
				return err
			}
		}

		if err := tx.SetTransactionSuspicious(ctx, record.ID, suspicious); err != nil {
			return err
		}
		record.Suspicious = suspicious
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.publish(ctx, domain.ActionSuspiciousChanged, record)
		s.logger.Info("transaction suspicious flag changed", "transaction_id", record.ID, "account_id", record.AccountID, "suspicious", suspicious)
	}
	return &record, nil
}
