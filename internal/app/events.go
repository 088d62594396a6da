package app

import (
	"context"
	"fmt"
	"math"
	"slices"

	"loyalty-points-system/internal/core/domain"
	"loyalty-points-system/internal/core/ports"
)

// AwardEventPoints credits one RSVP'd guest from the event's pool.
func (s *service) AwardEventPoints(ctx context.Context, actor domain.Actor, req ports.EventAwardRequest) (*domain.Transaction, error) {
	if err := requirePositive("amount", req.Amount); err != nil {
		return nil, err
	}

	var record domain.Transaction
	err := s.run(ctx, "event_award", func(ctx context.Context, tx ports.Tx) error {
		event, err := loadEventForAward(ctx, tx, actor, req.EventID)
		if err != nil {
			return err
		}
		guest, err := tx.AccountByUTORid(ctx, req.GuestUTORid)
		if err != nil {
			return err
		}
		if !event.HasGuest(guest.ID) {
			return fmt.Errorf("%w: %s is not a guest of event %d", domain.ErrValidation, guest.UTORid, event.ID)
		}
		if req.Amount > event.PointsRemain {
			return domain.ErrInsufficientPool
		}

		record, err = s.awardGuest(ctx, tx, actor, event.ID, guest.ID, req)
		if err != nil {
			return err
		}
		return tx.ApplyEventAward(ctx, event.ID, req.Amount)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.ActionCreated, record)
	s.logger.Info("event points awarded", "event_id", req.EventID, "account_id", record.AccountID, "amount", req.Amount)
	return &record, nil
}

// AwardEventPointsToAll credits every RSVP'd guest the same amount. Either every guest is
// awarded and the pool decremented by the total, or nothing changes.
func (s *service) AwardEventPointsToAll(ctx context.Context, actor domain.Actor, req ports.EventAwardRequest) ([]domain.Transaction, error) {
	if err := requirePositive("amount", req.Amount); err != nil {
		return nil, err
	}

	var records []domain.Transaction
	err := s.run(ctx, "event_award_all", func(ctx context.Context, tx ports.Tx) error {
		event, err := loadEventForAward(ctx, tx, actor, req.EventID)
		if err != nil {
			return err
		}
		guests := slices.Clone(event.Guests)
		slices.Sort(guests)
		count := int64(len(guests))
		if count == 0 {
			return nil
		}
		if req.Amount > math.MaxInt64/count || req.Amount*count > event.PointsRemain {
			return domain.ErrInsufficientPool
		}

		records = make([]domain.Transaction, 0, len(guests))
		for _, guestID := range guests {
			if _, err := tx.AccountByID(ctx, guestID); err != nil {
				return err
			}
			record, err := s.awardGuest(ctx, tx, actor, event.ID, guestID, req)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return tx.ApplyEventAward(ctx, event.ID, req.Amount*count)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.ActionCreated, records...)
	s.logger.Info("event points awarded to all guests", "event_id", req.EventID, "guests", len(records), "amount", req.Amount)
	return records, nil
}

// loadEventForAward locks the event and checks the caller may spend its pool. Role checks
// happen upstream; organizer membership is checked here.
func loadEventForAward(ctx context.Context, tx ports.Tx, actor domain.Actor, eventID int64) (domain.Event, error) {
	event, err := tx.EventByID(ctx, eventID)
	if err != nil {
		return event, err
	}
	if !event.IsOrganizer(actor.AccountID) && !actor.Role.Elevated() {
		return event, fmt.Errorf("%w: not an organizer of event %d", domain.ErrForbidden, event.ID)
	}
	return event, nil
}

func (s *service) awardGuest(ctx context.Context, tx ports.Tx, actor domain.Actor, eventID, guestID int64, req ports.EventAwardRequest) (domain.Transaction, error) {
	record := domain.Transaction{
		AccountID: guestID,
		Amount:    req.Amount,
		Remark:    req.Remark,
		CreatedBy: actor.AccountID,
		CreatedAt: s.now(),
		Details:   domain.EventAwardDetails{EventID: eventID},
	}
	if err := tx.CreateTransaction(ctx, &record); err != nil {
		return record, fmt.Errorf("failed to save event award: %w", err)
	}
	if _, err := tx.AddPoints(ctx, guestID, req.Amount); err != nil {
		return record, err
	}
	return record, nil
}
