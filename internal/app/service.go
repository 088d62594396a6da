package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"loyalty-points-system/internal/core/domain"
	"loyalty-points-system/internal/core/ports"
	"loyalty-points-system/internal/observability"
)

var tracer = otel.Tracer("loyalty-ledger")

// domainErrors are surfaced to callers as-is; anything else coming out of a unit of work is
// an infrastructure failure.
var domainErrors = []error{
	domain.ErrNotFound,
	domain.ErrForbidden,
	domain.ErrInsufficientPoints,
	domain.ErrInsufficientPool,
	domain.ErrValidation,
	domain.ErrDuplicatePromotion,
	domain.ErrPromotionAlreadyUsed,
	domain.ErrPromotionExpired,
	domain.ErrPromotionNotApplicable,
	domain.ErrWrongTransactionType,
	domain.ErrAlreadyProcessed,
}

// service is the implementation of the LedgerService port
type service struct {
	store  ports.Store
	broker ports.MessageBroker
	logger *slog.Logger
	now    func() time.Time
}

// NewLedgerService is the constructor of our service.
func NewLedgerService(store ports.Store, broker ports.MessageBroker, logger *slog.Logger) ports.LedgerService {
	return newService(store, broker, logger)
}

func newService(store ports.Store, broker ports.MessageBroker, logger *slog.Logger) *service {
	return &service{
		store:  store,
		broker: broker,
		logger: logger,
		now:    time.Now,
	}
}

// run executes fn as one atomic unit of work, with a span and an operation metric around it.
func (s *service) run(ctx context.Context, operation string, fn func(ctx context.Context, tx ports.Tx) error) error {
	ctx, span := tracer.Start(ctx, "ledger."+operation)
	defer span.End()

	err := s.store.WithinTx(ctx, fn)
	if err == nil {
		observability.RecordLedgerOperation(operation, "ok")
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			observability.RecordLedgerOperation(operation, known.Error())
			return err
		}
	}
	observability.RecordLedgerOperation(operation, "storage_error")
	s.logger.Error("ledger unit of work failed", "operation", operation, "error", err)
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}

// publish announces committed changes. A broker failure is logged and counted; the commit
// stands.
func (s *service) publish(ctx context.Context, action domain.LedgerAction, txs ...domain.Transaction) {
	_, span := tracer.Start(ctx, "ledger.publish")
	defer span.End()
	span.SetAttributes(attribute.String("ledger.action", string(action)), attribute.Int("ledger.count", len(txs)))

	for _, tx := range txs {
		if action == domain.ActionCreated && tx.Applied() {
			observability.RecordPointsMoved(string(tx.Type()), tx.Amount)
		}
		if err := s.broker.PublishLedgerEvent(ctx, domain.NewLedgerEvent(action, tx)); err != nil {
			observability.RecordPublishFailure()
			s.logger.Warn("failed to publish ledger event", "transaction_id", tx.ID, "action", action, "error", err)
		}
	}
}

func requirePositive(name string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %s must be a positive integer", domain.ErrValidation, name)
	}
	return nil
}
