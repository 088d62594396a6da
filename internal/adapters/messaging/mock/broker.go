package mock

import (
	"context"
	"log/slog"
	"sync"

	"loyalty-points-system/internal/core/domain"
)

// Broker is a stand-in MessageBroker for runs without Kafka. It logs each event and keeps
// the ones it saw.
type Broker struct {
	logger *slog.Logger

	mu     sync.Mutex
	events []domain.LedgerEvent
}

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{logger: logger}
}

func (b *Broker) Close() {}

func (b *Broker) PublishLedgerEvent(_ context.Context, ev domain.LedgerEvent) error {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()

	b.logger.Info("[MOCK] ledger event",
		"action", ev.Action,
		"transaction_id", ev.TransactionID,
		"type", ev.Type,
		"account_id", ev.AccountID,
		"amount", ev.Amount,
	)
	return nil
}

// Events returns a copy of everything published so far.
func (b *Broker) Events() []domain.LedgerEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.LedgerEvent(nil), b.events...)
}
