package antifraud

import (
	"context"

	"loyalty-points-system/internal/core/domain"
)

// RuleEngine scores one ledger event for operator risk.
type RuleEngine interface {
	CheckEvent(ctx context.Context, ev domain.LedgerEvent) domain.OperatorRisk
}
