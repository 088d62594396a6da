package antifraud

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"loyalty-points-system/internal/config"
	"loyalty-points-system/internal/core/domain"
)

// CachingRuleEngine implements RuleEngine using Redis for the per-operator counters.
type CachingRuleEngine struct {
	rdb    redis.Cmdable
	cfg    config.AntiFraudConfig
	logger *slog.Logger
}

// NewCachingRuleEngine creates a new engine connected to Redis.
func NewCachingRuleEngine(rdb redis.Cmdable, cfg config.AntiFraudConfig, logger *slog.Logger) *CachingRuleEngine {
	return &CachingRuleEngine{
		rdb:    rdb,
		cfg:    cfg,
		logger: logger,
	}
}

// CheckEvent only looks at newly created purchases; everything else is never flagged.
func (e *CachingRuleEngine) CheckEvent(ctx context.Context, ev domain.LedgerEvent) domain.OperatorRisk {
	if ev.Action != domain.ActionCreated || ev.Type != domain.TypePurchase {
		return domain.OperatorRisk{}
	}

	// Rule 1: a single purchase spends more than the threshold.
	if ev.Spent != nil && e.cfg.SpentThreshold > 0 && ev.Spent.GreaterThan(decimal.NewFromFloat(e.cfg.SpentThreshold)) {
		return domain.OperatorRisk{Flagged: true, Reason: fmt.Sprintf("Spent %s exceeds threshold", ev.Spent.StringFixed(2))}
	}

	// Rule 2: the operator enters too many purchases within the window.
	key := fmt.Sprintf("operator_purchase_count:%d", ev.CreatedBy)

	count, err := e.rdb.Incr(ctx, key).Result()
	if err != nil {
		e.logger.Error("redis INCR failed", "operator_id", ev.CreatedBy, "error", err)
		return domain.OperatorRisk{}
	}

	if count == 1 {
		ttl := time.Duration(e.cfg.FrequencyWindowSeconds) * time.Second
		if err := e.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			e.logger.Error("redis EXPIRE failed", "operator_id", ev.CreatedBy, "error", err)
		}
	}

	if count > int64(e.cfg.FrequencyThreshold) {
		reason := fmt.Sprintf(
			"High frequency: %d purchases in %d seconds",
			count,
			e.cfg.FrequencyWindowSeconds,
		)
		return domain.OperatorRisk{Flagged: true, Reason: reason}
	}

	return domain.OperatorRisk{}
}
