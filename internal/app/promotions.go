package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"loyalty-points-system/internal/core/domain"
	"loyalty-points-system/internal/core/ports"
)

var (
	// One point is earned per quarter of currency spent.
	pointUnit = decimal.RequireFromString("0.25")
	half      = decimal.RequireFromString("0.5")
)

// roundHalfUp matches the legacy rounding (halves go towards +inf, including negatives).
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Add(half).Floor()
}

// BasePoints converts a spend into unrounded points.
func BasePoints(spent decimal.Decimal) decimal.Decimal {
	return spent.Div(pointUnit)
}

// promotionBonus sums the promotion contributions on top of base. Rate contributions are
// rounded one by one; fixed points are added as they are.
func promotionBonus(base decimal.Decimal, promotions []domain.Promotion) decimal.Decimal {
	bonus := decimal.Zero
	for _, p := range promotions {
		if p.Rate.Valid {
			bonus = bonus.Add(roundHalfUp(base.Mul(pointUnit.Add(p.Rate.Decimal))))
		}
		if p.Points != nil {
			bonus = bonus.Add(decimal.NewFromInt(*p.Points))
		}
	}
	return bonus
}

// ComputeBonus returns the points a spend earns under the given promotions, base included.
// The total is rounded once, after the individually rounded rate contributions are added;
// this double rounding is the legacy behavior and is kept on purpose.
func ComputeBonus(spent decimal.Decimal, promotions []domain.Promotion) int64 {
	base := BasePoints(spent)
	return roundHalfUp(base.Add(promotionBonus(base, promotions))).IntPart()
}

// purchasePoints stacks the automatic promotions' bonus on top of the manual computation.
// The base is only counted once.
func purchasePoints(spent decimal.Decimal, manual, automatic []domain.Promotion) int64 {
	total := ComputeBonus(spent, manual)
	if len(automatic) > 0 {
		total += roundHalfUp(promotionBonus(BasePoints(spent), automatic)).IntPart()
	}
	return total
}

// ValidateManualPromotions resolves promotions a cashier selected for accountID and checks
// each one can be applied at now.
func ValidateManualPromotions(ctx context.Context, tx ports.Tx, ids []int64, accountID int64, now time.Time) ([]domain.Promotion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %d", domain.ErrDuplicatePromotion, id)
		}
		seen[id] = struct{}{}
	}

	found, err := tx.PromotionsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load promotions: %w", err)
	}
	byID := make(map[int64]domain.Promotion, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	promotions := make([]domain.Promotion, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", domain.ErrPromotionNotFound, id)
		}
		if !p.ActiveAt(now) {
			return nil, fmt.Errorf("%w: %d", domain.ErrPromotionExpired, id)
		}
		if p.Type == domain.PromotionAutomatic {
			return nil, fmt.Errorf("%w: %d is automatic", domain.ErrPromotionNotApplicable, id)
		}
		if p.Type == domain.PromotionOneTime {
			used, err := tx.PromotionUsed(ctx, id, accountID)
			if err != nil {
				return nil, fmt.Errorf("failed to check promotion usage: %w", err)
			}
			if used {
				return nil, fmt.Errorf("%w: %d", domain.ErrPromotionAlreadyUsed, id)
			}
		}
		promotions = append(promotions, p)
	}
	return promotions, nil
}

// QualifyingAutomaticPromotions returns every automatic promotion active at now whose
// minimum spend is met. An empty result is valid.
func QualifyingAutomaticPromotions(ctx context.Context, tx ports.Tx, spent decimal.Decimal, now time.Time) ([]domain.Promotion, error) {
	all, err := tx.PromotionsByType(ctx, domain.PromotionAutomatic)
	if err != nil {
		return nil, fmt.Errorf("failed to load automatic promotions: %w", err)
	}
	var qualifying []domain.Promotion
	for _, p := range all {
		if p.ActiveAt(now) && p.Qualifies(spent) {
			qualifying = append(qualifying, p)
		}
	}
	return qualifying, nil
}

// MarkPromotionsConsumed records accountID against every one-time promotion in the set.
// The store's uniqueness rule is what makes this safe under concurrent purchases.
func MarkPromotionsConsumed(ctx context.Context, tx ports.Tx, accountID, transactionID int64, promotions []domain.Promotion) error {
	for _, p := range promotions {
		if p.Type != domain.PromotionOneTime {
			continue
		}
		if err := tx.RecordPromotionUsage(ctx, p.ID, accountID, transactionID); err != nil {
			return fmt.Errorf("promotion %d: %w", p.ID, err)
		}
	}
	return nil
}

func promotionIDs(sets ...[]domain.Promotion) []int64 {
	var ids []int64
	for _, set := range sets {
		for _, p := range set {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
