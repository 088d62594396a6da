package memory

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"loyalty-points-system/internal/core/domain"
)

// Fixtures seed a memory store for local runs.
type Fixtures struct {
	Accounts []struct {
		ID         int64  `yaml:"id"`
		UTORid     string `yaml:"utorid"`
		Name       string `yaml:"name"`
		Role       string `yaml:"role"`
		Points     int64  `yaml:"points"`
		Verified   bool   `yaml:"verified"`
		Suspicious bool   `yaml:"suspicious"`
	} `yaml:"accounts"`
	Promotions []struct {
		ID          int64     `yaml:"id"`
		Name        string    `yaml:"name"`
		Type        string    `yaml:"type"`
		StartTime   time.Time `yaml:"start_time"`
		EndTime     time.Time `yaml:"end_time"`
		MinSpending *string   `yaml:"min_spending"`
		Rate        *string   `yaml:"rate"`
		Points      *int64    `yaml:"points"`
	} `yaml:"promotions"`
	Events []struct {
		ID         int64   `yaml:"id"`
		Name       string  `yaml:"name"`
		Organizers []int64 `yaml:"organizers"`
		Guests     []int64 `yaml:"guests"`
		Points     int64   `yaml:"points"`
	} `yaml:"events"`
}

// LoadFixtures reads a YAML fixture file into s.
func (s *Store) LoadFixtures(path string) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading fixtures file: %w", err)
	}
	var fx Fixtures
	if err := yaml.Unmarshal(file, &fx); err != nil {
		return fmt.Errorf("error parsing fixtures file: %w", err)
	}

	for _, a := range fx.Accounts {
		s.PutAccount(domain.Account{
			ID:         a.ID,
			UTORid:     a.UTORid,
			Name:       a.Name,
			Role:       domain.Role(a.Role),
			Points:     a.Points,
			Verified:   a.Verified,
			Suspicious: a.Suspicious,
		})
	}
	for _, p := range fx.Promotions {
		promo := domain.Promotion{
			ID:        p.ID,
			Name:      p.Name,
			Type:      domain.PromotionType(p.Type),
			StartTime: p.StartTime,
			EndTime:   p.EndTime,
			Points:    p.Points,
		}
		if promo.MinSpending, err = parseOptionalDecimal(p.MinSpending); err != nil {
			return fmt.Errorf("promotion %d min_spending: %w", p.ID, err)
		}
		if promo.Rate, err = parseOptionalDecimal(p.Rate); err != nil {
			return fmt.Errorf("promotion %d rate: %w", p.ID, err)
		}
		s.PutPromotion(promo)
	}
	for _, e := range fx.Events {
		s.PutEvent(domain.Event{
			ID:           e.ID,
			Name:         e.Name,
			Organizers:   e.Organizers,
			Guests:       e.Guests,
			PointsRemain: e.Points,
		})
	}
	return nil
}

func parseOptionalDecimal(v *string) (decimal.NullDecimal, error) {
	if v == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
