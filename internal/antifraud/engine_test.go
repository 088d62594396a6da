package antifraud

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty-points-system/internal/config"
	"loyalty-points-system/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func purchaseEvent(spent string) domain.LedgerEvent {
	d := decimal.RequireFromString(spent)
	return domain.LedgerEvent{Action: domain.ActionCreated, Type: domain.TypePurchase, CreatedBy: 7, Spent: &d}
}

func TestCachingRuleEngine_SpentThreshold(t *testing.T) {
	// the threshold rule answers before any Redis call, so no client is needed
	engine := NewCachingRuleEngine(nil, config.AntiFraudConfig{SpentThreshold: 500}, discardLogger())

	risk := engine.CheckEvent(context.Background(), purchaseEvent("500.01"))

	assert.True(t, risk.Flagged)
	assert.Contains(t, risk.Reason, "500.01")
}

func TestCachingRuleEngine_IgnoresNonPurchases(t *testing.T) {
	engine := NewCachingRuleEngine(nil, config.AntiFraudConfig{SpentThreshold: 1}, discardLogger())

	tests := []domain.LedgerEvent{
		{Action: domain.ActionCreated, Type: domain.TypeTransfer},
		{Action: domain.ActionSuspiciousChanged, Type: domain.TypePurchase},
	}
	for _, ev := range tests {
		assert.False(t, engine.CheckEvent(context.Background(), ev).Flagged)
	}
}

func TestExternalServiceRuleEngine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev domain.LedgerEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(domain.OperatorRisk{Flagged: ev.CreatedBy == 7, Reason: "scored"})
	}))
	defer server.Close()

	engine := NewExternalServiceRuleEngine(server.URL, discardLogger())

	risk := engine.CheckEvent(context.Background(), purchaseEvent("10"))

	assert.True(t, risk.Flagged)
	assert.Equal(t, "scored", risk.Reason)
}

func TestExternalServiceRuleEngine_FailsOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	engine := NewExternalServiceRuleEngine(server.URL, discardLogger())

	assert.Equal(t, domain.OperatorRisk{}, engine.CheckEvent(context.Background(), purchaseEvent("10")))
}
