package antifraud

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"loyalty-points-system/internal/core/domain"
)

// ExternalServiceRuleEngine calls an external scorer to make decisions. Any failure leaves
// the event unflagged.
type ExternalServiceRuleEngine struct {
	client    *http.Client
	scorerURL string
	logger    *slog.Logger
}

func NewExternalServiceRuleEngine(scorerURL string, logger *slog.Logger) *ExternalServiceRuleEngine {
	return &ExternalServiceRuleEngine{
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		scorerURL: scorerURL,
		logger:    logger,
	}
}

func (e *ExternalServiceRuleEngine) CheckEvent(ctx context.Context, ev domain.LedgerEvent) domain.OperatorRisk {
	requestBody, err := json.Marshal(ev)
	if err != nil {
		e.logger.Error("failed to marshal event for external scorer", "error", err)
		return domain.OperatorRisk{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.scorerURL, bytes.NewReader(requestBody))
	if err != nil {
		e.logger.Error("failed to create request for external scorer", "error", err)
		return domain.OperatorRisk{}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Error("external scorer call failed", "error", err)
		return domain.OperatorRisk{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.logger.Error("external scorer returned non-200 status", "status", resp.Status)
		return domain.OperatorRisk{}
	}

	var result domain.OperatorRisk
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		e.logger.Error("failed to decode external scorer response", "error", err)
		return domain.OperatorRisk{}
	}

	return result
}
