package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerAction says what happened to the transaction carried by a LedgerEvent.
type LedgerAction string

const (
	ActionCreated           LedgerAction = "created"
	ActionSuspiciousChanged LedgerAction = "suspicious_changed"
	ActionProcessed         LedgerAction = "processed"
)

// LedgerEvent is the stream representation of a committed ledger change.
type LedgerEvent struct {
	EventID       uuid.UUID        `json:"event_id"`
	Action        LedgerAction     `json:"action"`
	TransactionID int64            `json:"transaction_id"`
	Type          TransactionType  `json:"type"`
	AccountID     int64            `json:"account_id"`
	Amount        int64            `json:"amount"`
	Spent         *decimal.Decimal `json:"spent,omitempty"`
	RelatedID     *int64           `json:"related_id,omitempty"`
	PromotionIDs  []int64          `json:"promotion_ids,omitempty"`
	Suspicious    bool             `json:"suspicious"`
	Processed     *bool            `json:"processed,omitempty"`
	CreatedBy     int64            `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
}

func NewLedgerEvent(action LedgerAction, tx Transaction) LedgerEvent {
	ev := LedgerEvent{
		EventID:       uuid.New(),
		Action:        action,
		TransactionID: tx.ID,
		Type:          tx.Type(),
		AccountID:     tx.AccountID,
		Amount:        tx.Amount,
		RelatedID:     tx.RelatedID(),
		PromotionIDs:  tx.PromotionIDs(),
		Suspicious:    tx.Suspicious,
		CreatedBy:     tx.CreatedBy,
		CreatedAt:     tx.CreatedAt,
	}
	switch d := tx.Details.(type) {
	case PurchaseDetails:
		spent := d.Spent
		ev.Spent = &spent
	case RedemptionDetails:
		processed := d.Processed
		ev.Processed = &processed
	}
	return ev
}

// OperatorRisk is the verdict of the operator velocity analysis for one purchase.
type OperatorRisk struct {
	Flagged bool   `json:"flagged"`
	Reason  string `json:"reason"`
}
