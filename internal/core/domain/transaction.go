package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is derived from a transaction's details, never stored independently.
type TransactionType string

const (
	TypePurchase   TransactionType = "purchase"
	TypeRedemption TransactionType = "redemption"
	TypeAdjustment TransactionType = "adjustment"
	TypeTransfer   TransactionType = "transfer"
	TypeEvent      TransactionType = "event"
)

// Details is the kind-specific payload of a Transaction.
type Details interface {
	transactionType() TransactionType
}

type PurchaseDetails struct {
	Spent        decimal.Decimal
	PromotionIDs []int64
}

// RedemptionDetails moves from requested (Processed false) to processed exactly once.
type RedemptionDetails struct {
	Processed   bool
	ProcessedBy *int64
	ProcessedAt *time.Time
}

type AdjustmentDetails struct {
	RelatedTransactionID int64
	PromotionIDs         []int64
}

// TransferDetails is one side of a transfer pair; CounterpartyID is the other account.
type TransferDetails struct {
	CounterpartyID int64
}

type EventAwardDetails struct {
	EventID int64
}

func (PurchaseDetails) transactionType() TransactionType   { return TypePurchase }
func (RedemptionDetails) transactionType() TransactionType { return TypeRedemption }
func (AdjustmentDetails) transactionType() TransactionType { return TypeAdjustment }
func (TransferDetails) transactionType() TransactionType   { return TypeTransfer }
func (EventAwardDetails) transactionType() TransactionType { return TypeEvent }

// Transaction is the ledger envelope. Amount is the signed delta intended for the owning
// account's balance. Suspicious and the redemption state are the only fields that change
// after creation.
type Transaction struct {
	ID         int64
	AccountID  int64
	Amount     int64
	Remark     string
	CreatedBy  int64
	CreatedAt  time.Time
	Suspicious bool
	Details    Details
}

func (t Transaction) Type() TransactionType {
	if t.Details == nil {
		return ""
	}
	return t.Details.transactionType()
}

// RelatedID is the cross reference carried by the kind: event id, counterparty account id or
// prior transaction id.
func (t Transaction) RelatedID() *int64 {
	var id int64
	switch d := t.Details.(type) {
	case AdjustmentDetails:
		id = d.RelatedTransactionID
	case TransferDetails:
		id = d.CounterpartyID
	case EventAwardDetails:
		id = d.EventID
	default:
		return nil
	}
	return &id
}

func (t Transaction) PromotionIDs() []int64 {
	switch d := t.Details.(type) {
	case PurchaseDetails:
		return d.PromotionIDs
	case AdjustmentDetails:
		return d.PromotionIDs
	}
	return nil
}

// Applied reports whether Amount is currently reflected in the owner's balance.
func (t Transaction) Applied() bool {
	if t.Suspicious {
		return false
	}
	if r, ok := t.Details.(RedemptionDetails); ok {
		return r.Processed
	}
	return true
}
