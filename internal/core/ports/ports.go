package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"loyalty-points-system/internal/core/domain"
)

// Store is an "outgoing port" for the ledger's persistent state. WithinTx runs fn as a single
// atomic read-modify-write unit: any error returned by fn leaves the store unchanged.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of primitives available inside one unit of work. Reads of accounts, events
// and transactions lock the row until the unit completes.
type Tx interface {
	AccountByID(ctx context.Context, id int64) (domain.Account, error)
	AccountByUTORid(ctx context.Context, utorid string) (domain.Account, error)
	// AddPoints applies delta atomically and returns the new balance. It fails with
	// domain.ErrInsufficientPoints rather than leave a negative balance.
	AddPoints(ctx context.Context, accountID, delta int64) (int64, error)

	PromotionsByIDs(ctx context.Context, ids []int64) ([]domain.Promotion, error)
	PromotionsByType(ctx context.Context, promoType domain.PromotionType) ([]domain.Promotion, error)
	PromotionUsed(ctx context.Context, promotionID, accountID int64) (bool, error)
	// RecordPromotionUsage is guarded by a uniqueness rule on (promotion, account) and
	// returns domain.ErrPromotionAlreadyUsed when it is violated.
	RecordPromotionUsage(ctx context.Context, promotionID, accountID, transactionID int64) error

	EventByID(ctx context.Context, id int64) (domain.Event, error)
	// ApplyEventAward moves total points from the event's remaining pool to its awarded
	// counter, failing with domain.ErrInsufficientPool if the pool is too small.
	ApplyEventAward(ctx context.Context, eventID, total int64) error

	// CreateTransaction assigns the ID (and CreatedAt when zero) on tx.
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	TransactionByID(ctx context.Context, id int64) (domain.Transaction, error)
	SetTransactionSuspicious(ctx context.Context, id int64, suspicious bool) error
	MarkRedemptionProcessed(ctx context.Context, id, processedBy int64, at time.Time) error
}

// MessageBroker is another outgoing port, for announcing committed ledger changes.
type MessageBroker interface {
	PublishLedgerEvent(ctx context.Context, ev domain.LedgerEvent) error
}

// RateLimiterRepository keeps rate-limit state outside the process, keyed by identifier.
type RateLimiterRepository interface {
	IsAllowed(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type PurchaseRequest struct {
	CustomerUTORid string
	Spent          decimal.Decimal
	PromotionIDs   []int64
	Remark         string
}

// PurchaseResult is what a cashier sees: Earned is zero when the credit was suppressed.
type PurchaseResult struct {
	Transaction    domain.Transaction
	CustomerUTORid string
	Earned         int64
}

type AdjustmentRequest struct {
	CustomerUTORid       string
	Amount               int64
	RelatedTransactionID int64
	PromotionIDs         []int64
	Remark               string
}

type TransferRequest struct {
	RecipientID int64
	Amount      int64
	Remark      string
}

// TransferResult holds both sides of a transfer; their amounts sum to zero.
type TransferResult struct {
	Sent     domain.Transaction
	Received domain.Transaction
}

type EventAwardRequest struct {
	EventID     int64
	GuestUTORid string
	Amount      int64
	Remark      string
}

// LedgerService is an "incoming port": one operation per ledger contract. Arguments arrive
// authenticated and shape-validated; the service re-checks sign and positivity.
type LedgerService interface {
	CreatePurchase(ctx context.Context, actor domain.Actor, req PurchaseRequest) (*PurchaseResult, error)
	CreateAdjustment(ctx context.Context, actor domain.Actor, req AdjustmentRequest) (*domain.Transaction, error)
	SetTransactionSuspicious(ctx context.Context, transactionID int64, suspicious bool) (*domain.Transaction, error)
	RequestRedemption(ctx context.Context, actor domain.Actor, amount int64, remark string) (*domain.Transaction, error)
	ProcessRedemption(ctx context.Context, actor domain.Actor, transactionID int64) (*domain.Transaction, error)
	Transfer(ctx context.Context, actor domain.Actor, req TransferRequest) (*TransferResult, error)
	AwardEventPoints(ctx context.Context, actor domain.Actor, req EventAwardRequest) (*domain.Transaction, error)
	AwardEventPointsToAll(ctx context.Context, actor domain.Actor, req EventAwardRequest) ([]domain.Transaction, error)
}
