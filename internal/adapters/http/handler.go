package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"loyalty-points-system/internal/core/domain"
	"loyalty-points-system/internal/core/ports"
	"loyalty-points-system/internal/observability"
)

// LedgerHandler exposes the ledger operations over HTTP.
type LedgerHandler struct {
	service ports.LedgerService
	logger  *slog.Logger
}

func NewLedgerHandler(service ports.LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		service: service,
		logger:  logger,
	}
}

// Routes registers the ledger endpoints. Authentication middleware must run first.
func (h *LedgerHandler) Routes(r chi.Router) {
	r.Post("/transactions", h.HandleCreateTransaction)
	r.Patch("/transactions/{transactionID}/suspicious", h.HandleSetSuspicious)
	r.Patch("/transactions/{transactionID}/processed", h.HandleProcessRedemption)
	r.Post("/users/me/transactions", h.HandleRequestRedemption)
	r.Post("/users/{userID}/transactions", h.HandleTransfer)
	r.Post("/events/{eventID}/transactions", h.HandleEventAward)
}

type createTransactionRequest struct {
	Type         string           `json:"type"`
	UTORid       string           `json:"utorid"`
	Spent        *decimal.Decimal `json:"spent"`
	Amount       *int64           `json:"amount"`
	RelatedID    *int64           `json:"related_id"`
	PromotionIDs []int64          `json:"promotion_ids"`
	Remark       string           `json:"remark"`
}

type pointsRequest struct {
	Type   string `json:"type"`
	UTORid string `json:"utorid"`
	Amount *int64 `json:"amount"`
	Remark string `json:"remark"`
}

type transactionResponse struct {
	ID           int64            `json:"id"`
	AccountID    int64            `json:"account_id"`
	UTORid       string           `json:"utorid,omitempty"`
	Type         string           `json:"type"`
	Amount       int64            `json:"amount"`
	Spent        *decimal.Decimal `json:"spent,omitempty"`
	Earned       *int64           `json:"earned,omitempty"`
	RelatedID    *int64           `json:"related_id,omitempty"`
	PromotionIDs []int64          `json:"promotion_ids"`
	Suspicious   bool             `json:"suspicious"`
	Remark       string           `json:"remark"`
	CreatedBy    int64            `json:"created_by"`
	CreatedAt    time.Time        `json:"created_at"`
	Processed    *bool            `json:"processed,omitempty"`
	ProcessedBy  *int64           `json:"processed_by,omitempty"`
}

func toResponse(tx domain.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:           tx.ID,
		AccountID:    tx.AccountID,
		Type:         string(tx.Type()),
		Amount:       tx.Amount,
		RelatedID:    tx.RelatedID(),
		PromotionIDs: tx.PromotionIDs(),
		Suspicious:   tx.Suspicious,
		Remark:       tx.Remark,
		CreatedBy:    tx.CreatedBy,
		CreatedAt:    tx.CreatedAt,
	}
	if resp.PromotionIDs == nil {
		resp.PromotionIDs = []int64{}
	}
	switch d := tx.Details.(type) {
	case domain.PurchaseDetails:
		spent := d.Spent
		resp.Spent = &spent
	case domain.RedemptionDetails:
		processed := d.Processed
		resp.Processed = &processed
		resp.ProcessedBy = d.ProcessedBy
	}
	return resp
}

// actor returns the authenticated caller, or answers 401 when the chain was misconfigured.
func (h *LedgerHandler) actor(w http.ResponseWriter, r *http.Request, minRole domain.Role) (domain.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeJSONError(w, "authentication required", http.StatusUnauthorized)
		return actor, false
	}
	if !actor.Role.AtLeast(minRole) {
		writeJSONError(w, fmt.Sprintf("requires %s role or higher", minRole), http.StatusForbidden)
		return actor, false
	}
	return actor, true
}

func (h *LedgerHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *LedgerHandler) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	code, message := statusFor(err)
	logger := observability.LoggerFromContext(r.Context(), h.logger)
	switch {
	case code == http.StatusServiceUnavailable:
		logger.Warn("temporary failure in external dependency", "operation", operation, "error", err)
	case code >= http.StatusInternalServerError:
		logger.Error("unexpected error", "operation", operation, "error", err)
	default:
		logger.Debug("ledger operation rejected", "operation", operation, "error", err)
	}
	writeJSONError(w, message, code)
}

// HandleCreateTransaction creates a purchase (cashier or higher) or an adjustment (manager or
// higher) depending on the body's type.
func (h *LedgerHandler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UTORid == "" {
		writeJSONError(w, "utorid is required", http.StatusBadRequest)
		return
	}

	switch domain.TransactionType(req.Type) {
	case domain.TypePurchase:
		actor, ok := h.actor(w, r, domain.RoleCashier)
		if !ok {
			return
		}
		if req.Spent == nil {
			writeJSONError(w, "spent is required", http.StatusBadRequest)
			return
		}
		result, err := h.service.CreatePurchase(r.Context(), actor, ports.PurchaseRequest{
			CustomerUTORid: req.UTORid,
			Spent:          *req.Spent,
			PromotionIDs:   req.PromotionIDs,
			Remark:         req.Remark,
		})
		if err != nil {
			h.fail(w, r, "purchase", err)
			return
		}
		resp := toResponse(result.Transaction)
		resp.UTORid = result.CustomerUTORid
		resp.Earned = &result.Earned
		writeJSON(w, http.StatusCreated, resp, h.logger)

	case domain.TypeAdjustment:
		actor, ok := h.actor(w, r, domain.RoleManager)
		if !ok {
			return
		}
		if req.Amount == nil || req.RelatedID == nil {
			writeJSONError(w, "amount and related_id are required", http.StatusBadRequest)
			return
		}
		record, err := h.service.CreateAdjustment(r.Context(), actor, ports.AdjustmentRequest{
			CustomerUTORid:       req.UTORid,
			Amount:               *req.Amount,
			RelatedTransactionID: *req.RelatedID,
			PromotionIDs:         req.PromotionIDs,
			Remark:               req.Remark,
		})
		if err != nil {
			h.fail(w, r, "adjustment", err)
			return
		}
		resp := toResponse(*record)
		resp.UTORid = req.UTORid
		writeJSON(w, http.StatusCreated, resp, h.logger)

	default:
		writeJSONError(w, "type must be purchase or adjustment", http.StatusBadRequest)
	}
}

func (h *LedgerHandler) HandleSetSuspicious(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r, domain.RoleManager); !ok {
		return
	}
	id, ok := pathID(w, r, "transactionID")
	if !ok {
		return
	}
	var req struct {
		Suspicious *bool `json:"suspicious"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Suspicious == nil {
		writeJSONError(w, "suspicious is required", http.StatusBadRequest)
		return
	}

	record, err := h.service.SetTransactionSuspicious(r.Context(), id, *req.Suspicious)
	if err != nil {
		h.fail(w, r, "set_suspicious", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(*record), h.logger)
}

func (h *LedgerHandler) HandleProcessRedemption(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, domain.RoleCashier)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "transactionID")
	if !ok {
		return
	}
	var req struct {
		Processed bool `json:"processed"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if !req.Processed {
		writeJSONError(w, "processed can only be set to true", http.StatusBadRequest)
		return
	}

	record, err := h.service.ProcessRedemption(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, "process_redemption", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(*record), h.logger)
}

func (h *LedgerHandler) HandleRequestRedemption(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, domain.RoleRegular)
	if !ok {
		return
	}
	var req pointsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Type != string(domain.TypeRedemption) || req.Amount == nil {
		writeJSONError(w, "type must be redemption and amount is required", http.StatusBadRequest)
		return
	}

	record, err := h.service.RequestRedemption(r.Context(), actor, *req.Amount, req.Remark)
	if err != nil {
		h.fail(w, r, "request_redemption", err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(*record), h.logger)
}

func (h *LedgerHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, domain.RoleRegular)
	if !ok {
		return
	}
	recipientID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req pointsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Type != string(domain.TypeTransfer) || req.Amount == nil {
		writeJSONError(w, "type must be transfer and amount is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.Transfer(r.Context(), actor, ports.TransferRequest{
		RecipientID: recipientID,
		Amount:      *req.Amount,
		Remark:      req.Remark,
	})
	if err != nil {
		h.fail(w, r, "transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]transactionResponse{
		"sent":     toResponse(result.Sent),
		"received": toResponse(result.Received),
	}, h.logger)
}

// HandleEventAward awards one guest when utorid is given, otherwise every RSVP'd guest.
func (h *LedgerHandler) HandleEventAward(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, domain.RoleRegular)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	var req pointsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Type != string(domain.TypeEvent) || req.Amount == nil {
		writeJSONError(w, "type must be event and amount is required", http.StatusBadRequest)
		return
	}

	award := ports.EventAwardRequest{
		EventID:     eventID,
		GuestUTORid: req.UTORid,
		Amount:      *req.Amount,
		Remark:      req.Remark,
	}
	if req.UTORid != "" {
		record, err := h.service.AwardEventPoints(r.Context(), actor, award)
		if err != nil {
			h.fail(w, r, "event_award", err)
			return
		}
		resp := toResponse(*record)
		resp.UTORid = req.UTORid
		writeJSON(w, http.StatusCreated, resp, h.logger)
		return
	}

	records, err := h.service.AwardEventPointsToAll(r.Context(), actor, award)
	if err != nil {
		h.fail(w, r, "event_award_all", err)
		return
	}
	resp := make([]transactionResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, toResponse(record))
	}
	writeJSON(w, http.StatusCreated, resp, h.logger)
}
