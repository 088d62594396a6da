package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty-points-system/internal/adapters/messaging/mock"
	"loyalty-points-system/internal/adapters/storage/memory"
	"loyalty-points-system/internal/app"
	"loyalty-points-system/internal/auth"
	"loyalty-points-system/internal/core/domain"
)

const testSecret = "test-secret"

type testAPI struct {
	t       *testing.T
	router  chi.Router
	store   *memory.Store
	broker  *mock.Broker
	tokens  *auth.TokenIssuer
	regular domain.Account
	other   domain.Account
	cashier domain.Account
	manager domain.Account
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	broker := mock.NewBroker(logger)
	tokens, err := auth.NewTokenIssuer(testSecret, "", time.Hour)
	require.NoError(t, err)

	api := &testAPI{
		t:       t,
		store:   store,
		broker:  broker,
		tokens:  tokens,
		regular: store.PutAccount(domain.Account{UTORid: "regular1", Role: domain.RoleRegular, Points: 100, Verified: true}),
		other:   store.PutAccount(domain.Account{UTORid: "other01", Role: domain.RoleRegular, Verified: true}),
		cashier: store.PutAccount(domain.Account{UTORid: "cashier1", Role: domain.RoleCashier, Verified: true}),
		manager: store.PutAccount(domain.Account{UTORid: "manager1", Role: domain.RoleManager, Verified: true}),
	}

	handler := NewLedgerHandler(app.NewLedgerService(store, broker, logger), logger)
	r := chi.NewRouter()
	r.Use(JWTMiddleware([]byte(testSecret), logger))
	handler.Routes(r)
	api.router = r
	return api
}

func (a *testAPI) do(as domain.Account, method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if as.ID != 0 {
		token, err := a.tokens.Issue(as.ID, as.Role)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandleCreateTransaction_Purchase(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(api.cashier, http.MethodPost, "/transactions", map[string]any{
		"type":   "purchase",
		"utorid": "regular1",
		"spent":  "40.00",
		"remark": "coffee",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[transactionResponse](t, rec)
	assert.Equal(t, "purchase", resp.Type)
	assert.Equal(t, "regular1", resp.UTORid)
	assert.Equal(t, int64(160), resp.Amount)
	require.NotNil(t, resp.Earned)
	assert.Equal(t, int64(160), *resp.Earned)
	assert.Equal(t, api.cashier.ID, resp.CreatedBy)

	balance, _ := api.store.Account(api.regular.ID)
	assert.Equal(t, int64(260), balance.Points)
	assert.Len(t, api.broker.Events(), 1)
}

func TestHandleCreateTransaction_Rejections(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		as   domain.Account
		body any
		want int
	}{
		{"no token", domain.Account{}, map[string]any{"type": "purchase", "utorid": "regular1", "spent": "1"}, http.StatusUnauthorized},
		{"regular cannot sell", api.regular, map[string]any{"type": "purchase", "utorid": "regular1", "spent": "1"}, http.StatusForbidden},
		{"cashier cannot adjust", api.cashier, map[string]any{"type": "adjustment", "utorid": "regular1", "amount": 5, "related_id": 1}, http.StatusForbidden},
		{"unknown type", api.manager, map[string]any{"type": "refund", "utorid": "regular1"}, http.StatusBadRequest},
		{"missing spent", api.cashier, map[string]any{"type": "purchase", "utorid": "regular1"}, http.StatusBadRequest},
		{"negative spent", api.cashier, map[string]any{"type": "purchase", "utorid": "regular1", "spent": "-3"}, http.StatusBadRequest},
		{"unknown customer", api.cashier, map[string]any{"type": "purchase", "utorid": "nobody00", "spent": "3"}, http.StatusNotFound},
		{"missing related", api.manager, map[string]any{"type": "adjustment", "utorid": "regular1", "amount": 5}, http.StatusBadRequest},
		{"related not found", api.manager, map[string]any{"type": "adjustment", "utorid": "regular1", "amount": 5, "related_id": 999}, http.StatusNotFound},
		{"malformed body", api.cashier, "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.as, http.MethodPost, "/transactions", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRedemptionWorkflow(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(api.regular, http.MethodPost, "/users/me/transactions", map[string]any{
		"type":   "redemption",
		"amount": 60,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[transactionResponse](t, rec)
	require.NotNil(t, created.Processed)
	assert.False(t, *created.Processed)

	balance, _ := api.store.Account(api.regular.ID)
	assert.Equal(t, int64(100), balance.Points)

	path := "/transactions/" + itoa(created.ID) + "/processed"

	rec = api.do(api.regular, http.MethodPatch, path, map[string]any{"processed": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(api.cashier, http.MethodPatch, path, map[string]any{"processed": false})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(api.cashier, http.MethodPatch, path, map[string]any{"processed": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	processed := decodeBody[transactionResponse](t, rec)
	assert.True(t, *processed.Processed)
	require.NotNil(t, processed.ProcessedBy)
	assert.Equal(t, api.cashier.ID, *processed.ProcessedBy)

	balance, _ = api.store.Account(api.regular.ID)
	assert.Equal(t, int64(40), balance.Points)

	rec = api.do(api.cashier, http.MethodPatch, path, map[string]any{"processed": true})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleTransfer(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(api.regular, http.MethodPost, "/users/"+itoa(api.other.ID)+"/transactions", map[string]any{
		"type":   "transfer",
		"amount": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[map[string]transactionResponse](t, rec)
	assert.Equal(t, int64(-30), resp["sent"].Amount)
	assert.Equal(t, int64(30), resp["received"].Amount)

	rec = api.do(api.regular, http.MethodPost, "/users/"+itoa(api.other.ID)+"/transactions", map[string]any{
		"type":   "transfer",
		"amount": 1000,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(api.regular, http.MethodPost, "/users/abc/transactions", map[string]any{"type": "transfer", "amount": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSetSuspicious(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(api.cashier, http.MethodPost, "/transactions", map[string]any{
		"type": "purchase", "utorid": "regular1", "spent": "10",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	purchase := decodeBody[transactionResponse](t, rec)
	path := "/transactions/" + itoa(purchase.ID) + "/suspicious"

	rec = api.do(api.cashier, http.MethodPatch, path, map[string]any{"suspicious": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(api.manager, http.MethodPatch, path, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(api.manager, http.MethodPatch, path, map[string]any{"suspicious": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[transactionResponse](t, rec).Suspicious)

	balance, _ := api.store.Account(api.regular.ID)
	assert.Equal(t, int64(100), balance.Points)

	rec = api.do(api.manager, http.MethodPatch, "/transactions/999/suspicious", map[string]any{"suspicious": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleEventAward(t *testing.T) {
	api := newTestAPI(t)
	api.store.PutEvent(domain.Event{
		ID:           7,
		Name:         "launch",
		Organizers:   []int64{api.cashier.ID},
		Guests:       []int64{api.regular.ID, api.other.ID},
		PointsRemain: 50,
	})

	rec := api.do(api.regular, http.MethodPost, "/events/7/transactions", map[string]any{"type": "event", "amount": 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(api.cashier, http.MethodPost, "/events/7/transactions", map[string]any{
		"type": "event", "utorid": "other01", "amount": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	single := decodeBody[transactionResponse](t, rec)
	assert.Equal(t, "other01", single.UTORid)
	require.NotNil(t, single.RelatedID)
	assert.Equal(t, int64(7), *single.RelatedID)

	rec = api.do(api.cashier, http.MethodPost, "/events/7/transactions", map[string]any{"type": "event", "amount": 25})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(api.cashier, http.MethodPost, "/events/7/transactions", map[string]any{"type": "event", "amount": 20})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody[[]transactionResponse](t, rec), 2)

	event, _ := api.store.Event(7)
	assert.Equal(t, int64(0), event.PointsRemain)
	assert.Equal(t, int64(50), event.PointsAwarded)
}

func TestJWTMiddleware_RejectsBadTokens(t *testing.T) {
	api := newTestAPI(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "role": "manager", "exp": time.Now().Add(-time.Minute).Unix(),
	})
	expiredToken, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("other"))
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "role": "owner", "exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	for name, header := range map[string]string{
		"expired":   "Bearer " + expiredToken,
		"no exp":    "Bearer " + noExp,
		"wrong key": "Bearer " + wrongKey,
		"bad role":  "Bearer " + badRole,
		"no scheme": expiredToken,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/users/me/transactions", strings.NewReader(`{}`))
			req.Header.Set("Authorization", header)
			rec := httptest.NewRecorder()
			api.router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrValidation, http.StatusBadRequest},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrEventNotFound, http.StatusNotFound},
		{domain.ErrPromotionAlreadyUsed, http.StatusConflict},
		{domain.ErrInsufficientPool, http.StatusUnprocessableEntity},
		{domain.ErrStorageUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		code, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, code, tt.err.Error())
	}
}

type fakeLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (f *fakeLimiter) IsAllowed(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allowed, f.err
}

func TestRateLimiterMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	t.Run("denied", func(t *testing.T) {
		limiter := &fakeLimiter{allowed: false}
		mw := NewRateLimiterMiddleware(limiter, 1, 30*time.Second, logger)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		mw.Handler(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "30", rec.Header().Get("Retry-After"))
		assert.Equal(t, []string{"ip:10.0.0.1"}, limiter.keys)
	})

	t.Run("keyed by account", func(t *testing.T) {
		limiter := &fakeLimiter{allowed: true}
		mw := NewRateLimiterMiddleware(limiter, 1, time.Second, logger)
		ctx, err := withIdentity(context.Background(), map[string]any{"sub": "12", "role": "cashier"})
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		mw.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{"account:12"}, limiter.keys)
	})

	t.Run("fails open", func(t *testing.T) {
		limiter := &fakeLimiter{err: errors.New("redis down")}
		mw := NewRateLimiterMiddleware(limiter, 1, time.Second, logger)
		rec := httptest.NewRecorder()
		mw.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestActorFromClaims(t *testing.T) {
	actor, err := actorFromClaims(map[string]any{"sub": float64(5)})
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{AccountID: 5, Role: domain.RoleRegular}, actor)

	_, err = actorFromClaims(map[string]any{"sub": "alice"})
	assert.Error(t, err)
	_, err = actorFromClaims(map[string]any{"sub": "-1"})
	assert.Error(t, err)
	_, err = actorFromClaims(map[string]any{})
	assert.Error(t, err)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
