package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"loyalty-points-system/internal/core/domain"
)

type fakeEngine struct {
	risk domain.OperatorRisk
	seen []domain.LedgerEvent
}

func (f *fakeEngine) CheckEvent(_ context.Context, ev domain.LedgerEvent) domain.OperatorRisk {
	f.seen = append(f.seen, ev)
	return f.risk
}

type fakeWriter struct {
	err  error
	args [][]any
}

func (f *fakeWriter) Exec(_ context.Context, _ string, args ...any) error {
	f.args = append(f.args, args)
	return f.err
}

type fakeProducer struct {
	records []*kgo.Record
}

func (f *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.records = append(f.records, r)
	promise(r, nil)
}

func newTestAnalyzer(engine *fakeEngine, writer *fakeWriter, dlq *fakeProducer) *analyzer {
	return &analyzer{
		engine:   engine,
		reports:  writer,
		dlq:      dlq,
		dlqTopic: "ledger.transactions.dlq",
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      func() time.Time { return time.Unix(0, 0) },
	}
}

func purchaseRecord(t *testing.T) *kgo.Record {
	t.Helper()
	spent := decimal.RequireFromString("12.5")
	ev := domain.NewLedgerEvent(domain.ActionCreated, domain.Transaction{
		ID:        3,
		AccountID: 9,
		Amount:    50,
		CreatedBy: 4,
		Details:   domain.PurchaseDetails{Spent: spent},
	})
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return &kgo.Record{Topic: "ledger.transactions", Key: []byte("9"), Value: payload}
}

func TestAnalyzer_ReportsPurchase(t *testing.T) {
	engine := &fakeEngine{risk: domain.OperatorRisk{Flagged: true, Reason: "High frequency"}}
	writer := &fakeWriter{}
	dlq := &fakeProducer{}

	newTestAnalyzer(engine, writer, dlq).handle(context.Background(), purchaseRecord(t))

	require.Len(t, engine.seen, 1)
	require.Len(t, writer.args, 1)
	args := writer.args[0]
	assert.Equal(t, int64(3), args[1])
	assert.Equal(t, int64(4), args[3])
	assert.True(t, decimal.RequireFromString("12.5").Equal(args[4].(decimal.Decimal)))
	assert.Equal(t, true, args[6])
	assert.Equal(t, "High frequency", args[7])
	assert.Empty(t, dlq.records)
}

func TestAnalyzer_SkipsOtherEvents(t *testing.T) {
	engine := &fakeEngine{}
	writer := &fakeWriter{}
	ev := domain.NewLedgerEvent(domain.ActionCreated, domain.Transaction{ID: 1, AccountID: 2, Amount: -5, Details: domain.TransferDetails{CounterpartyID: 3}})
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	newTestAnalyzer(engine, writer, &fakeProducer{}).handle(context.Background(), &kgo.Record{Value: payload})

	assert.Empty(t, engine.seen)
	assert.Empty(t, writer.args)
}

func TestAnalyzer_DeadLetters(t *testing.T) {
	t.Run("malformed payload", func(t *testing.T) {
		dlq := &fakeProducer{}
		newTestAnalyzer(&fakeEngine{}, &fakeWriter{}, dlq).
			handle(context.Background(), &kgo.Record{Topic: "ledger.transactions", Value: []byte("{")})

		require.Len(t, dlq.records, 1)
		assert.Equal(t, "ledger.transactions.dlq", dlq.records[0].Topic)
		assert.Equal(t, "unmarshal_error", string(dlq.records[0].Headers[0].Value))
	})

	t.Run("storage failure", func(t *testing.T) {
		dlq := &fakeProducer{}
		newTestAnalyzer(&fakeEngine{}, &fakeWriter{err: errors.New("clickhouse down")}, dlq).
			handle(context.Background(), purchaseRecord(t))

		require.Len(t, dlq.records, 1)
		assert.Equal(t, "storage_error", string(dlq.records[0].Headers[0].Value))
		assert.Equal(t, "clickhouse down", string(dlq.records[0].Headers[1].Value))
	})
}
