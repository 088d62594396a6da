package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/twmb/franz-go/pkg/kgo"

	"loyalty-points-system/internal/antifraud"
	"loyalty-points-system/internal/core/domain"
)

const createReportsTable = `
CREATE TABLE IF NOT EXISTS operator_risk_reports (
	event_id       UUID,
	transaction_id Int64,
	account_id     Int64,
	created_by     Int64,
	spent          Decimal(18, 2),
	amount         Int64,
	flagged        Bool,
	reason         String,
	analyzed_at    DateTime
) ENGINE = MergeTree ORDER BY (created_by, analyzed_at)`

const insertReport = `
INSERT INTO operator_risk_reports
	(event_id, transaction_id, account_id, created_by, spent, amount, flagged, reason, analyzed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// reportWriter is the part of clickhouse.Conn the analyzer needs.
type reportWriter interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// dlqProducer is the part of kgo.Client used to park records the analyzer cannot handle.
type dlqProducer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

type analyzer struct {
	engine   antifraud.RuleEngine
	reports  reportWriter
	dlq      dlqProducer
	dlqTopic string
	logger   *slog.Logger
	now      func() time.Time
}

// handle scores one record. Malformed payloads go to the DLQ; only purchases are reported.
func (a *analyzer) handle(ctx context.Context, record *kgo.Record) {
	var ev domain.LedgerEvent
	if err := json.Unmarshal(record.Value, &ev); err != nil {
		a.logger.Error("failed to parse ledger event, sending to DLQ", "error", err, "offset", record.Offset)
		a.sendToDLQ(record, "unmarshal_error", err.Error())
		return
	}
	if ev.Action != domain.ActionCreated || ev.Type != domain.TypePurchase {
		return
	}

	risk := a.engine.CheckEvent(ctx, ev)

	spent := decimal.Zero
	if ev.Spent != nil {
		spent = *ev.Spent
	}
	err := a.reports.Exec(ctx, insertReport,
		ev.EventID,
		ev.TransactionID,
		ev.AccountID,
		ev.CreatedBy,
		spent,
		ev.Amount,
		risk.Flagged,
		risk.Reason,
		a.now(),
	)
	if err != nil {
		a.logger.Error("failed to insert into ClickHouse, sending to DLQ", "error", err, "transaction_id", ev.TransactionID)
		a.sendToDLQ(record, "storage_error", err.Error())
		return
	}

	a.logger.Info("purchase analyzed",
		"transaction_id", ev.TransactionID,
		"operator_id", ev.CreatedBy,
		"flagged", risk.Flagged,
		"reason", risk.Reason,
	)
}

// sendToDLQ sends the original message to the dead-letter topic with the failure in headers.
func (a *analyzer) sendToDLQ(original *kgo.Record, errorType, errorString string) {
	dlqRecord := &kgo.Record{
		Topic: a.dlqTopic,
		Value: original.Value,
		Key:   original.Key,
		Headers: []kgo.RecordHeader{
			{Key: "error_type", Value: []byte(errorType)},
			{Key: "error_string", Value: []byte(errorString)},
			{Key: "original_topic", Value: []byte(original.Topic)},
			{Key: "original_offset", Value: []byte(fmt.Sprint(original.Offset))},
		},
	}
	a.dlq.Produce(context.Background(), dlqRecord, func(r *kgo.Record, err error) {
		if err != nil {
			a.logger.Error("FATAL: failed to deliver message to DLQ", "error", err, "key", string(r.Key))
		}
	})
}
