package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/twmb/franz-go/pkg/kgo"

	"loyalty-points-system/internal/adapters/storage/redis"
	"loyalty-points-system/internal/antifraud"
	"loyalty-points-system/internal/config"
	"loyalty-points-system/internal/observability"
)

func main() {
	// --- Configuration Setup ---
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		observability.SetupLogger("development").Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg.App.Env)
	logger.Info("anti-fraud analyzer starting", "env", cfg.App.Env, "topic", cfg.Kafka.Topic)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Component Initialization ---
	kafkaBrokers := strings.Split(cfg.Kafka.BootstrapServers, ",")

	// Kafka Producer (for sending to DLQ)
	dlqProducer, err := kgo.NewClient(
		kgo.SeedBrokers(kafkaBrokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		logger.Error("failed to create Kafka producer for DLQ", "error", err)
		os.Exit(1)
	}
	defer dlqProducer.Close()

	// ClickHouse Client: for writing operator risk reports.
	chConn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.ClickHouse.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		logger.Error("failed to connect to ClickHouse", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := chConn.Close(); err != nil {
			logger.Error("Failed to close ClickHouse connection", "error", err)
		}
	}()
	if err := chConn.Exec(ctx, createReportsTable); err != nil {
		logger.Error("failed to create operator_risk_reports table", "error", err)
		os.Exit(1)
	}

	// Rule engine: an external scorer when configured, otherwise the Redis counters.
	var engine antifraud.RuleEngine
	if cfg.AntiFraud.ScorerURL != "" {
		engine = antifraud.NewExternalServiceRuleEngine(cfg.AntiFraud.ScorerURL, logger)
		logger.Info("using external risk scorer", "url", cfg.AntiFraud.ScorerURL)
	} else {
		rdb, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("Failed to close redis connection", "error", err)
			}
		}()
		engine = antifraud.NewCachingRuleEngine(rdb, cfg.AntiFraud, logger)
	}

	a := &analyzer{
		engine:   engine,
		reports:  chConn,
		dlq:      dlqProducer,
		dlqTopic: cfg.Kafka.DLQTopic,
		logger:   logger,
		now:      time.Now,
	}

	// --- Application Start ---
	consumerClient, err := kgo.NewClient(
		kgo.SeedBrokers(kafkaBrokers...),
		kgo.ConsumerGroup("ledger-anti-fraud"),
		kgo.ConsumeTopics(cfg.Kafka.Topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		logger.Error("failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumerClient.Close()

	logger.Info("anti-fraud analyzer is running")

	for {
		fetches := consumerClient.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			break
		}

		fetches.EachError(func(t string, p int32, err error) {
			logger.Error("error reading from kafka", "topic", t, "partition", p, "error", err)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			a.handle(ctx, record)
		})

		// Offsets are committed after the whole batch was handled or parked in the DLQ.
		if err := consumerClient.CommitUncommittedOffsets(ctx); err != nil {
			logger.Error("error committing offsets", "error", err)
		}
	}

	logger.Info("anti-fraud analyzer stopping")
}
