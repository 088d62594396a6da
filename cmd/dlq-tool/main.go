package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"

	"loyalty-points-system/internal/config"
	"loyalty-points-system/internal/core/domain"
	"loyalty-points-system/internal/observability"
)

func main() {
	logger := observability.SetupLogger("development")

	// Flag defaults come from the service config when it is present.
	brokersDefault, dlqDefault, targetDefault := "localhost:9092", "ledger.transactions.dlq", "ledger.transactions"
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	if cfg, err := config.Load(configPath); err == nil {
		logger = observability.SetupLogger(cfg.App.Env)
		if cfg.Kafka.BootstrapServers != "" {
			brokersDefault = cfg.Kafka.BootstrapServers
		}
		dlqDefault, targetDefault = cfg.Kafka.DLQTopic, cfg.Kafka.Topic
	}

	var kafkaBrokers string
	var dlqTopic string

	rootCmd := &cobra.Command{Use: "dlq-tool", SilenceUsage: true}
	rootCmd.PersistentFlags().StringVar(&kafkaBrokers, "brokers", brokersDefault, "Kafka broker addresses")
	rootCmd.PersistentFlags().StringVar(&dlqTopic, "dlq-topic", dlqDefault, "DLQ topic name")

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Show messages parked in the DLQ",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			logger.Info("viewing latest messages", "topic", dlqTopic, "limit", limit)

			client, err := kgo.NewClient(
				kgo.SeedBrokers(strings.Split(kafkaBrokers, ",")...),
				kgo.ConsumeTopics(dlqTopic),
				kgo.FetchMaxWait(5*time.Second),
				kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
			)
			if err != nil {
				return fmt.Errorf("create consumer: %w", err)
			}
			defer client.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PARTITION:OFFSET\tTRANSACTION\tACTION\tERROR_TYPE\tERROR_STRING")

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			count := 0
			for count < limit {
				fetches := client.PollFetches(ctx)
				if fetches.IsClientClosed() || ctx.Err() != nil || len(fetches.Records()) == 0 {
					break
				}
				fetches.EachRecord(func(record *kgo.Record) {
					if count >= limit {
						return
					}
					errorType, errorString := getErrorHeaders(record.Headers)
					fmt.Fprintf(w, "%d:%d\t%s\t%s\t%s\t%s\n",
						record.Partition, record.Offset, describe(record.Value), headerValue(record.Headers, "action"), errorType, errorString)
					count++
				})
			}
			if count == 0 {
				logger.Info("no messages in topic")
			}
			return w.Flush()
		},
	}
	viewCmd.Flags().Int("limit", 10, "Number of messages to show")

	retryCmd := &cobra.Command{
		Use:   "retry [partition:offset]",
		Short: "Re-publish one DLQ message, addressed by partition and offset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetTopic, _ := cmd.Flags().GetString("target-topic")
			partition, offset, err := parsePartitionOffset(args[0])
			if err != nil {
				return err
			}
			logger.Info("re-publishing message", "from_topic", dlqTopic, "partition", partition, "offset", offset, "to_topic", targetTopic)

			brokers := strings.Split(kafkaBrokers, ",")
			producer, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
			if err != nil {
				return fmt.Errorf("create producer: %w", err)
			}
			defer producer.Close()

			consumer, err := kgo.NewClient(
				kgo.SeedBrokers(brokers...),
				kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
					dlqTopic: {partition: kgo.NewOffset().At(offset)},
				}),
			)
			if err != nil {
				return fmt.Errorf("create consumer: %w", err)
			}
			defer consumer.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			fetches := consumer.PollFetches(ctx)
			if err := fetches.Err(); err != nil {
				return fmt.Errorf("read message: %w", err)
			}
			records := fetches.Records()
			if len(records) == 0 || records[0].Offset != offset {
				return fmt.Errorf("no message at %d:%d", partition, offset)
			}
			record := records[0]

			retryRecord := &kgo.Record{
				Topic:   targetTopic,
				Value:   record.Value,
				Key:     record.Key,
				Headers: withoutErrorHeaders(record.Headers),
			}
			if err := producer.ProduceSync(cmd.Context(), retryRecord).FirstErr(); err != nil {
				return fmt.Errorf("re-publish message: %w", err)
			}

			logger.Info("message re-published", "transaction", describe(record.Value))
			return nil
		},
	}
	retryCmd.Flags().String("target-topic", targetDefault, "Topic to re-publish the message to")

	rootCmd.AddCommand(viewCmd, retryCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// getErrorHeaders extracts error_type and error_string from Kafka headers
func getErrorHeaders(headers []kgo.RecordHeader) (string, string) {
	errorType, errorString := headerValue(headers, "error_type"), headerValue(headers, "error_string")
	if errorType == "" {
		errorType = "N/A"
	}
	if errorString == "" {
		errorString = "N/A"
	}
	return errorType, errorString
}

func headerValue(headers []kgo.RecordHeader, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func withoutErrorHeaders(headers []kgo.RecordHeader) []kgo.RecordHeader {
	var out []kgo.RecordHeader
	for _, h := range headers {
		switch h.Key {
		case "error_type", "error_string", "original_topic", "original_offset":
			continue
		}
		out = append(out, h)
	}
	return out
}

// describe renders the ledger transaction carried by a payload, or "unparseable".
func describe(payload []byte) string {
	var ev domain.LedgerEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.TransactionID == 0 {
		return "unparseable"
	}
	return fmt.Sprintf("#%d %s %+d", ev.TransactionID, ev.Type, ev.Amount)
}

// parsePartitionOffset parses "partition:offset".
func parsePartitionOffset(arg string) (int32, int64, error) {
	partStr, offStr, ok := strings.Cut(arg, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid format %q, expected partition:offset such as 0:123", arg)
	}
	var partition int32
	if _, err := fmt.Sscan(partStr, &partition); err != nil || partition < 0 {
		return 0, 0, fmt.Errorf("invalid partition %q", partStr)
	}
	var offset int64
	if _, err := fmt.Sscan(offStr, &offset); err != nil || offset < 0 {
		return 0, 0, fmt.Errorf("invalid offset %q", offStr)
	}
	return partition, offset, nil
}
