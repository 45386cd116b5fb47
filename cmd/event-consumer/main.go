// Command event-consumer reads published marketplace events off Kafka and
// logs them. It exists as the reference consumer for downstream systems.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("event consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaEventTopic, "squadmarket-event-consumer", cfg.KafkaEnabled, logger)
	if !consumer.Enabled() {
		return fmt.Errorf("kafka is disabled; set KAFKA_ENABLED=true")
	}
	defer consumer.Close()

	logger.Info("event-consumer starting", "topic", cfg.KafkaEventTopic)

	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("event-consumer shutting down")
				return nil
			}
			logger.Error("read message", "error", err)
			continue
		}

		var ev domain.Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logger.Error("decode event", "error", err, "offset", msg.Offset)
			continue
		}

		logger.Info("marketplace event",
			"event_id", ev.ID,
			"type", ev.Type,
			"aggregate_type", ev.AggregateType,
			"aggregate_id", ev.AggregateID,
			"occurred_at", ev.OccurredAt,
		)
	}
}
