package audit

import (
	"context"
	"encoding/json"

	"github.com/fekuna/omnipos-ledger-service/pkg/logger"
	"go.uber.org/zap"
)

type LogSink struct {
	logger logger.ZapLogger
}

func NewLogSink(log logger.ZapLogger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Write(ctx context.Context, e Entry) error {
	s.logger.Info("audit",
		zap.String("actor_id", e.ActorID),
		zap.String("action", e.Action),
		zap.String("entity_type", e.EntityType),
		zap.String("entity_id", e.EntityID),
		zap.String("details", e.Details),
		zap.Time("occurred_at", e.OccurredAt),
	)
	return nil
}

// Publisher is satisfied by broker.KafkaProducer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

type KafkaSink struct {
	publisher Publisher
}

func NewKafkaSink(p Publisher) *KafkaSink {
	return &KafkaSink{publisher: p}
}

// Write publishes the entry as JSON keyed by entity id so that records for
// the same entity stay ordered within a partition.
func (s *KafkaSink) Write(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, []byte(e.EntityID), payload)
}
