package broker

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-ledger-service/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageFetcher is satisfied by *KafkaConsumer.
type MessageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Handler processes one message. It is called with a context that is not
// cancelled on shutdown so that a message in flight is finished.
type Handler func(ctx context.Context, msg kafka.Message)

// Consume fetches messages until ctx is cancelled and commits each offset
// only after handle has returned. A crash between the two redelivers the
// message, so handlers must tolerate duplicates.
func Consume(ctx context.Context, r MessageFetcher, handle Handler, log logger.ZapLogger, backoff time.Duration) {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Failed to fetch kafka message", zap.Error(err))
			if !sleep(ctx, backoff) {
				return
			}
			continue
		}

		handle(context.WithoutCancel(ctx), msg)

		if err := r.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
			log.Error("Failed to commit kafka message",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
