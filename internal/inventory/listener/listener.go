package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-ledger-service/internal/apperr"
	"github.com/fekuna/omnipos-ledger-service/internal/inventory"
	"github.com/fekuna/omnipos-ledger-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-ledger-service/internal/model"
	"github.com/fekuna/omnipos-ledger-service/pkg/broker"
	"github.com/fekuna/omnipos-ledger-service/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventStockAdjustRequested    = "StockAdjustRequested"
	EventStockReserveRequested   = "StockReserveRequested"
	EventStockReleaseRequested   = "StockReleaseRequested"
	EventMinStockUpdateRequested = "MinStockUpdateRequested"
)

// EventLog remembers handled event ids. *cache.RedisEventLog satisfies it.
type EventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type InventoryListener struct {
	consumer broker.MessageFetcher
	uc       inventory.UseCase
	events   EventLog
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewInventoryListener(consumer broker.MessageFetcher, uc inventory.UseCase, events EventLog, logger logger.ZapLogger) *InventoryListener {
	return &InventoryListener{
		consumer: consumer,
		uc:       uc,
		events:   events,
		logger:   logger,
		backoff:  time.Second,
	}
}

func (l *InventoryListener) Start(ctx context.Context) {
	l.logger.Info("Starting Inventory Kafka Listener")
	broker.Consume(ctx, l.consumer, func(ctx context.Context, msg kafka.Message) {
		l.processMessage(ctx, msg.Value)
	}, l.logger, l.backoff)
	l.logger.Info("Stopping Inventory Kafka Listener")
}

type InventoryEvent struct {
	EventID   string              `json:"event_id"`
	EventType string              `json:"event_type"`
	Payload   StockCommandPayload `json:"payload"`
	Timestamp time.Time           `json:"timestamp"`
}

// StockCommandPayload carries the fields of every inventory command. Each
// event type reads the subset it needs.
type StockCommandPayload struct {
	OwnerID       string  `json:"owner_id"`
	ProductID     string  `json:"product_id"`
	Type          string  `json:"type"`
	Quantity      int     `json:"quantity"`
	MinStock      int     `json:"min_stock"`
	Reason        string  `json:"reason"`
	Notes         *string `json:"notes"`
	ReferenceType string  `json:"reference_type"`
	ReferenceID   string  `json:"reference_id"`
	ActorID       string  `json:"actor_id"`
}

func (l *InventoryListener) processMessage(ctx context.Context, value []byte) {
	var event InventoryEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	switch event.EventType {
	case EventStockAdjustRequested, EventStockReserveRequested, EventStockReleaseRequested, EventMinStockUpdateRequested:
	default:
		return
	}

	fields := []zap.Field{
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("product_id", event.Payload.ProductID),
	}

	if event.EventID != "" && l.events != nil {
		seen, err := l.events.Seen(ctx, event.EventID)
		if err != nil {
			l.logger.Warn("Failed to check event log, handling event anyway", append(fields, zap.Error(err))...)
		}
		if seen {
			l.logger.Info("Skipping already handled event", fields...)
			return
		}
	}

	l.logger.Info("Processing inventory event", fields...)

	inv, err := l.dispatch(ctx, &event)
	if err != nil {
		fields = append(fields, zap.Error(err))
		if errors.Is(err, apperr.ErrBusy) {
			l.logger.Error("Inventory event dropped, product busy", fields...)
			return
		}
		l.logger.Warn("Failed to apply inventory event", fields...)
		return
	}

	if event.EventID != "" && l.events != nil {
		if err := l.events.Mark(ctx, event.EventID); err != nil {
			l.logger.Warn("Failed to mark event handled", append(fields, zap.Error(err))...)
		}
	}

	l.logger.Info("Inventory event applied", append(fields,
		zap.Int("current_stock", inv.CurrentStock),
		zap.Int("reserved_stock", inv.ReservedStock),
	)...)
}

func (l *InventoryListener) dispatch(ctx context.Context, event *InventoryEvent) (*model.Inventory, error) {
	p := event.Payload
	switch event.EventType {
	case EventStockAdjustRequested:
		return l.uc.Adjust(ctx, &dto.AdjustInventoryInput{
			OwnerID:       p.OwnerID,
			ProductID:     p.ProductID,
			Type:          model.MovementType(p.Type),
			Quantity:      p.Quantity,
			Reason:        p.Reason,
			Notes:         p.Notes,
			ReferenceType: p.ReferenceType,
			ReferenceID:   p.ReferenceID,
			ActorID:       p.ActorID,
		})
	case EventStockReserveRequested:
		return l.uc.Reserve(ctx, &dto.ReserveStockInput{
			OwnerID:   p.OwnerID,
			ProductID: p.ProductID,
			Quantity:  p.Quantity,
			ActorID:   p.ActorID,
		})
	case EventStockReleaseRequested:
		return l.uc.Release(ctx, &dto.ReserveStockInput{
			OwnerID:   p.OwnerID,
			ProductID: p.ProductID,
			Quantity:  p.Quantity,
			ActorID:   p.ActorID,
		})
	case EventMinStockUpdateRequested:
		return l.uc.SetMinStock(ctx, &dto.SetMinStockInput{
			OwnerID:   p.OwnerID,
			ProductID: p.ProductID,
			MinStock:  p.MinStock,
			ActorID:   p.ActorID,
		})
	}
	return nil, fmt.Errorf("unhandled event type %q", event.EventType)
}
