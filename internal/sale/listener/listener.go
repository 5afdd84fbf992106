package listener

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fekuna/omnipos-ledger-service/internal/apperr"
	"github.com/fekuna/omnipos-ledger-service/internal/sale"
	"github.com/fekuna/omnipos-ledger-service/internal/sale/dto"
	"github.com/fekuna/omnipos-ledger-service/pkg/broker"
	"github.com/fekuna/omnipos-ledger-service/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const EventSaleRequested = "SaleRequested"

type SaleListener struct {
	consumer broker.MessageFetcher
	uc       sale.UseCase
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewSaleListener(consumer broker.MessageFetcher, uc sale.UseCase, logger logger.ZapLogger) *SaleListener {
	return &SaleListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
		backoff:  time.Second,
	}
}

// Start consumes sale requests until ctx is cancelled. It returns once the
// message in flight, if any, has been handled and committed.
func (l *SaleListener) Start(ctx context.Context) {
	l.logger.Info("Starting Sale Kafka Listener")
	broker.Consume(ctx, l.consumer, func(ctx context.Context, msg kafka.Message) {
		l.processMessage(ctx, msg.Value)
	}, l.logger, l.backoff)
	l.logger.Info("Stopping Sale Kafka Listener")
}

type SaleRequestedEvent struct {
	EventID   string             `json:"event_id"`
	EventType string             `json:"event_type"`
	Payload   SaleRequestPayload `json:"payload"`
	Timestamp time.Time          `json:"timestamp"`
}

type SaleRequestPayload struct {
	OwnerID       string            `json:"owner_id"`
	CustomerPhone string            `json:"customer_phone"`
	SaleDate      *time.Time        `json:"sale_date"`
	Items         []SaleItemPayload `json:"items"`
}

type SaleItemPayload struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l *SaleListener) processMessage(ctx context.Context, value []byte) {
	var event SaleRequestedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	if event.EventType != EventSaleRequested {
		return
	}

	l.logger.Info("Processing SaleRequested event", zap.String("event_id", event.EventID))

	// The event id keys the sale, so a redelivered event is not recorded twice.
	input := &dto.RecordSaleInput{
		OwnerID:       event.Payload.OwnerID,
		CustomerPhone: event.Payload.CustomerPhone,
		RequestID:     event.EventID,
	}
	if event.Payload.SaleDate != nil {
		input.SaleDate = *event.Payload.SaleDate
	}
	for _, item := range event.Payload.Items {
		input.Items = append(input.Items, dto.SaleLineInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	s, err := l.uc.RecordSale(ctx, input)
	if err != nil {
		fields := []zap.Field{zap.String("event_id", event.EventID), zap.Error(err)}
		var partial *apperr.PartialCommitError
		if errors.As(err, &partial) {
			l.logger.Error("Sale needs reconciliation", append(fields, zap.String("sale_id", partial.SaleID))...)
			return
		}
		l.logger.Warn("Failed to record requested sale", fields...)
		return
	}

	l.logger.Info("Requested sale recorded", zap.String("event_id", event.EventID), zap.String("sale_id", s.ID))
}
