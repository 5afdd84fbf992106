// Package audit delivers fire-and-forget action records to a sink without
// ever blocking or failing the operation that produced them.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/fekuna/omnipos-ledger-service/pkg/logger"
	"go.uber.org/zap"
)

const (
	ActionStockAdjusted   = "STOCK_ADJUSTED"
	ActionStockReserved   = "STOCK_RESERVED"
	ActionStockReleased   = "STOCK_RELEASED"
	ActionMinStockUpdated = "MIN_STOCK_UPDATED"
	ActionSaleRecorded    = "SALE_RECORDED"
)

type Entry struct {
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Details    string    `json:"details"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Recorder accepts audit records.
type Recorder interface {
	Record(actorID, action, entityType, entityID, details string)
}

type AsyncRecorder struct {
	sink    Sink
	logger  logger.ZapLogger
	entries chan Entry
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
}

func NewAsyncRecorder(sink Sink, bufferSize int, log logger.ZapLogger) *AsyncRecorder {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	r := &AsyncRecorder{
		sink:    sink,
		logger:  log,
		entries: make(chan Entry, bufferSize),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
	go r.run()
	return r
}

// Record enqueues the entry and returns immediately. When the buffer is full
// or the recorder is closed the entry is dropped.
func (r *AsyncRecorder) Record(actorID, action, entityType, entityID, details string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("audit recorder closed, dropping entry",
			zap.String("action", action),
			zap.String("entity_id", entityID),
		)
		return
	}

	e := Entry{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		OccurredAt: time.Now(),
	}
	select {
	case r.entries <- e:
	default:
		r.logger.Warn("audit buffer full, dropping entry",
			zap.String("action", action),
			zap.String("entity_id", entityID),
		)
	}
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for e := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.sink.Write(ctx, e); err != nil {
			r.logger.Error("failed to write audit entry",
				zap.String("action", e.Action),
				zap.String("entity_id", e.EntityID),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close stops accepting entries and waits until the queue is drained.
func (r *AsyncRecorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.entries)
	}
	r.mu.Unlock()
	<-r.done
}
