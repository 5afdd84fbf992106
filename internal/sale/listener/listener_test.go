package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-ledger-service/internal/apperr"
	"github.com/fekuna/omnipos-ledger-service/internal/model"
	"github.com/fekuna/omnipos-ledger-service/internal/sale/dto"
	"github.com/fekuna/omnipos-ledger-service/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReader struct {
	msgs chan kafka.Message
	errs chan error

	mu        sync.Mutex
	committed []int64
}

func newScriptedReader() *scriptedReader {
	return &scriptedReader{msgs: make(chan kafka.Message, 8), errs: make(chan error, 8)}
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case err := <-r.errs:
		return kafka.Message{}, err
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

type fakeSales struct {
	mu     sync.Mutex
	inputs []*dto.RecordSaleInput
	err    error
	called chan struct{}
}

func (f *fakeSales) RecordSale(_ context.Context, in *dto.RecordSaleInput) (*model.Sale, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	err := f.err
	f.mu.Unlock()
	f.called <- struct{}{}
	if err != nil {
		return nil, err
	}
	return &model.Sale{ID: "sale-1"}, nil
}

func (f *fakeSales) GetSale(context.Context, string, string) (*model.Sale, error) { return nil, nil }

func (f *fakeSales) ListSales(context.Context, string, int, int) ([]model.Sale, int, error) {
	return nil, 0, nil
}

func startListener(t *testing.T, reader *scriptedReader, uc *fakeSales) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := NewSaleListener(reader, uc, logger.NewNop())
	l.backoff = time.Millisecond
	done := make(chan struct{})
	go func() {
		l.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func waitCalled(t *testing.T, uc *fakeSales) {
	t.Helper()
	select {
	case <-uc.called:
	case <-time.After(2 * time.Second):
		t.Fatal("RecordSale was not called")
	}
}

const saleEvent = `{
  "event_id": "evt-1",
  "event_type": "SaleRequested",
  "payload": {
    "owner_id": "owner-1",
    "customer_phone": "0812345",
    "sale_date": "2026-03-01T10:00:00Z",
    "items": [
      {"product_id": "p-1", "quantity": 2, "unit_price": "12.50"},
      {"product_id": "p-2", "quantity": 1, "unit_price": "3"}
    ]
  }
}`

func TestListenerRecordsRequestedSale(t *testing.T) {
	reader := newScriptedReader()
	uc := &fakeSales{called: make(chan struct{}, 8)}
	startListener(t, reader, uc)

	reader.msgs <- kafka.Message{Value: []byte(saleEvent)}
	waitCalled(t, uc)

	uc.mu.Lock()
	defer uc.mu.Unlock()
	require.Len(t, uc.inputs, 1)
	in := uc.inputs[0]
	assert.Equal(t, "owner-1", in.OwnerID)
	assert.Equal(t, "0812345", in.CustomerPhone)
	assert.Equal(t, "evt-1", in.RequestID)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), in.SaleDate.UTC())
	require.Len(t, in.Items, 2)
	assert.Equal(t, "p-1", in.Items[0].ProductID)
	assert.Equal(t, 2, in.Items[0].Quantity)
	assert.Equal(t, "12.5", in.Items[0].UnitPrice.String())
}

func TestListenerSkipsBadAndForeignMessages(t *testing.T) {
	reader := newScriptedReader()
	uc := &fakeSales{called: make(chan struct{}, 8)}
	startListener(t, reader, uc)

	reader.msgs <- kafka.Message{Value: []byte("not json")}
	reader.msgs <- kafka.Message{Value: []byte(`{"event_type":"OrderCreated"}`)}
	reader.errs <- errors.New("broker unavailable")
	reader.msgs <- kafka.Message{Value: []byte(saleEvent)}
	waitCalled(t, uc)

	uc.mu.Lock()
	defer uc.mu.Unlock()
	assert.Len(t, uc.inputs, 1)
}

func TestListenerKeepsGoingAfterFailedSale(t *testing.T) {
	reader := newScriptedReader()
	uc := &fakeSales{called: make(chan struct{}, 8), err: &apperr.PartialCommitError{SaleID: "s-1", Err: errors.New("commit")}}
	startListener(t, reader, uc)

	reader.msgs <- kafka.Message{Value: []byte(saleEvent)}
	waitCalled(t, uc)
	reader.msgs <- kafka.Message{Value: []byte(saleEvent)}
	waitCalled(t, uc)
}

func TestListenerCommitsEveryHandledMessage(t *testing.T) {
	reader := newScriptedReader()
	uc := &fakeSales{called: make(chan struct{}, 8), err: apperr.Invalid("bad sale")}
	startListener(t, reader, uc)

	reader.msgs <- kafka.Message{Offset: 10, Value: []byte("not json")}
	reader.msgs <- kafka.Message{Offset: 11, Value: []byte(saleEvent)}
	waitCalled(t, uc)

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{10, 11}, reader.commits())
}

func TestListenerRedeliveredEventKeepsRequestID(t *testing.T) {
	reader := newScriptedReader()
	uc := &fakeSales{called: make(chan struct{}, 8)}
	startListener(t, reader, uc)

	reader.msgs <- kafka.Message{Offset: 1, Value: []byte(saleEvent)}
	waitCalled(t, uc)
	reader.msgs <- kafka.Message{Offset: 1, Value: []byte(saleEvent)}
	waitCalled(t, uc)

	uc.mu.Lock()
	defer uc.mu.Unlock()
	require.Len(t, uc.inputs, 2)
	assert.Equal(t, uc.inputs[0].RequestID, uc.inputs[1].RequestID)
}

func TestListenerStopsOnCancel(t *testing.T) {
	reader := newScriptedReader()
	uc := &fakeSales{called: make(chan struct{}, 8)}
	ctx, cancel := context.WithCancel(context.Background())
	l := NewSaleListener(reader, uc, logger.NewNop())

	done := make(chan struct{})
	go func() {
		l.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
