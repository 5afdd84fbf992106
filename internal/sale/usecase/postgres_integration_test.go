//go:build integration

package usecase

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-ledger-service/internal/apperr"
	catrepo "github.com/fekuna/omnipos-ledger-service/internal/catalog/repository"
	invrepo "github.com/fekuna/omnipos-ledger-service/internal/inventory/repository"
	invdto "github.com/fekuna/omnipos-ledger-service/internal/inventory/dto"
	invusecase "github.com/fekuna/omnipos-ledger-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-ledger-service/internal/model"
	"github.com/fekuna/omnipos-ledger-service/internal/sale"
	"github.com/fekuna/omnipos-ledger-service/internal/sale/dto"
	salerepo "github.com/fekuna/omnipos-ledger-service/internal/sale/repository"
	"github.com/fekuna/omnipos-ledger-service/pkg/cache"
	"github.com/fekuna/omnipos-ledger-service/pkg/logger"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: LEDGER_TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/sale/usecase/

// openLocker grants every lock at once, so only row locks serialize writers.
type openLocker struct{}

type openLock struct{}

func (openLock) Release(context.Context) error { return nil }

func (openLocker) Obtain(context.Context, string, time.Duration) (cache.Lock, error) {
	return openLock{}, nil
}

type pgFixture struct {
	db      *sqlx.DB
	ownerID string
	actorID string
	inv     interface {
		Adjust(ctx context.Context, input *invdto.AdjustInventoryInput) (*model.Inventory, error)
		GetOrCreate(ctx context.Context, ownerID, productID string) (*model.Inventory, error)
	}
	uc sale.UseCase
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	dsn := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../../migrations/0001_ledger.sql")
	require.NoError(t, err)
	var ddl strings.Builder
	for _, l := range strings.Split(string(schema), "\n") {
		if !strings.HasPrefix(strings.TrimSpace(l), "--") {
			ddl.WriteString(l + "\n")
		}
	}
	for _, stmt := range strings.Split(ddl.String(), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	f := &pgFixture{db: db, ownerID: uuid.NewString(), actorID: uuid.NewString()}
	t.Cleanup(func() {
		ctx := context.Background()
		for _, q := range []string{
			`DELETE FROM sales WHERE owner_id = $1`,
			`DELETE FROM inventory WHERE owner_id = $1`,
			`DELETE FROM customers WHERE owner_id = $1`,
			`DELETE FROM products WHERE owner_id = $1`,
		} {
			_, _ = db.ExecContext(ctx, q, f.ownerID)
		}
	})

	log := logger.NewNop()
	catalog := catrepo.NewPGRepository(db)
	rec := &countingRecorder{}
	inv := invusecase.NewInventoryUseCase(invrepo.NewPGRepository(db), catalog, openLocker{}, rec,
		invusecase.Options{DefaultMinStock: 5}, log)
	f.inv = inv
	f.uc = NewSaleUseCase(Deps{
		Repo:      salerepo.NewPGRepository(db),
		Inventory: inv,
		Products:  catalog,
		Freight:   catalog,
		Customers: catalog,
		Locker:    openLocker{},
		Audit:     rec,
	}, Options{}, log)
	return f
}

func (f *pgFixture) product(t *testing.T, stock int) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO products (id, owner_id, sku, name, default_purchase_cost) VALUES ($1, $2, $3, $4, 1)`,
		id, f.ownerID, "SKU-"+id[:8], "product "+id[:8])
	require.NoError(t, err)

	_, err = f.inv.GetOrCreate(ctx, f.ownerID, id)
	require.NoError(t, err)
	if stock > 0 {
		_, err = f.inv.Adjust(ctx, f.adjust(id, model.MovementIn, stock))
		require.NoError(t, err)
	}
	return id
}

func (f *pgFixture) adjust(productID string, typ model.MovementType, qty int) *invdto.AdjustInventoryInput {
	return &invdto.AdjustInventoryInput{
		OwnerID:   f.ownerID,
		ProductID: productID,
		Type:      typ,
		Quantity:  qty,
		Reason:    "count",
		ActorID:   f.actorID,
	}
}

func (f *pgFixture) stock(t *testing.T, productID string) (current, reserved, available int) {
	t.Helper()
	row := f.db.QueryRowx(`SELECT current_stock, reserved_stock, available_stock FROM inventory WHERE product_id = $1`, productID)
	require.NoError(t, row.Scan(&current, &reserved, &available))
	return
}

func (f *pgFixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.Get(&n, query, args...))
	return n
}

func TestPostgresConcurrentAdjustmentsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	f := newPGFixture(t)
	pid := f.product(t, 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.inv.Adjust(ctx, f.adjust(pid, model.MovementIn, 2))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.inv.Adjust(ctx, f.adjust(pid, model.MovementOut, 1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	current, reserved, available := f.stock(t, pid)
	assert.Equal(t, 120, current)
	assert.Equal(t, 0, reserved)
	assert.Equal(t, 120, available)
	assert.Equal(t, 41, f.count(t, `SELECT count(*) FROM inventory_movements WHERE product_id = $1`, pid))
}

func TestPostgresConcurrentSalesOfLastUnit(t *testing.T) {
	ctx := context.Background()
	f := newPGFixture(t)
	pid := f.product(t, 1)

	const buyers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.uc.RecordSale(ctx, &dto.RecordSaleInput{
				OwnerID:       f.ownerID,
				CustomerPhone: "0812345",
				Items:         []dto.SaleLineInput{{ProductID: pid, Quantity: 1, UnitPrice: dec("3")}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperr.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, buyers-1, rejected)
	current, _, _ := f.stock(t, pid)
	assert.Equal(t, 0, current)
	assert.Equal(t, 1, f.count(t, `SELECT count(*) FROM sales WHERE owner_id = $1`, f.ownerID))
	assert.Equal(t, 1, f.count(t, `SELECT count(*) FROM inventory_movements WHERE product_id = $1 AND movement_type = 'OUT'`, pid))
}
