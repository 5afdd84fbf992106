package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fekuna/omnipos-ledger-service/internal/inventory"
	"github.com/fekuna/omnipos-ledger-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-ledger-service/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var inventoryColumns = []string{
	"id", "owner_id", "product_id", "current_stock", "min_stock", "reserved_stock",
	"available_stock", "stock_status", "last_stock_check", "created_at", "updated_at",
}

func newRepo(t *testing.T) (*PGRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPGRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestGetByProduct(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM inventory WHERE product_id = $1")).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows(inventoryColumns).
			AddRow("inv-1", "owner-1", "p-1", 10, 5, 4, 6, "IN_STOCK", now, now, now))

	inv, err := repo.GetByProduct(context.Background(), "p-1")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, 6, inv.AvailableStock)
	assert.Equal(t, model.StockStatusInStock, inv.StockStatus)
}

func TestGetByProductMissing(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM inventory WHERE product_id = $1")).
		WithArgs("p-404").
		WillReturnRows(sqlmock.NewRows(inventoryColumns))

	inv, err := repo.GetByProduct(context.Background(), "p-404")
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestCountByStatus(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM inventory WHERE owner_id = $1 AND stock_status = $2")).
		WithArgs("owner-1", "LOW_STOCK").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountByStatus(context.Background(), "owner-1", model.StockStatusLowStock)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWithTxLocksAndUpdates(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM inventory WHERE product_id = $1 FOR UPDATE")).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows(inventoryColumns).
			AddRow("inv-1", "owner-1", "p-1", 10, 5, 0, 10, "IN_STOCK", now, now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE inventory")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inventory_movements")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithTx(context.Background(), func(tx inventory.TxRepository) error {
		inv, err := tx.LockByProduct(context.Background(), "p-1")
		if err != nil {
			return err
		}
		inv.CurrentStock -= 3
		inv.Recompute()
		if err := tx.Update(context.Background(), inv); err != nil {
			return err
		}
		return tx.LogMovement(context.Background(), &model.InventoryMovement{
			ID: "m-1", InventoryID: inv.ID, OwnerID: inv.OwnerID, ProductID: inv.ProductID,
			MovementType: model.MovementOut, Quantity: 3, QuantityBefore: 10, QuantityAfter: 7,
			Reason: "sale", CreatedBy: "owner-1", CreatedAt: now,
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithNoRowsFails(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE inventory")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx inventory.TxRepository) error {
		return tx.Update(context.Background(), &model.Inventory{BaseModel: model.BaseModel{ID: "gone"}})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rows affected")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogMovementErrorIsWrapped(t *testing.T) {
	repo, mock := newRepo(t)
	boom := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inventory_movements")).WillReturnError(boom)
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx inventory.TxRepository) error {
		return tx.LogMovement(context.Background(), &model.InventoryMovement{ID: "m-1"})
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to log movement")
}

func TestFindAllFiltersByStatus(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM inventory WHERE owner_id = $1 AND stock_status IN ($2, $3)")).
		WithArgs("owner-1", "LOW_STOCK", "OUT_OF_STOCK").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectPrepare(regexp.QuoteMeta("SELECT * FROM inventory WHERE owner_id = $1 AND stock_status IN ($2, $3) ORDER BY updated_at DESC LIMIT 10 OFFSET 0")).
		ExpectQuery().
		WithArgs("owner-1", "LOW_STOCK", "OUT_OF_STOCK").
		WillReturnRows(sqlmock.NewRows(inventoryColumns).
			AddRow("inv-1", "owner-1", "p-1", 0, 5, 0, 0, "OUT_OF_STOCK", now, now, now))

	items, count, err := repo.FindAll(context.Background(), &dto.InventoryFilters{
		OwnerID:  "owner-1",
		Statuses: []model.StockStatus{model.StockStatusLowStock, model.StockStatusOutOfStock},
		Page:     1,
		PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, items, 1)
	assert.Equal(t, model.StockStatusOutOfStock, items[0].StockStatus)
}
