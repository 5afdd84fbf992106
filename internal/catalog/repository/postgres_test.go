package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) (*PGRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPGRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestFindByIDScopesByOwner(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = $1 AND owner_id = $2")).
		WithArgs("p-1", "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "owner_id", "sku", "name", "default_purchase_cost", "default_packaging_cost",
			"default_other_variable_cost", "created_at", "updated_at",
		}).AddRow("p-1", "owner-1", "SKU-1", "Mug", "10.00", "1.00", "0.50", now, now))

	p, err := repo.FindByID(context.Background(), "p-1", "owner-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "10", p.DefaultPurchaseCost.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDMissingReturnsNil(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = $1 AND owner_id = $2")).
		WithArgs("p-1", "other").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	p, err := repo.FindByID(context.Background(), "p-1", "other")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLatestFreightBatchNone(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM freight_batches WHERE product_id = $1 ORDER BY created_at DESC LIMIT 1")).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	batch, err := repo.LatestFreightBatch(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestFindOrCreateCustomer(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (owner_id, phone_number) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM customers WHERE owner_id = $1 AND phone_number = $2")).
		WithArgs("owner-1", "555-0101").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "phone_number", "name", "created_at", "updated_at"}).
			AddRow("c-1", "owner-1", "555-0101", "Customer - 555-0101", now, now))

	c, err := repo.FindOrCreate(context.Background(), "owner-1", "555-0101")
	require.NoError(t, err)
	assert.Equal(t, "c-1", c.ID)
	assert.Equal(t, "Customer - 555-0101", c.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
