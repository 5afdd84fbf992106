package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fekuna/omnipos-ledger-service/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) FindByID(ctx context.Context, id, ownerID string) (*model.Product, error) {
	var product model.Product
	query := `SELECT id, owner_id, sku, name, default_purchase_cost, default_packaging_cost, default_other_variable_cost, created_at, updated_at FROM products WHERE id = $1 AND owner_id = $2 LIMIT 1`
	err := r.DB.GetContext(ctx, &product, query, id, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func (r *PGRepository) LatestFreightBatch(ctx context.Context, productID string) (*model.FreightBatch, error) {
	var batch model.FreightBatch
	query := `SELECT * FROM freight_batches WHERE product_id = $1 ORDER BY created_at DESC LIMIT 1`
	err := r.DB.GetContext(ctx, &batch, query, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

func (r *PGRepository) FindOrCreate(ctx context.Context, ownerID, phone string) (*model.Customer, error) {
	now := time.Now()
	c := &model.Customer{
		BaseModel:   model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		OwnerID:     ownerID,
		PhoneNumber: phone,
		Name:        "Customer - " + phone,
	}

	insert := `
        INSERT INTO customers (id, owner_id, phone_number, name, created_at, updated_at)
        VALUES (:id, :owner_id, :phone_number, :name, :created_at, :updated_at)
        ON CONFLICT (owner_id, phone_number) DO NOTHING
    `
	if _, err := r.DB.NamedExecContext(ctx, insert, c); err != nil {
		return nil, err
	}

	var customer model.Customer
	query := `SELECT * FROM customers WHERE owner_id = $1 AND phone_number = $2 LIMIT 1`
	if err := r.DB.GetContext(ctx, &customer, query, ownerID, phone); err != nil {
		return nil, err
	}
	return &customer, nil
}
