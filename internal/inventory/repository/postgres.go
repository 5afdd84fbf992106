package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-ledger-service/internal/inventory"
	"github.com/fekuna/omnipos-ledger-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-ledger-service/internal/model"
	"github.com/fekuna/omnipos-ledger-service/pkg/database/postgres"
	"github.com/jmoiron/sqlx"
)

var _ inventory.Repository = (*PGRepository)(nil)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) WithTx(ctx context.Context, fn func(tx inventory.TxRepository) error) error {
	return postgres.WithTx(ctx, r.DB, nil, func(tx *sqlx.Tx) error {
		return fn(NewTxRepository(tx))
	})
}

func (r *PGRepository) GetByProduct(ctx context.Context, productID string) (*model.Inventory, error) {
	var inv model.Inventory
	err := r.DB.GetContext(ctx, &inv, `SELECT * FROM inventory WHERE product_id = $1`, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // caller decides whether a missing record is an error
		}
		return nil, err
	}
	return &inv, nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.InventoryFilters) ([]model.Inventory, int, error) {
	var items []model.Inventory
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.OwnerID != "" {
		conditions = append(conditions, "owner_id = :owner_id")
		args["owner_id"] = f.OwnerID
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			key := fmt.Sprintf("status_%d", i)
			placeholders[i] = ":" + key
			args[key] = string(s)
		}
		conditions = append(conditions, "stock_status IN ("+strings.Join(placeholders, ", ")+")")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM inventory" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return nil, 0, err
		}
	}

	query := "SELECT * FROM inventory" + whereClause + " ORDER BY updated_at DESC"
	if f.PageSize > 0 {
		offset := (max(f.Page, 1) - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}

func (r *PGRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.DB.GetContext(ctx, &count, `SELECT count(*) FROM inventory WHERE owner_id = $1`, ownerID)
	return count, err
}

func (r *PGRepository) CountByStatus(ctx context.Context, ownerID string, status model.StockStatus) (int, error) {
	var count int
	err := r.DB.GetContext(ctx, &count, `SELECT count(*) FROM inventory WHERE owner_id = $1 AND stock_status = $2`, ownerID, string(status))
	return count, err
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.InventoryMovement, int, error) {
	var items []model.InventoryMovement
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.OwnerID != "" {
		conditions = append(conditions, "owner_id = :owner_id")
		args["owner_id"] = f.OwnerID
	}
	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.MovementType != "" {
		conditions = append(conditions, "movement_type = :movement_type")
		args["movement_type"] = string(f.MovementType)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM inventory_movements" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return nil, 0, err
		}
	}

	query := "SELECT * FROM inventory_movements" + whereClause + " ORDER BY created_at DESC, id DESC"
	if f.PageSize > 0 {
		offset := (max(f.Page, 1) - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}

type TxRepository struct {
	tx *sqlx.Tx
}

func NewTxRepository(tx *sqlx.Tx) *TxRepository {
	return &TxRepository{tx: tx}
}

func (r *TxRepository) LockByProduct(ctx context.Context, productID string) (*model.Inventory, error) {
	var inv model.Inventory
	err := r.tx.GetContext(ctx, &inv, `SELECT * FROM inventory WHERE product_id = $1 FOR UPDATE`, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

func (r *TxRepository) Create(ctx context.Context, inv *model.Inventory) error {
	query := `
        INSERT INTO inventory (
            id, owner_id, product_id, current_stock, min_stock, reserved_stock,
            available_stock, stock_status, last_stock_check, created_at, updated_at
        )
        VALUES (
            :id, :owner_id, :product_id, :current_stock, :min_stock, :reserved_stock,
            :available_stock, :stock_status, :last_stock_check, :created_at, :updated_at
        )
        ON CONFLICT (product_id) DO NOTHING
    `
	_, err := r.tx.NamedExecContext(ctx, query, inv)
	return err
}

func (r *TxRepository) Update(ctx context.Context, inv *model.Inventory) error {
	query := `
        UPDATE inventory
        SET current_stock = :current_stock,
            min_stock = :min_stock,
            reserved_stock = :reserved_stock,
            available_stock = :available_stock,
            stock_status = :stock_status,
            last_stock_check = :last_stock_check,
            updated_at = :updated_at
        WHERE id = :id
    `
	res, err := r.tx.NamedExecContext(ctx, query, inv)
	if err != nil {
		return fmt.Errorf("failed to update inventory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("failed to update inventory %s: no rows affected", inv.ID)
	}
	return nil
}

func (r *TxRepository) LogMovement(ctx context.Context, m *model.InventoryMovement) error {
	query := `
        INSERT INTO inventory_movements (
            id, inventory_id, owner_id, product_id, movement_type, quantity,
            quantity_before, quantity_after, reason, notes,
            reference_type, reference_id, created_by, created_at
        )
        VALUES (
            :id, :inventory_id, :owner_id, :product_id, :movement_type, :quantity,
            :quantity_before, :quantity_after, :reason, :notes,
            :reference_type, :reference_id, :created_by, :created_at
        )
    `
	if _, err := r.tx.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("failed to log movement: %w", err)
	}
	return nil
}
