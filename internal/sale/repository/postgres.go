package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-ledger-service/internal/inventory"
	invrepo "github.com/fekuna/omnipos-ledger-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-ledger-service/internal/model"
	"github.com/fekuna/omnipos-ledger-service/internal/sale"
	"github.com/fekuna/omnipos-ledger-service/internal/sale/dto"
	"github.com/fekuna/omnipos-ledger-service/pkg/database/postgres"
	"github.com/jmoiron/sqlx"
)

var _ sale.Repository = (*PGRepository)(nil)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) WithTx(ctx context.Context, fn func(tx sale.Tx) error) error {
	return postgres.WithTx(ctx, r.DB, nil, func(tx *sqlx.Tx) error {
		return fn(&txRepository{tx: tx, inventory: invrepo.NewTxRepository(tx)})
	})
}

func (r *PGRepository) FindByID(ctx context.Context, ownerID, id string) (*model.Sale, error) {
	var s model.Sale
	query := `SELECT id, owner_id, customer_id, total_amount, total_net_profit, sale_date, created_at FROM sales WHERE id = $1 AND owner_id = $2`
	if err := r.DB.GetContext(ctx, &s, query, id, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	itemsQuery := `SELECT id, sale_id, product_id, quantity, unit_price, unit_cost_at_sale, net_profit FROM sale_items WHERE sale_id = $1 ORDER BY line_no`
	if err := r.DB.SelectContext(ctx, &s.Items, itemsQuery, s.ID); err != nil {
		return nil, fmt.Errorf("failed to load sale items: %w", err)
	}
	return &s, nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.SaleFilters) ([]model.Sale, int, error) {
	var sales []model.Sale
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.OwnerID != "" {
		conditions = append(conditions, "owner_id = :owner_id")
		args["owner_id"] = f.OwnerID
	}
	if f.CustomerID != "" {
		conditions = append(conditions, "customer_id = :customer_id")
		args["customer_id"] = f.CustomerID
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM sales" + whereClause
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

	query := "SELECT id, owner_id, customer_id, total_amount, total_net_profit, sale_date, created_at FROM sales" +
		whereClause + " ORDER BY sale_date DESC, created_at DESC"
	if f.PageSize > 0 {
		offset := (max(f.Page, 1) - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &sales, args)
	return sales, count, err
}

type txRepository struct {
	tx        *sqlx.Tx
	inventory *invrepo.TxRepository
}

func (r *txRepository) Inventory() inventory.TxRepository {
	return r.inventory
}

type saleItemRow struct {
	model.SaleItem
	LineNo int `db:"line_no"`
}

func (r *txRepository) CreateSale(ctx context.Context, s *model.Sale) error {
	query := `
        INSERT INTO sales (id, owner_id, customer_id, total_amount, total_net_profit, sale_date, created_at)
        VALUES (:id, :owner_id, :customer_id, :total_amount, :total_net_profit, :sale_date, :created_at)
    `
	if _, err := r.tx.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}

	itemQuery := `
        INSERT INTO sale_items (id, sale_id, line_no, product_id, quantity, unit_price, unit_cost_at_sale, net_profit)
        VALUES (:id, :sale_id, :line_no, :product_id, :quantity, :unit_price, :unit_cost_at_sale, :net_profit)
    `
	for i, item := range s.Items {
		row := saleItemRow{SaleItem: item, LineNo: i + 1}
		if _, err := r.tx.NamedExecContext(ctx, itemQuery, row); err != nil {
			return fmt.Errorf("failed to create sale item %d: %w", row.LineNo, err)
		}
	}
	return nil
}
