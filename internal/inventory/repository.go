package inventory

import (
	"context"

	"github.com/fekuna/omnipos-ledger-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-ledger-service/internal/model"
)

type Repository interface {
	// WithTx runs fn in one unit of work: committed when fn returns nil,
	// rolled back otherwise.
	WithTx(ctx context.Context, fn func(tx TxRepository) error) error

	GetByProduct(ctx context.Context, productID string) (*model.Inventory, error)
	FindAll(ctx context.Context, filters *dto.InventoryFilters) ([]model.Inventory, int, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	CountByStatus(ctx context.Context, ownerID string, status model.StockStatus) (int, error)

	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.InventoryMovement, int, error)
}

// TxRepository is the transaction-scoped view of the ledger tables.
type TxRepository interface {
	// LockByProduct reads the stock record and holds a row lock on it until
	// the transaction ends. Returns nil, nil when the record does not exist.
	LockByProduct(ctx context.Context, productID string) (*model.Inventory, error)
	// Create inserts the record unless one already exists for the product.
	Create(ctx context.Context, inv *model.Inventory) error
	Update(ctx context.Context, inv *model.Inventory) error
	LogMovement(ctx context.Context, movement *model.InventoryMovement) error
}
