package inventory

import (
	"context"

	"github.com/fekuna/omnipos-ledger-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-ledger-service/internal/model"
)

type UseCase interface {
	GetOrCreate(ctx context.Context, ownerID, productID string) (*model.Inventory, error)
	Adjust(ctx context.Context, input *dto.AdjustInventoryInput) (*model.Inventory, error)
	Reserve(ctx context.Context, input *dto.ReserveStockInput) (*model.Inventory, error)
	Release(ctx context.Context, input *dto.ReserveStockInput) (*model.Inventory, error)
	SetMinStock(ctx context.Context, input *dto.SetMinStockInput) (*model.Inventory, error)

	QueryAvailable(ctx context.Context, ownerID, productID string) (int, error)
	HasAvailable(ctx context.Context, ownerID, productID string, quantity int) (bool, error)

	ListByOwner(ctx context.Context, ownerID string, page, pageSize int) ([]model.Inventory, int, error)
	ListLowStock(ctx context.Context, ownerID string, page, pageSize int) ([]model.Inventory, int, error)
	CountByStatus(ctx context.Context, ownerID string, status model.StockStatus) (int, error)
	MovementHistory(ctx context.Context, ownerID, productID string, page, pageSize int) ([]model.InventoryMovement, int, error)

	// Tx-scoped operations run inside a caller-owned unit of work and skip
	// product locks and audit; the caller holds both.
	LockTx(ctx context.Context, tx TxRepository, productID string) (*model.Inventory, error)
	AdjustTx(ctx context.Context, tx TxRepository, input *dto.AdjustInventoryInput) (*model.Inventory, *model.InventoryMovement, error)
}

// LockKey is the distributed lock key guarding one product's stock record.
func LockKey(ownerID, productID string) string {
	return "lock:inventory:" + ownerID + ":" + productID
}
