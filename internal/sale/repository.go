package sale

import (
	"context"

	"github.com/fekuna/omnipos-ledger-service/internal/inventory"
	"github.com/fekuna/omnipos-ledger-service/internal/model"
	"github.com/fekuna/omnipos-ledger-service/internal/sale/dto"
)

type Repository interface {
	// WithTx runs fn in one unit of work spanning the sale tables and the
	// stock ledger.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// FindByID returns the sale with its items, or nil, nil.
	FindByID(ctx context.Context, ownerID, id string) (*model.Sale, error)
	// FindAll returns sale headers newest first; Items is left empty.
	FindAll(ctx context.Context, filters *dto.SaleFilters) ([]model.Sale, int, error)
}

type Tx interface {
	Inventory() inventory.TxRepository
	// CreateSale inserts the sale header and all of its items.
	CreateSale(ctx context.Context, sale *model.Sale) error
}
