package catalog

import (
	"context"

	"github.com/fekuna/omnipos-ledger-service/internal/model"
)

// ProductReader resolves products owned by a caller. It returns nil, nil when
// the product does not exist or belongs to another owner.
type ProductReader interface {
	FindByID(ctx context.Context, id, ownerID string) (*model.Product, error)
}

// FreightReader returns the most recent freight batch of a product, or nil.
type FreightReader interface {
	LatestFreightBatch(ctx context.Context, productID string) (*model.FreightBatch, error)
}

type CustomerRepository interface {
	// FindOrCreate is idempotent on (ownerID, phone).
	FindOrCreate(ctx context.Context, ownerID, phone string) (*model.Customer, error)
}
