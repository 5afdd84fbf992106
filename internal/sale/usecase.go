package sale

import (
	"context"

	"github.com/fekuna/omnipos-ledger-service/internal/model"
	"github.com/fekuna/omnipos-ledger-service/internal/sale/dto"
)

type UseCase interface {
	RecordSale(ctx context.Context, input *dto.RecordSaleInput) (*model.Sale, error)
	GetSale(ctx context.Context, ownerID, saleID string) (*model.Sale, error)
	ListSales(ctx context.Context, ownerID string, page, pageSize int) ([]model.Sale, int, error)
}
