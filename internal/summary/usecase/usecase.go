package usecase

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-ledger-service/internal/apperr"
	"github.com/fekuna/omnipos-ledger-service/internal/inventory"
	"github.com/fekuna/omnipos-ledger-service/internal/model"
	"github.com/fekuna/omnipos-ledger-service/internal/summary"
	"github.com/fekuna/omnipos-ledger-service/pkg/logger"
	"go.uber.org/zap"
)

type summaryUseCase struct {
	repo   inventory.Repository
	logger logger.ZapLogger
}

func NewSummaryUseCase(repo inventory.Repository, log logger.ZapLogger) summary.UseCase {
	return &summaryUseCase{repo: repo, logger: log}
}

func (uc *summaryUseCase) Summarize(ctx context.Context, ownerID string) (*model.InventorySummary, error) {
	if ownerID == "" {
		return nil, apperr.Invalid("owner id is required")
	}

	total, err := uc.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count inventory: %w", err)
	}

	counts := make(map[model.StockStatus]int, 3)
	for _, status := range []model.StockStatus{model.StockStatusInStock, model.StockStatusLowStock, model.StockStatusOutOfStock} {
		n, err := uc.repo.CountByStatus(ctx, ownerID, status)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s inventory: %w", status, err)
		}
		counts[status] = n
	}

	s := &model.InventorySummary{
		TotalProducts:        total,
		InStock:              counts[model.StockStatusInStock],
		LowStock:             counts[model.StockStatusLowStock],
		OutOfStock:           counts[model.StockStatusOutOfStock],
		LowStockPercentage:   percentage(counts[model.StockStatusLowStock], total),
		OutOfStockPercentage: percentage(counts[model.StockStatusOutOfStock], total),
	}
	uc.logger.Debug("inventory summary computed",
		zap.String("owner_id", ownerID),
		zap.Int("total", total),
		zap.Int("low_stock", s.LowStock),
		zap.Int("out_of_stock", s.OutOfStock),
	)
	return s, nil
}

func percentage(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}
