package summary

import (
	"context"

	"github.com/fekuna/omnipos-ledger-service/internal/model"
)

// UseCase derives owner-wide stock counts. Every call reads the ledger afresh.
type UseCase interface {
	Summarize(ctx context.Context, ownerID string) (*model.InventorySummary, error)
}
