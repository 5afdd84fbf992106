package dto

import "github.com/fekuna/omnipos-ledger-service/internal/model"

type InventoryFilters struct {
	OwnerID  string
	Statuses []model.StockStatus // empty means any status
	Page     int
	PageSize int
}

type MovementFilters struct {
	OwnerID      string
	ProductID    string
	MovementType model.MovementType
	Page         int
	PageSize     int
}
