package dto

import "github.com/fekuna/omnipos-ledger-service/internal/model"

type AdjustInventoryInput struct {
	OwnerID       string             `validate:"required"`
	ProductID     string             `validate:"required"`
	Type          model.MovementType `validate:"required,oneof=IN OUT"`
	Quantity      int                `validate:"gt=0"`
	Reason        string             `validate:"required,max=100"`
	Notes         *string
	ReferenceType string // 'manual', 'sale'
	ReferenceID   string
	ActorID       string `validate:"required"`
}

type ReserveStockInput struct {
	OwnerID   string `validate:"required"`
	ProductID string `validate:"required"`
	Quantity  int    `validate:"gt=0"`
	ActorID   string
}

type SetMinStockInput struct {
	OwnerID   string `validate:"required"`
	ProductID string `validate:"required"`
	MinStock  int    `validate:"gte=0"`
	ActorID   string
}
