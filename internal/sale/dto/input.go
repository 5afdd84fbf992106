package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleLineInput struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type RecordSaleInput struct {
	OwnerID       string          `json:"owner_id" validate:"required"`
	CustomerPhone string          `json:"customer_phone" validate:"required,max=32"`
	Items         []SaleLineInput `json:"items" validate:"required,min=1,dive"`
	SaleDate      time.Time       `json:"sale_date"` // zero means now
	// RequestID makes the sale idempotent: a repeated request for the same
	// owner returns the sale already recorded for it.
	RequestID string `json:"request_id" validate:"max=128"`
}
