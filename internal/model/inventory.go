package model

import "time"

type StockStatus string

const (
	StockStatusInStock    StockStatus = "IN_STOCK"
	StockStatusLowStock   StockStatus = "LOW_STOCK"
	StockStatusOutOfStock StockStatus = "OUT_OF_STOCK"
)

// StatusFor derives the stock status from physical stock and the reorder threshold.
func StatusFor(currentStock, minStock int) StockStatus {
	switch {
	case currentStock <= 0:
		return StockStatusOutOfStock
	case currentStock <= minStock:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

type MovementType string

const (
	MovementIn  MovementType = "IN"
	MovementOut MovementType = "OUT"
)

func (t MovementType) Valid() bool {
	return t == MovementIn || t == MovementOut
}

// Inventory is the stock record of one product.
type Inventory struct {
	BaseModel
	OwnerID        string      `db:"owner_id" json:"owner_id"`
	ProductID      string      `db:"product_id" json:"product_id"`
	CurrentStock   int         `db:"current_stock" json:"current_stock"`
	MinStock       int         `db:"min_stock" json:"min_stock"`
	ReservedStock  int         `db:"reserved_stock" json:"reserved_stock"`
	AvailableStock int         `db:"available_stock" json:"available_stock"`
	StockStatus    StockStatus `db:"stock_status" json:"stock_status"`
	LastStockCheck time.Time   `db:"last_stock_check" json:"last_stock_check"`
}

// Recompute refreshes the derived fields. Reservations never exceed physical
// stock, so a record whose stock dropped below its reservations gives up the
// excess reservation.
func (i *Inventory) Recompute() {
	if i.ReservedStock > i.CurrentStock {
		i.ReservedStock = i.CurrentStock
	}
	i.AvailableStock = i.CurrentStock - i.ReservedStock
	i.StockStatus = StatusFor(i.CurrentStock, i.MinStock)
}

func (i *Inventory) HasAvailable(quantity int) bool {
	return i.AvailableStock >= quantity
}

type InventoryMovement struct {
	ID             string       `db:"id" json:"id"`
	InventoryID    string       `db:"inventory_id" json:"inventory_id"`
	OwnerID        string       `db:"owner_id" json:"owner_id"`
	ProductID      string       `db:"product_id" json:"product_id"`
	MovementType   MovementType `db:"movement_type" json:"movement_type"`
	Quantity       int          `db:"quantity" json:"quantity"`
	QuantityBefore int          `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int          `db:"quantity_after" json:"quantity_after"`
	Reason         string       `db:"reason" json:"reason"`
	Notes          *string      `db:"notes" json:"notes"`
	ReferenceType  *string      `db:"reference_type" json:"reference_type"`
	ReferenceID    *string      `db:"reference_id" json:"reference_id"`
	CreatedBy      string       `db:"created_by" json:"created_by"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

type InventorySummary struct {
	TotalProducts        int     `json:"total_products"`
	InStock              int     `json:"in_stock"`
	LowStock             int     `json:"low_stock"`
	OutOfStock           int     `json:"out_of_stock"`
	LowStockPercentage   float64 `json:"low_stock_percentage"`
	OutOfStockPercentage float64 `json:"out_of_stock_percentage"`
}
