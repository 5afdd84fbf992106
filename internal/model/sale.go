package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Sale struct {
	ID             string          `db:"id" json:"id"`
	OwnerID        string          `db:"owner_id" json:"owner_id"`
	CustomerID     string          `db:"customer_id" json:"customer_id"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	TotalNetProfit decimal.Decimal `db:"total_net_profit" json:"total_net_profit"`
	SaleDate       time.Time       `db:"sale_date" json:"sale_date"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	Items          []SaleItem      `db:"-" json:"items"`
}

type SaleItem struct {
	ID             string          `db:"id" json:"id"`
	SaleID         string          `db:"sale_id" json:"sale_id"`
	ProductID      string          `db:"product_id" json:"product_id"`
	Quantity       int             `db:"quantity" json:"quantity"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	UnitCostAtSale decimal.Decimal `db:"unit_cost_at_sale" json:"unit_cost_at_sale"`
	NetProfit      decimal.Decimal `db:"net_profit" json:"net_profit"`
}

// UnitCost is the direct unit cost of a product right now: default purchase,
// packaging and other variable costs plus amortized freight.
func UnitCost(p *Product, latest *FreightBatch) decimal.Decimal {
	return p.DefaultPurchaseCost.
		Add(p.DefaultPackagingCost).
		Add(p.DefaultOtherVariableCost).
		Add(latest.FreightPerUnit())
}

// NewSaleItem snapshots the unit cost and derives the line profit.
func NewSaleItem(id, saleID, productID string, quantity int, unitPrice, unitCost decimal.Decimal) SaleItem {
	qty := decimal.NewFromInt(int64(quantity))
	return SaleItem{
		ID:             id,
		SaleID:         saleID,
		ProductID:      productID,
		Quantity:       quantity,
		UnitPrice:      unitPrice,
		UnitCostAtSale: unitCost,
		NetProfit:      unitPrice.Sub(unitCost).Mul(qty),
	}
}

// LineTotal is unit price times quantity.
func (i SaleItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
