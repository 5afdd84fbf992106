package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog view the ledger needs: identity, ownership and default direct costs.
type Product struct {
	BaseModel
	OwnerID                  string          `db:"owner_id" json:"owner_id"`
	SKU                      string          `db:"sku" json:"sku"`
	Name                     string          `db:"name" json:"name"`
	DefaultPurchaseCost      decimal.Decimal `db:"default_purchase_cost" json:"default_purchase_cost"`
	DefaultPackagingCost     decimal.Decimal `db:"default_packaging_cost" json:"default_packaging_cost"`
	DefaultOtherVariableCost decimal.Decimal `db:"default_other_variable_cost" json:"default_other_variable_cost"`
}

type FreightBatch struct {
	ID           string          `db:"id" json:"id"`
	ProductID    string          `db:"product_id" json:"product_id"`
	FreightTotal decimal.Decimal `db:"freight_total" json:"freight_total"`
	BatchSize    int             `db:"batch_size" json:"batch_size"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// freightPrecision is the number of significant digits kept per unit.
const freightPrecision = 10

// FreightPerUnit amortizes the batch freight over its units, rounded half up
// to freightPrecision significant digits.
func (f *FreightBatch) FreightPerUnit() decimal.Decimal {
	if f == nil || f.BatchSize <= 0 {
		return decimal.Zero
	}
	q := f.FreightTotal.DivRound(decimal.NewFromInt(int64(f.BatchSize)), 32)
	return roundSignificant(q, freightPrecision)
}

func roundSignificant(d decimal.Decimal, digits int32) decimal.Decimal {
	if d.IsZero() {
		return d
	}
	// Position of the leading digit relative to the decimal point.
	lead := d.Exponent() + int32(d.NumDigits()) - 1
	return d.Round(digits - 1 - lead)
}

type Customer struct {
	BaseModel
	OwnerID     string `db:"owner_id" json:"owner_id"`
	PhoneNumber string `db:"phone_number" json:"phone_number"`
	Name        string `db:"name" json:"name"`
}
