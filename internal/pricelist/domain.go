package pricelist

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceList holds the unit prices a supplier charges for the items of one
// service code, valid from a given date. Newer lists shadow older ones.
type PriceList struct {
	ID          int64
	SupplierID  string
	ServiceCode string
	ValidFrom   time.Time
	Prices      []ItemPrice
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemPrice maps one item id to its unit price.
type ItemPrice struct {
	ItemID string
	Price  decimal.Decimal
}
