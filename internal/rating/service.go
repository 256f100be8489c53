package rating

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fakturo/fakturo/internal/billing"
	"github.com/fakturo/fakturo/internal/shared"
)

// PriceSource resolves unit prices from reference data.
type PriceSource interface {
	PriceFor(ctx context.Context, supplierID, serviceCode, itemID string) (decimal.Decimal, bool, error)
}

// Service computes unit prices for event items. Rating is deterministic
// and leaves no trace beyond the price written onto the item.
type Service struct {
	source       PriceSource
	defaultPrice decimal.Decimal
}

// NewService builds Service instance. The default price applies when no
// price list entry covers an item.
func NewService(source PriceSource, defaultPrice decimal.Decimal) *Service {
	return &Service{source: source, defaultPrice: defaultPrice}
}

// Rate writes the unit price onto the item. It fails when the item lacks
// the fields pricing requires.
func (s *Service) Rate(ctx context.Context, supplierID, serviceCode string, item *billing.Item) error {
	if item.ItemID == "" {
		return shared.ValidationError("item.id")
	}
	if serviceCode == "" {
		return shared.ValidationError("event.serviceCode")
	}
	if s.source != nil {
		price, found, err := s.source.PriceFor(ctx, supplierID, serviceCode, item.ItemID)
		if err != nil {
			return err
		}
		if found {
			item.Price = price
			return nil
		}
	}
	item.Price = s.defaultPrice
	return nil
}
