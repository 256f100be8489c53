package pricelist

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/fakturo/fakturo/internal/shared"
)

// RepositoryPort defines data access for price lists.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*PriceList, error)
	List(ctx context.Context) ([]PriceList, error)
	Save(ctx context.Context, list *PriceList) (*PriceList, error)
	Delete(ctx context.Context, id int64) error
	FindPrice(ctx context.Context, supplierID, serviceCode, itemID string) (decimal.Decimal, bool, error)
}

// Service manages price list reference data and serves unit price lookups
// to the rating engine.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	group singleflight.Group
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

type priceResult struct {
	price decimal.Decimal
	found bool
}

// PriceFor resolves the unit price for an item of a supplier's service.
// Lookups are cached; concurrent cache misses for the same key collapse
// into one repository query.
func (s *Service) PriceFor(ctx context.Context, supplierID, serviceCode, itemID string) (decimal.Decimal, bool, error) {
	if price, ok := s.cache.Get(ctx, supplierID, serviceCode, itemID); ok {
		return price, true, nil
	}

	key := supplierID + ":" + serviceCode + ":" + itemID
	v, err, _ := s.group.Do(key, func() (any, error) {
		price, found, err := s.repo.FindPrice(ctx, supplierID, serviceCode, itemID)
		if err != nil {
			return nil, err
		}
		if found {
			s.cache.Set(ctx, supplierID, serviceCode, itemID, price)
		}
		return priceResult{price: price, found: found}, nil
	})
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	result := v.(priceResult)
	return result.price, result.found, nil
}

// GetPriceList returns one price list by id.
func (s *Service) GetPriceList(ctx context.Context, id int64) (*PriceList, error) {
	list, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, shared.NotFoundError("priceList " + strconv.FormatInt(id, 10))
	}
	return list, nil
}

// GetPriceLists returns all price lists.
func (s *Service) GetPriceLists(ctx context.Context) ([]PriceList, error) {
	return s.repo.List(ctx)
}

// SavePriceList creates or replaces a price list and drops stale cached
// prices.
func (s *Service) SavePriceList(ctx context.Context, list *PriceList) (*PriceList, error) {
	if list.SupplierID == "" {
		return nil, shared.ValidationError("priceList.supplierId")
	}
	if list.ServiceCode == "" {
		return nil, shared.ValidationError("priceList.serviceCode")
	}
	if list.ValidFrom.IsZero() {
		return nil, shared.ValidationError("priceList.validFrom")
	}
	for _, price := range list.Prices {
		if price.ItemID == "" {
			return nil, shared.ValidationError("priceList.item.id")
		}
		if price.Price.IsNegative() {
			return nil, shared.ValidationErrorf("priceList.item.price", "negative: %s", price.Price)
		}
	}

	saved, err := s.repo.Save(ctx, list)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateList(ctx, list.SupplierID, list.ServiceCode)
	return saved, nil
}

// DeletePriceList removes a price list and drops its cached prices.
func (s *Service) DeletePriceList(ctx context.Context, id int64) error {
	list, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if list == nil {
		return shared.NotFoundError("priceList " + strconv.FormatInt(id, 10))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.InvalidateList(ctx, list.SupplierID, list.ServiceCode)
	return nil
}
