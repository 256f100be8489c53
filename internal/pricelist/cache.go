package pricelist

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache wraps Redis based caching of resolved unit prices. A nil client
// degrades to a no-op so the service works without Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func priceKey(supplierID, serviceCode, itemID string) string {
	return "pricelist:price:" + supplierID + ":" + serviceCode + ":" + itemID
}

// Get returns a cached unit price when present.
func (c *Cache) Get(ctx context.Context, supplierID, serviceCode, itemID string) (decimal.Decimal, bool) {
	if c == nil || c.client == nil {
		return decimal.Decimal{}, false
	}
	raw, err := c.client.Get(ctx, priceKey(supplierID, serviceCode, itemID)).Result()
	if err != nil {
		return decimal.Decimal{}, false
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return price, true
}

// Set stores a resolved unit price. Cache failures are deliberately
// swallowed; pricing falls back to the repository.
func (c *Cache) Set(ctx context.Context, supplierID, serviceCode, itemID string, price decimal.Decimal) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, priceKey(supplierID, serviceCode, itemID), price.String(), c.ttl).Err()
}

// InvalidateList drops every cached price of one supplier/service pair,
// called after a price list changes.
func (c *Cache) InvalidateList(ctx context.Context, supplierID, serviceCode string) {
	if c == nil || c.client == nil {
		return
	}
	pattern := "pricelist:price:" + supplierID + ":" + serviceCode + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		_ = c.client.Del(ctx, iter.Val()).Err()
	}
}
