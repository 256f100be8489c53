package rating

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakturo/fakturo/internal/billing"
	"github.com/fakturo/fakturo/internal/shared"
)

type mapSource struct {
	prices map[string]decimal.Decimal
	err    error
}

func (s *mapSource) PriceFor(ctx context.Context, supplierID, serviceCode, itemID string) (decimal.Decimal, bool, error) {
	if s.err != nil {
		return decimal.Decimal{}, false, s.err
	}
	price, ok := s.prices[supplierID+":"+serviceCode+":"+itemID]
	return price, ok, nil
}

func TestRateUsesSourcePrice(t *testing.T) {
	source := &mapSource{prices: map[string]decimal.Decimal{
		"ACME:TAXI:KM": decimal.RequireFromString("12.50"),
	}}
	svc := NewService(source, decimal.NewFromInt(7))

	item := &billing.Item{ItemID: "KM", Description: "Distance", Qty: decimal.NewFromInt(10)}
	require.NoError(t, svc.Rate(context.Background(), "ACME", "TAXI", item))
	assert.True(t, decimal.RequireFromString("12.50").Equal(item.Price))
}

func TestRateFallsBackToDefaultPrice(t *testing.T) {
	svc := NewService(&mapSource{}, decimal.RequireFromString("9.90"))

	item := &billing.Item{ItemID: "UNPRICED", Description: "Misc", Qty: decimal.NewFromInt(1)}
	require.NoError(t, svc.Rate(context.Background(), "ACME", "TAXI", item))
	assert.True(t, decimal.RequireFromString("9.90").Equal(item.Price))
}

func TestRateRejectsIncompleteInput(t *testing.T) {
	svc := NewService(&mapSource{}, decimal.Zero)

	err := svc.Rate(context.Background(), "ACME", "TAXI", &billing.Item{Description: "Misc"})
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	assert.Equal(t, "item.id", shared.FieldOf(err))

	err = svc.Rate(context.Background(), "ACME", "", &billing.Item{ItemID: "KM", Description: "Distance"})
	require.Error(t, err)
	assert.Equal(t, "event.serviceCode", shared.FieldOf(err))
}

func TestRatePropagatesSourceFailure(t *testing.T) {
	source := &mapSource{err: context.DeadlineExceeded}
	svc := NewService(source, decimal.Zero)

	err := svc.Rate(context.Background(), "ACME", "TAXI", &billing.Item{ItemID: "KM", Description: "Distance"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
