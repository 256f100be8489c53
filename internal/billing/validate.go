package billing

import (
	"github.com/shopspring/decimal"

	"github.com/fakturo/fakturo/internal/shared"
)

var maxItemQty = decimal.NewFromInt(99999)

// ValidateEvent checks schema-mandatory fields and item constraints. The
// first violation wins; violations are never aggregated.
func ValidateEvent(e *BusinessEvent) error {
	if e.EventID == "" {
		return shared.ValidationError("event.eventId")
	}
	if e.SupplierID == "" {
		return shared.ValidationError("event.supplierId")
	}
	if e.SupplierName == "" {
		return shared.ValidationError("event.supplierName")
	}
	if e.ServiceCode == "" {
		return shared.ValidationError("event.serviceCode")
	}
	if e.PaymentResponsible == "" {
		return shared.ValidationError("event.paymentResponsible")
	}
	if e.HealthCareCommission == "" {
		return shared.ValidationError("event.healthCareCommission")
	}
	if e.AcknowledgedBy == "" {
		return shared.ValidationError("event.acknowledgedBy")
	}
	if e.AcknowledgedTime.IsZero() {
		return shared.ValidationError("event.acknowledgedTime")
	}
	if e.StartTime.IsZero() {
		return shared.ValidationError("event.startTime")
	}
	if e.EndTime.IsZero() {
		return shared.ValidationError("event.endTime")
	}
	if e.EndTime.Before(e.StartTime) {
		return shared.ValidationError("event.endTime is before event.startTime")
	}
	if len(e.Items) == 0 {
		return shared.ValidationError("event.items")
	}
	for i := range e.Items {
		if err := validateItem(&e.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateItem(item *Item) error {
	if item.Description == "" {
		return shared.ValidationError("item.description")
	}
	if item.ItemID == "" {
		return shared.ValidationError("item.id")
	}
	if item.Qty.IsNegative() || item.Qty.GreaterThan(maxItemQty) {
		return shared.ValidationErrorf("item.qty", "out of range: %s", item.Qty)
	}
	if item.Qty.Exponent() < -2 {
		return shared.ValidationErrorf("item.qty", "invalid scale: %s", item.Qty)
	}
	return nil
}

// ValidateBatch checks an assembled invoice before it is committed.
func ValidateBatch(inv *InvoiceData) error {
	if inv.CreatedBy == "" {
		return shared.ValidationError("invoiceData.createdBy")
	}
	if inv.PaymentResponsible == "" {
		return shared.ValidationError("invoiceData.paymentResponsible")
	}
	if inv.SupplierID == "" {
		return shared.ValidationError("invoiceData.supplierId")
	}
	if len(inv.Events) == 0 {
		return shared.ValidationError("invoiceData.events")
	}
	return nil
}
