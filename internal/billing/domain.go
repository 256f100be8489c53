package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BusinessEvent is one version of a billable event reported by a supplier.
// The external EventID is shared across versions; at most one version per
// event id may be pending and not a credit at any time.
type BusinessEvent struct {
	ID                   int64
	EventID              string
	SupplierID           string
	SupplierName         string
	ServiceCode          string
	PaymentResponsible   string
	HealthCareCommission string
	AcknowledgementID    string
	AcknowledgedBy       string
	AcknowledgedTime     time.Time
	StartTime            time.Time
	EndTime              time.Time
	Pending              bool
	Credit               bool
	Credited             bool
	// InvoiceID references the owning invoice, 0 while unassigned. Set
	// exclusively by the assembly engine.
	InvoiceID int64
	Items     []Item
	CreatedAt time.Time
}

// Item is one line of a business event. Price is set exclusively by the
// rating engine.
type Item struct {
	ID          int64
	ItemID      string
	Description string
	Qty         decimal.Decimal
	Price       decimal.Decimal
}

// Amount returns the signed total of the event. Credit rows count negative.
func (e *BusinessEvent) Amount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range e.Items {
		total = total.Add(item.Qty.Mul(item.Price))
	}
	if e.Credit {
		return total.Neg()
	}
	return total
}

// CloneAsCredit builds the reversal counterpart of an already invoiced
// event: a fresh row flagged as credit, detached from any invoice, with the
// items deep-copied and detached from their parent rows.
func (e *BusinessEvent) CloneAsCredit() *BusinessEvent {
	clone := *e
	clone.ID = 0
	clone.Credit = true
	clone.Credited = false
	clone.InvoiceID = 0
	clone.CreatedAt = time.Time{}
	clone.Items = make([]Item, len(e.Items))
	for i, item := range e.Items {
		item.ID = 0
		clone.Items[i] = item
	}
	return &clone
}

// InvoiceData is an immutable batch of consumed business events. It is
// created once at assembly and never mutated afterwards.
type InvoiceData struct {
	ID                 int64
	SupplierID         string
	PaymentResponsible string
	CreatedBy          string
	CreatedAt          time.Time
	Events             []BusinessEvent
}

// ReferenceID returns the supplier-scoped reference of a persisted invoice.
func (i *InvoiceData) ReferenceID() string {
	return FormatReferenceID(i.SupplierID, i.ID)
}

// TotalAmount sums the signed amounts of all attached events.
func (i *InvoiceData) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for idx := range i.Events {
		total = total.Add(i.Events[idx].Amount())
	}
	return total
}

// InvoiceHeader summarises an invoice batch without its events.
type InvoiceHeader struct {
	ID                 int64
	ReferenceID        string
	SupplierID         string
	PaymentResponsible string
	CreatedBy          string
	CreatedAt          time.Time
	EventCount         int
	TotalAmount        decimal.Decimal
}

// FormatReferenceID renders the persisted reference id format, e.g.
// internal id 7 and supplier "ACME" become "ACME.000007".
func FormatReferenceID(supplierID string, id int64) string {
	return fmt.Sprintf("%s.%06d", supplierID, id)
}

// ParseReferenceID splits a reference id at its last dot. The numeric part
// is parsed as a whole, so ids beyond six digits round-trip too.
func ParseReferenceID(ref string) (supplierID string, id int64, err error) {
	dot := strings.LastIndex(ref, ".")
	if dot <= 0 || dot == len(ref)-1 {
		return "", 0, fmt.Errorf("malformed reference id %q", ref)
	}
	id, err = strconv.ParseInt(ref[dot+1:], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("malformed reference id %q", ref)
	}
	return ref[:dot], id, nil
}
