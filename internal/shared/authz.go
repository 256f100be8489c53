package shared

import "strings"

// Operation identifies an exposed service operation for access control.
type Operation string

const (
	OpRegisterEvent     Operation = "registerEvent"
	OpListPendingEvents Operation = "listPendingEvents"
	OpCreateInvoiceData Operation = "createInvoiceData"
	OpListInvoices      Operation = "listInvoices"
	OpGetInvoiceData    Operation = "getInvoiceData"
)

// Authorizer answers access questions for callers. Implementations own the
// policy; the service layer only consults the verdict.
type Authorizer interface {
	HasAccess(op Operation, callerID string) bool
	HasSupplierAccess(op Operation, callerID, supplierID string) bool
}

// ACLAuthorizer grants access from static allow lists. The entry "*" opens
// the deployment to every caller (resp. every caller/supplier pair).
type ACLAuthorizer struct {
	open      bool
	callers   map[string]struct{}
	openSupp  bool
	suppliers map[string]struct{}
}

// NewACLAuthorizer parses comma-separated allow lists. The supplier list
// holds "callerID:supplierID" pairs.
func NewACLAuthorizer(accessList, supplierAccessList string) *ACLAuthorizer {
	a := &ACLAuthorizer{
		callers:   make(map[string]struct{}),
		suppliers: make(map[string]struct{}),
	}
	for _, entry := range splitList(accessList) {
		if entry == "*" {
			a.open = true
			continue
		}
		a.callers[entry] = struct{}{}
	}
	for _, entry := range splitList(supplierAccessList) {
		if entry == "*" {
			a.openSupp = true
			continue
		}
		a.suppliers[entry] = struct{}{}
	}
	return a
}

// HasAccess reports whether the caller may invoke the operation at all.
func (a *ACLAuthorizer) HasAccess(op Operation, callerID string) bool {
	if a.open {
		return true
	}
	if callerID == "" {
		return false
	}
	_, ok := a.callers[callerID]
	return ok
}

// HasSupplierAccess reports whether the caller may act for the supplier.
func (a *ACLAuthorizer) HasSupplierAccess(op Operation, callerID, supplierID string) bool {
	if !a.HasAccess(op, callerID) {
		return false
	}
	if a.openSupp {
		return true
	}
	_, ok := a.suppliers[callerID+":"+supplierID]
	return ok
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
