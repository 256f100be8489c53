package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/fakturo/fakturo/internal/shared"
)

// Rater prices one event item. Implemented by the rating engine.
type Rater interface {
	Rate(ctx context.Context, supplierID, serviceCode string, item *Item) error
}

// Instrumentation brackets core operations. Implementations must be purely
// observational and never affect the outcome.
type Instrumentation interface {
	Start(operation string) func()
}

// RepositoryPort defines read access for billing queries.
type RepositoryPort interface {
	InTx(ctx context.Context, fn func(TxPort) error) error
	FindPendingEvents(ctx context.Context, supplierID, paymentResponsible string) ([]BusinessEvent, error)
	FindInvoices(ctx context.Context, q InvoiceQuery) ([]InvoiceHeader, error)
	GetInvoiceByID(ctx context.Context, id int64) (*InvoiceData, error)
}

// TxPort defines the write operations available inside one transaction.
// Registration and assembly each execute as a single atomic unit against it:
// every mutation commits together or not at all.
type TxPort interface {
	// LockEventID serializes concurrent registrations for one event id.
	LockEventID(ctx context.Context, eventID string) error
	FindActive(ctx context.Context, eventID string) ([]BusinessEvent, error)
	FindCreditCandidates(ctx context.Context, eventID string) ([]BusinessEvent, error)
	DeleteEvent(ctx context.Context, id int64) error
	InsertEvent(ctx context.Context, e *BusinessEvent) error
	MarkCredited(ctx context.Context, id int64) error
	// FindEventsByRefs resolves internal ids or acknowledgement ids to event
	// rows, locking them against concurrent assembly. Acknowledgement ids
	// resolve pending rows only, since superseded and credit rows share them.
	FindEventsByRefs(ctx context.Context, refs []string) ([]BusinessEvent, error)
	InsertInvoice(ctx context.Context, inv *InvoiceData) (int64, error)
	AttachEvents(ctx context.Context, invoiceID int64, eventRowIDs []int64) error
}

// InvoiceQuery filters invoice listings. Every field is optional; zero
// values match everything.
type InvoiceQuery struct {
	SupplierID         string
	PaymentResponsible string
	From               time.Time
	To                 time.Time
}

// Service implements event registration, invoice assembly and the read
// paths over pending events and invoice batches.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	rater  Rater
	authz  shared.Authorizer
	instr  Instrumentation
}

// NewService builds a Service instance.
func NewService(logger *slog.Logger, repo RepositoryPort, rater Rater, authz shared.Authorizer, instr Instrumentation) *Service {
	return &Service{logger: logger, repo: repo, rater: rater, authz: authz, instr: instr}
}

// RegisterEvent validates, rates and persists one event version. A prior
// un-invoiced version of the same event id is replaced; a prior invoiced
// version spawns an independent credit row, since a committed invoice can
// never be mutated.
func (s *Service) RegisterEvent(ctx context.Context, event *BusinessEvent) error {
	defer s.start("registerEvent")()
	if err := s.authorize(ctx, shared.OpRegisterEvent, event.SupplierID); err != nil {
		return err
	}
	if err := ValidateEvent(event); err != nil {
		return err
	}
	for i := range event.Items {
		if err := s.rater.Rate(ctx, event.SupplierID, event.ServiceCode, &event.Items[i]); err != nil {
			return err
		}
	}

	event.ID = 0
	event.Pending = true
	event.Credit = false
	event.Credited = false
	event.InvoiceID = 0

	return s.repo.InTx(ctx, func(tx TxPort) error {
		if err := tx.LockEventID(ctx, event.EventID); err != nil {
			return err
		}

		actives, err := tx.FindActive(ctx, event.EventID)
		if err != nil {
			return err
		}
		oldActive, err := one(actives, "active", event.EventID)
		if err != nil {
			return err
		}

		candidates, err := tx.FindCreditCandidates(ctx, event.EventID)
		if err != nil {
			return err
		}
		creditCandidate, err := one(candidates, "credit candidate", event.EventID)
		if err != nil {
			return err
		}

		// Only one un-invoiced version of an event id may exist at a time.
		if oldActive != nil {
			if err := tx.DeleteEvent(ctx, oldActive.ID); err != nil {
				return err
			}
		}

		if err := tx.InsertEvent(ctx, event); err != nil {
			return err
		}

		if creditCandidate != nil {
			creditRow := creditCandidate.CloneAsCredit()
			if err := tx.MarkCredited(ctx, creditCandidate.ID); err != nil {
				return err
			}
			if err := tx.InsertEvent(ctx, creditRow); err != nil {
				return err
			}
			s.logger.Info("credit row emitted",
				slog.String("event_id", event.EventID),
				slog.Int64("invoiced_row", creditCandidate.ID))
		}

		return nil
	})
}

// one enforces the at-most-one lookups of the registration state machine.
// Finding more than one row is corrupted state and fails fast; the engine
// never picks one arbitrarily.
func one(events []BusinessEvent, what, eventID string) (*BusinessEvent, error) {
	if len(events) > 1 {
		return nil, shared.ConsistencyErrorf("more than one %s row exists for event %s", what, eventID)
	}
	if len(events) == 0 {
		return nil, nil
	}
	ev := events[0]
	return &ev, nil
}

// ListPendingEvents returns registered events not yet attached to an
// invoice. Each supplied filter constrains its field independently.
func (s *Service) ListPendingEvents(ctx context.Context, supplierID, paymentResponsible string) ([]BusinessEvent, error) {
	defer s.start("listPendingEvents")()
	if err := s.authorize(ctx, shared.OpListPendingEvents, supplierID); err != nil {
		return nil, err
	}
	return s.repo.FindPendingEvents(ctx, supplierID, paymentResponsible)
}

// CreateInvoiceData groups the referenced pending events into a new
// immutable invoice batch and returns its reference id. The whole request
// is rejected when any referenced event is not pending or when the refs do
// not match database state; no partial attachment ever occurs.
func (s *Service) CreateInvoiceData(ctx context.Context, supplierID, paymentResponsible, createdBy string, refs []string) (string, error) {
	defer s.start("createInvoiceData")()
	if err := s.authorize(ctx, shared.OpCreateInvoiceData, supplierID); err != nil {
		return "", err
	}

	refs = dedupe(refs)

	var referenceID string
	err := s.repo.InTx(ctx, func(tx TxPort) error {
		events, err := tx.FindEventsByRefs(ctx, refs)
		if err != nil {
			return err
		}
		for i := range events {
			if !events[i].Pending {
				return shared.ValidationErrorf("invoiceData.events",
					"trying to assign a non-pending event %s to invoice data", events[i].EventID)
			}
			if events[i].SupplierID != supplierID {
				return shared.ValidationErrorf("invoiceData.events",
					"event %s belongs to supplier %s", events[i].EventID, events[i].SupplierID)
			}
		}
		if len(events) != len(refs) {
			return shared.ValidationErrorf("invoiceData.events",
				"given event list doesn't match database state: %d, expected: %d", len(events), len(refs))
		}

		inv := &InvoiceData{
			SupplierID:         supplierID,
			PaymentResponsible: paymentResponsible,
			CreatedBy:          createdBy,
			CreatedAt:          time.Now(),
			Events:             events,
		}
		if err := ValidateBatch(inv); err != nil {
			return err
		}

		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		rowIDs := make([]int64, len(events))
		for i := range events {
			rowIDs[i] = events[i].ID
		}
		if err := tx.AttachEvents(ctx, id, rowIDs); err != nil {
			return err
		}

		inv.ID = id
		referenceID = inv.ReferenceID()
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("invoice data created",
		slog.String("reference_id", referenceID),
		slog.Int("events", len(refs)))
	return referenceID, nil
}

// ListInvoices returns invoice headers matching the query. An unset From
// defaults to the epoch start, an unset To defaults to now.
func (s *Service) ListInvoices(ctx context.Context, q InvoiceQuery) ([]InvoiceHeader, error) {
	defer s.start("listInvoices")()
	if err := s.authorize(ctx, shared.OpListInvoices, q.SupplierID); err != nil {
		return nil, err
	}
	if q.From.IsZero() {
		q.From = time.Unix(0, 0).UTC()
	}
	if q.To.IsZero() {
		q.To = time.Now()
	}
	return s.repo.FindInvoices(ctx, q)
}

// GetInvoiceByReferenceID resolves a reference id to its invoice batch.
func (s *Service) GetInvoiceByReferenceID(ctx context.Context, ref string) (*InvoiceData, error) {
	defer s.start("getInvoiceData")()

	supplierID, id, err := ParseReferenceID(ref)
	if err != nil {
		return nil, shared.NotFoundError(ref)
	}
	if err := s.authorize(ctx, shared.OpGetInvoiceData, supplierID); err != nil {
		return nil, err
	}

	inv, err := s.repo.GetInvoiceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil || inv.SupplierID != supplierID {
		return nil, shared.NotFoundError(ref)
	}
	return inv, nil
}

func (s *Service) authorize(ctx context.Context, op shared.Operation, supplierID string) error {
	callerID := shared.CallerFromContext(ctx)
	allowed := false
	if supplierID == "" {
		allowed = s.authz.HasAccess(op, callerID)
	} else {
		allowed = s.authz.HasSupplierAccess(op, callerID, supplierID)
	}
	if !allowed {
		s.logger.Warn("operation denied",
			slog.String("operation", string(op)),
			slog.String("caller_id", callerID),
			slog.String("supplier_id", supplierID))
		return shared.AuthorizationError(callerID)
	}
	return nil
}

func (s *Service) start(operation string) func() {
	if s.instr == nil {
		return func() {}
	}
	return s.instr.Start(operation)
}

func dedupe(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := refs[:0:0]
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
