package billing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fakturo/fakturo/internal/platform/httpx"
	"github.com/fakturo/fakturo/internal/shared"
)

// Handler binds the billing operations to HTTP. It maps wire requests to
// service calls and error kinds to result codes; it owns no business logic.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/events", h.registerEvent)
	r.Get("/events/pending", h.listPendingEvents)
	r.Post("/invoice-data", h.createInvoiceData)
	r.Get("/invoice-data", h.listInvoices)
	r.Get("/invoice-data/{referenceID}", h.getInvoiceData)
}

type itemRequest struct {
	ItemID      string          `json:"itemId" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Qty         decimal.Decimal `json:"qty"`
}

type eventRequest struct {
	EventID              string        `json:"eventId" validate:"required"`
	SupplierID           string        `json:"supplierId" validate:"required"`
	SupplierName         string        `json:"supplierName" validate:"required"`
	ServiceCode          string        `json:"serviceCode" validate:"required"`
	PaymentResponsible   string        `json:"paymentResponsible" validate:"required"`
	HealthCareCommission string        `json:"healthCareCommission" validate:"required"`
	AcknowledgementID    string        `json:"acknowledgementId"`
	AcknowledgedBy       string        `json:"acknowledgedBy" validate:"required"`
	AcknowledgedTime     time.Time     `json:"acknowledgedTime"`
	StartTime            time.Time     `json:"startTime"`
	EndTime              time.Time     `json:"endTime"`
	Items                []itemRequest `json:"items"`
}

type createInvoiceDataRequest struct {
	SupplierID         string   `json:"supplierId" validate:"required"`
	PaymentResponsible string   `json:"paymentResponsible" validate:"required"`
	CreatedBy          string   `json:"createdBy" validate:"required"`
	EventRefs          []string `json:"eventRefs" validate:"min=1"`
}

type itemResponse struct {
	ItemID      string          `json:"itemId"`
	Description string          `json:"description"`
	Qty         decimal.Decimal `json:"qty"`
	Price       decimal.Decimal `json:"price"`
}

type eventResponse struct {
	ID                   int64           `json:"id"`
	EventID              string          `json:"eventId"`
	SupplierID           string          `json:"supplierId"`
	SupplierName         string          `json:"supplierName"`
	ServiceCode          string          `json:"serviceCode"`
	PaymentResponsible   string          `json:"paymentResponsible"`
	HealthCareCommission string          `json:"healthCareCommission"`
	AcknowledgementID    string          `json:"acknowledgementId,omitempty"`
	AcknowledgedBy       string          `json:"acknowledgedBy"`
	AcknowledgedTime     time.Time       `json:"acknowledgedTime"`
	StartTime            time.Time       `json:"startTime"`
	EndTime              time.Time       `json:"endTime"`
	Credit               bool            `json:"credit"`
	Amount               decimal.Decimal `json:"amount"`
	Items                []itemResponse  `json:"items"`
}

type invoiceHeaderResponse struct {
	ReferenceID        string          `json:"referenceId"`
	SupplierID         string          `json:"supplierId"`
	PaymentResponsible string          `json:"paymentResponsible"`
	CreatedBy          string          `json:"createdBy"`
	CreatedAt          time.Time       `json:"createdAt"`
	EventCount         int             `json:"eventCount"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
}

type invoiceDataResponse struct {
	invoiceHeaderResponse
	Events []eventResponse `json:"events"`
}

func (h *Handler) registerEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	event := toDomainEvent(req)
	if err := h.service.RegisterEvent(r.Context(), event); err != nil {
		h.respondError(w, r, "register event", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func (h *Handler) listPendingEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListPendingEvents(r.Context(),
		r.URL.Query().Get("supplierId"),
		r.URL.Query().Get("paymentResponsible"))
	if err != nil {
		h.respondError(w, r, "list pending events", err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for i := range events {
		out = append(out, toEventResponse(&events[i]))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createInvoiceData(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceDataRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	referenceID, err := h.service.CreateInvoiceData(r.Context(),
		req.SupplierID, req.PaymentResponsible, req.CreatedBy, req.EventRefs)
	if err != nil {
		h.respondError(w, r, "create invoice data", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"referenceId": referenceID})
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := InvoiceQuery{
		SupplierID:         r.URL.Query().Get("supplierId"),
		PaymentResponsible: r.URL.Query().Get("paymentResponsible"),
	}
	var err error
	var dateOnly bool
	if q.From, _, err = parseDate(r.URL.Query().Get("fromDate")); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid fromDate")
		return
	}
	if q.To, dateOnly, err = parseDate(r.URL.Query().Get("toDate")); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid toDate")
		return
	}
	if dateOnly {
		// A date-only upper bound includes that whole day.
		q.To = q.To.Add(24*time.Hour - time.Nanosecond)
	}

	headers, err := h.service.ListInvoices(r.Context(), q)
	if err != nil {
		h.respondError(w, r, "list invoices", err)
		return
	}
	out := make([]invoiceHeaderResponse, 0, len(headers))
	for _, header := range headers {
		out = append(out, toHeaderResponse(header))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getInvoiceData(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetInvoiceByReferenceID(r.Context(), chi.URLParam(r, "referenceID"))
	if err != nil {
		h.respondError(w, r, "get invoice data", err)
		return
	}

	resp := invoiceDataResponse{
		invoiceHeaderResponse: toHeaderResponse(InvoiceHeader{
			ID:                 inv.ID,
			ReferenceID:        inv.ReferenceID(),
			SupplierID:         inv.SupplierID,
			PaymentResponsible: inv.PaymentResponsible,
			CreatedBy:          inv.CreatedBy,
			CreatedAt:          inv.CreatedAt,
			EventCount:         len(inv.Events),
			TotalAmount:        inv.TotalAmount(),
		}),
		Events: make([]eventResponse, 0, len(inv.Events)),
	}
	for i := range inv.Events {
		resp.Events = append(resp.Events, toEventResponse(&inv.Events[i]))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// respondError logs client faults at warn and server faults at error, then
// maps the error kind to the wire result code.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	guid := shared.GUIDFromContext(r.Context())
	attrs := []any{slog.Any("error", err), slog.String("guid", guid)}
	switch shared.KindOf(err) {
	case shared.KindValidation, shared.KindNotFound, shared.KindAuthorization:
		h.logger.Warn(msg, attrs...)
	default:
		h.logger.Error(msg, attrs...)
	}
	httpx.RespondError(w, guid, err)
}

func toDomainEvent(req eventRequest) *BusinessEvent {
	event := &BusinessEvent{
		EventID:              req.EventID,
		SupplierID:           req.SupplierID,
		SupplierName:         req.SupplierName,
		ServiceCode:          req.ServiceCode,
		PaymentResponsible:   req.PaymentResponsible,
		HealthCareCommission: req.HealthCareCommission,
		AcknowledgementID:    req.AcknowledgementID,
		AcknowledgedBy:       req.AcknowledgedBy,
		AcknowledgedTime:     req.AcknowledgedTime,
		StartTime:            req.StartTime,
		EndTime:              req.EndTime,
		Items:                make([]Item, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		event.Items = append(event.Items, Item{
			ItemID:      item.ItemID,
			Description: item.Description,
			Qty:         item.Qty,
		})
	}
	return event
}

func toEventResponse(e *BusinessEvent) eventResponse {
	resp := eventResponse{
		ID:                   e.ID,
		EventID:              e.EventID,
		SupplierID:           e.SupplierID,
		SupplierName:         e.SupplierName,
		ServiceCode:          e.ServiceCode,
		PaymentResponsible:   e.PaymentResponsible,
		HealthCareCommission: e.HealthCareCommission,
		AcknowledgementID:    e.AcknowledgementID,
		AcknowledgedBy:       e.AcknowledgedBy,
		AcknowledgedTime:     e.AcknowledgedTime,
		StartTime:            e.StartTime,
		EndTime:              e.EndTime,
		Credit:               e.Credit,
		Amount:               e.Amount(),
		Items:                make([]itemResponse, 0, len(e.Items)),
	}
	for _, item := range e.Items {
		resp.Items = append(resp.Items, itemResponse{
			ItemID:      item.ItemID,
			Description: item.Description,
			Qty:         item.Qty,
			Price:       item.Price,
		})
	}
	return resp
}

func toHeaderResponse(h InvoiceHeader) invoiceHeaderResponse {
	return invoiceHeaderResponse{
		ReferenceID:        h.ReferenceID,
		SupplierID:         h.SupplierID,
		PaymentResponsible: h.PaymentResponsible,
		CreatedBy:          h.CreatedBy,
		CreatedAt:          h.CreatedAt,
		EventCount:         h.EventCount,
		TotalAmount:        h.TotalAmount,
	}
}

// parseDate accepts RFC3339 timestamps or plain dates. The second return
// reports the date-only form, whose bound semantics differ per endpoint.
func parseDate(raw string) (time.Time, bool, error) {
	if raw == "" {
		return time.Time{}, false, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, false, nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}
