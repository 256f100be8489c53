package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakturo/fakturo/internal/shared"
)

func newTestRouter(repo *mockRepository) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, newTestService(repo))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithCaller(req.Context(), "tester")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	handler.MountRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func eventPayload(eventID string) map[string]any {
	return map[string]any{
		"eventId":              eventID,
		"supplierId":           "ACME",
		"supplierName":         "Acme Transport AB",
		"serviceCode":          "TAXI",
		"paymentResponsible":   "COUNTY-1",
		"healthCareCommission": "HCC-9",
		"acknowledgementId":    "ACK-" + eventID,
		"acknowledgedBy":       "driver-7",
		"acknowledgedTime":     "2026-03-14T09:00:00Z",
		"startTime":            "2026-03-14T08:00:00Z",
		"endTime":              "2026-03-14T09:00:00Z",
		"items": []map[string]any{
			{"itemId": "KM", "description": "Distance", "qty": "42"},
		},
	}
}

func TestRegisterEventEndpoint(t *testing.T) {
	repo := newMockRepository()
	router := newTestRouter(repo)

	rec := doJSON(t, router, http.MethodPost, "/events", eventPayload("EV-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["result"])

	pending, _ := repo.FindPendingEvents(context.Background(), "", "")
	assert.Len(t, pending, 1)
}

func TestRegisterEventEndpointRejectsBadBody(t *testing.T) {
	router := newTestRouter(newMockRepository())

	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestRegisterEventEndpointMissingField(t *testing.T) {
	router := newTestRouter(newMockRepository())

	payload := eventPayload("EV-1")
	delete(payload, "supplierId")
	rec := doJSON(t, router, http.MethodPost, "/events", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterEventEndpointQtyOutOfRange(t *testing.T) {
	router := newTestRouter(newMockRepository())

	payload := eventPayload("EV-1")
	payload["items"] = []map[string]any{
		{"itemId": "KM", "description": "Distance", "qty": "99999.01"},
	}
	rec := doJSON(t, router, http.MethodPost, "/events", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Contains(t, problem["detail"], "item.qty")
}

func TestListPendingEventsEndpoint(t *testing.T) {
	repo := newMockRepository()
	router := newTestRouter(repo)

	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/events", eventPayload("EV-1")).Code)

	rec := doJSON(t, router, http.MethodGet, "/events/pending?supplierId=ACME", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var events []eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "EV-1", events[0].EventID)
	assert.Equal(t, "420", events[0].Amount.String())

	rec = doJSON(t, router, http.MethodGet, "/events/pending?supplierId=OTHER", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Empty(t, events)
}

func TestCreateInvoiceDataEndpoint(t *testing.T) {
	repo := newMockRepository()
	router := newTestRouter(repo)

	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/events", eventPayload("EV-1")).Code)

	rec := doJSON(t, router, http.MethodPost, "/invoice-data", map[string]any{
		"supplierId":         "ACME",
		"paymentResponsible": "COUNTY-1",
		"createdBy":          "clerk",
		"eventRefs":          []string{"ACK-EV-1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ACME.000001", resp["referenceId"])
}

func TestCreateInvoiceDataEndpointEmptyRefs(t *testing.T) {
	router := newTestRouter(newMockRepository())

	rec := doJSON(t, router, http.MethodPost, "/invoice-data", map[string]any{
		"supplierId":         "ACME",
		"paymentResponsible": "COUNTY-1",
		"createdBy":          "clerk",
		"eventRefs":          []string{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateInvoiceDataEndpointNonPending(t *testing.T) {
	repo := newMockRepository()
	router := newTestRouter(repo)

	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/events", eventPayload("EV-1")).Code)

	body := map[string]any{
		"supplierId":         "ACME",
		"paymentResponsible": "COUNTY-1",
		"createdBy":          "clerk",
		"eventRefs":          []string{"ACK-EV-1"},
	}
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/invoice-data", body).Code)

	rec := doJSON(t, router, http.MethodPost, "/invoice-data", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListInvoicesEndpoint(t *testing.T) {
	repo := newMockRepository()
	router := newTestRouter(repo)

	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/events", eventPayload("EV-1")).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/invoice-data", map[string]any{
		"supplierId":         "ACME",
		"paymentResponsible": "COUNTY-1",
		"createdBy":          "clerk",
		"eventRefs":          []string{"ACK-EV-1"},
	}).Code)

	rec := doJSON(t, router, http.MethodGet, "/invoice-data?supplierId=ACME", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var headers []invoiceHeaderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &headers))
	require.Len(t, headers, 1)
	assert.Equal(t, "ACME.000001", headers[0].ReferenceID)
	assert.Equal(t, 1, headers[0].EventCount)
	assert.Equal(t, "420", headers[0].TotalAmount.String())
}

func TestListInvoicesEndpointDateOnlyToDateIncludesWholeDay(t *testing.T) {
	repo := newMockRepository()
	router := newTestRouter(repo)

	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/events", eventPayload("EV-1")).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/invoice-data", map[string]any{
		"supplierId":         "ACME",
		"paymentResponsible": "COUNTY-1",
		"createdBy":          "clerk",
		"eventRefs":          []string{"ACK-EV-1"},
	}).Code)

	// An invoice created during the day is matched by that day as toDate.
	today := time.Now().UTC().Format("2006-01-02")
	rec := doJSON(t, router, http.MethodGet, "/invoice-data?fromDate="+today+"&toDate="+today, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var headers []invoiceHeaderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &headers))
	require.Len(t, headers, 1)
	assert.Equal(t, "ACME.000001", headers[0].ReferenceID)
}

func TestListInvoicesEndpointRejectsBadDate(t *testing.T) {
	router := newTestRouter(newMockRepository())

	rec := doJSON(t, router, http.MethodGet, "/invoice-data?fromDate=14-03-2026", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetInvoiceDataEndpoint(t *testing.T) {
	repo := newMockRepository()
	router := newTestRouter(repo)

	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/events", eventPayload("EV-1")).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/invoice-data", map[string]any{
		"supplierId":         "ACME",
		"paymentResponsible": "COUNTY-1",
		"createdBy":          "clerk",
		"eventRefs":          []string{"ACK-EV-1"},
	}).Code)

	rec := doJSON(t, router, http.MethodGet, "/invoice-data/ACME.000001", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp invoiceDataResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ACME.000001", resp.ReferenceID)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "EV-1", resp.Events[0].EventID)
}

func TestGetInvoiceDataEndpointNotFound(t *testing.T) {
	router := newTestRouter(newMockRepository())

	for _, ref := range []string{"ACME.000099", "garbage"} {
		rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/invoice-data/%s", ref), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, "ref %q", ref)
	}
}
