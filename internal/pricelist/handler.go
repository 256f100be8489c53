package pricelist

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fakturo/fakturo/internal/platform/httpx"
	"github.com/fakturo/fakturo/internal/shared"
)

// Handler manages price list endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers price list routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pricelists", h.listPriceLists)
	r.Get("/pricelists/{id}", h.getPriceList)
	r.Post("/pricelists", h.savePriceList)
	r.Delete("/pricelists/{id}", h.deletePriceList)
}

type itemPriceRequest struct {
	ItemID string          `json:"itemId" validate:"required"`
	Price  decimal.Decimal `json:"price"`
}

type priceListRequest struct {
	SupplierID  string             `json:"supplierId" validate:"required"`
	ServiceCode string             `json:"serviceCode" validate:"required"`
	ValidFrom   time.Time          `json:"validFrom"`
	Prices      []itemPriceRequest `json:"prices"`
}

type itemPriceResponse struct {
	ItemID string          `json:"itemId"`
	Price  decimal.Decimal `json:"price"`
}

type priceListResponse struct {
	ID          int64               `json:"id"`
	SupplierID  string              `json:"supplierId"`
	ServiceCode string              `json:"serviceCode"`
	ValidFrom   time.Time           `json:"validFrom"`
	Prices      []itemPriceResponse `json:"prices,omitempty"`
}

func (h *Handler) listPriceLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.service.GetPriceLists(r.Context())
	if err != nil {
		h.respondError(w, r, "list price lists", err)
		return
	}
	out := make([]priceListResponse, 0, len(lists))
	for i := range lists {
		out = append(out, toPriceListResponse(&lists[i]))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getPriceList(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid price list id")
		return
	}
	list, err := h.service.GetPriceList(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get price list", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPriceListResponse(list))
}

func (h *Handler) savePriceList(w http.ResponseWriter, r *http.Request) {
	var req priceListRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	list := &PriceList{
		SupplierID:  req.SupplierID,
		ServiceCode: req.ServiceCode,
		ValidFrom:   req.ValidFrom,
		Prices:      make([]ItemPrice, 0, len(req.Prices)),
	}
	for _, price := range req.Prices {
		list.Prices = append(list.Prices, ItemPrice{ItemID: price.ItemID, Price: price.Price})
	}

	saved, err := h.service.SavePriceList(r.Context(), list)
	if err != nil {
		h.respondError(w, r, "save price list", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPriceListResponse(saved))
}

func (h *Handler) deletePriceList(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid price list id")
		return
	}
	if err := h.service.DeletePriceList(r.Context(), id); err != nil {
		h.respondError(w, r, "delete price list", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	guid := shared.GUIDFromContext(r.Context())
	h.logger.Warn(msg, slog.Any("error", err), slog.String("guid", guid))
	httpx.RespondError(w, guid, err)
}

func toPriceListResponse(list *PriceList) priceListResponse {
	resp := priceListResponse{
		ID:          list.ID,
		SupplierID:  list.SupplierID,
		ServiceCode: list.ServiceCode,
		ValidFrom:   list.ValidFrom,
	}
	for _, price := range list.Prices {
		resp.Prices = append(resp.Prices, itemPriceResponse{ItemID: price.ItemID, Price: price.Price})
	}
	return resp
}
