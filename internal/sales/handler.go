package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/zimam-erp/zimam-erp/internal/inventory"
	"github.com/zimam-erp/zimam-erp/internal/platform/httpx"
	"github.com/zimam-erp/zimam-erp/internal/shared"
)

// Handler wires HTTP endpoints for the sales module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/customers", h.handleCreateCustomer)
	r.Post("/invoices", h.handleCreateInvoice)
	r.Get("/invoices", h.handleListInvoices)
	r.Get("/invoices/{invoiceID}", h.handleGetInvoice)
	r.Post("/invoices/{invoiceID}/post", h.handlePostInvoice)
	r.Post("/invoices/{invoiceID}/cancel", h.handleCancelInvoice)
}

type customerRequest struct {
	CompanyID int64  `json:"company_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone"`
}

func (h *Handler) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	customer, err := h.service.CreateCustomer(r.Context(), Customer{
		CompanyID: req.CompanyID,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": customer.ID, "name": customer.Name})
}

type invoiceItemRequest struct {
	ProductID   int64  `json:"product_id" validate:"required"`
	Description string `json:"description"`
	Quantity    string `json:"quantity" validate:"required"`
	UnitPrice   string `json:"unit_price" validate:"required"`
}

type invoiceRequest struct {
	CompanyID  int64                `json:"company_id" validate:"required"`
	CustomerID int64                `json:"customer_id" validate:"required"`
	Number     string               `json:"invoice_number"`
	Notes      string               `json:"notes"`
	Items      []invoiceItemRequest `json:"items" validate:"required,min=1,dive"`
}

type invoiceResponse struct {
	ID          int64                 `json:"id"`
	Number      string                `json:"invoice_number"`
	Status      string                `json:"status"`
	CustomerID  int64                 `json:"customer_id"`
	InvoiceDate string                `json:"invoice_date"`
	Subtotal    string                `json:"subtotal"`
	TaxAmount   string                `json:"tax_amount"`
	TotalAmount string                `json:"total_amount"`
	Notes       string                `json:"notes,omitempty"`
	Items       []invoiceItemResponse `json:"items,omitempty"`
}

type invoiceItemResponse struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	Description string `json:"description,omitempty"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Total       string `json:"total"`
}

func toInvoiceResponse(inv Invoice, items []InvoiceItem) invoiceResponse {
	resp := invoiceResponse{
		ID:          inv.ID,
		Number:      inv.Number,
		Status:      string(inv.Status),
		CustomerID:  inv.CustomerID,
		InvoiceDate: inv.InvoiceDate.Format(time.RFC3339),
		Subtotal:    inv.Subtotal.String(),
		TaxAmount:   inv.TaxAmount.String(),
		TotalAmount: inv.TotalAmount.String(),
		Notes:       inv.Notes,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, invoiceItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			UnitPrice:   item.UnitPrice.String(),
			Total:       item.Total.String(),
		})
	}
	return resp
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInvoiceInput{
		CompanyID:  req.CompanyID,
		CustomerID: req.CustomerID,
		Number:     req.Number,
		Notes:      req.Notes,
		ActorID:    shared.ActorFromContext(r.Context()),
	}
	for _, item := range req.Items {
		qty, err := decimal.NewFromString(item.Quantity)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity must be a decimal number")
			return
		}
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price must be a decimal number")
			return
		}
		input.Items = append(input.Items, InvoiceItemInput{
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    qty,
			UnitPrice:   price,
		})
	}
	invoice, err := h.service.CreateInvoice(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(invoice, nil))
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	companyID, err := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if err != nil || companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id required")
		return
	}
	status := InvoiceStatus(r.URL.Query().Get("status"))
	invoices, err := h.service.ListInvoices(r.Context(), companyID, status, 100)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		resp = append(resp, toInvoiceResponse(inv, nil))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	companyID, invoiceID, ok := h.scope(w, r)
	if !ok {
		return
	}
	invoice, items, err := h.service.GetInvoice(r.Context(), companyID, invoiceID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice, items))
}

func (h *Handler) handlePostInvoice(w http.ResponseWriter, r *http.Request) {
	companyID, invoiceID, ok := h.scope(w, r)
	if !ok {
		return
	}
	invoice, err := h.service.PostInvoice(r.Context(), companyID, invoiceID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice, nil))
}

func (h *Handler) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	companyID, invoiceID, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.service.CancelInvoice(r.Context(), companyID, invoiceID); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (companyID, invoiceID int64, ok bool) {
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil || invoiceID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return 0, 0, false
	}
	companyID, err = strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if err != nil || companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id required")
		return 0, 0, false
	}
	return companyID, invoiceID, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound), errors.Is(err, ErrCustomerNotFound), errors.Is(err, inventory.ErrProductNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid State", err.Error())
	case errors.Is(err, inventory.ErrNegativeStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, inventory.ErrConcurrentModification):
		httpx.RespondError(w, httpx.ErrConflict)
	default:
		h.logger.Error("sales request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
