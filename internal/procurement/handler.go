package procurement

import (
	"context"
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

// Handler wires HTTP endpoints for the procurement module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/suppliers", h.handleCreateSupplier)
	r.Post("/orders", h.handleCreateOrder)
	r.Get("/orders", h.handleListOrders)
	r.Get("/orders/{poID}", h.handleGetOrder)
	r.Post("/orders/{poID}/send", h.handleTransition(func(s *Service) transitionFn { return s.SendOrder }))
	r.Post("/orders/{poID}/confirm", h.handleTransition(func(s *Service) transitionFn { return s.ConfirmOrder }))
	r.Post("/orders/{poID}/cancel", h.handleTransition(func(s *Service) transitionFn { return s.CancelOrder }))
	r.Post("/orders/{poID}/receipts", h.handlePostReceipt)
}

type supplierRequest struct {
	CompanyID int64  `json:"company_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone"`
}

func (h *Handler) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), Supplier{
		CompanyID: req.CompanyID,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": supplier.ID, "name": supplier.Name})
}

type orderItemRequest struct {
	ProductID   int64  `json:"product_id" validate:"required"`
	Description string `json:"description"`
	Quantity    string `json:"quantity" validate:"required"`
	UnitPrice   string `json:"unit_price" validate:"required"`
}

type orderRequest struct {
	CompanyID    int64              `json:"company_id" validate:"required"`
	SupplierID   int64              `json:"supplier_id" validate:"required"`
	Number       string             `json:"po_number"`
	ExpectedDate string             `json:"expected_date"`
	Notes        string             `json:"notes"`
	Items        []orderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type orderResponse struct {
	ID             int64               `json:"id"`
	Number         string              `json:"po_number"`
	Status         string              `json:"status"`
	SupplierID     int64               `json:"supplier_id"`
	OrderDate      string              `json:"order_date"`
	ExpectedDate   string              `json:"expected_date"`
	Subtotal       string              `json:"subtotal"`
	TaxAmount      string              `json:"tax_amount"`
	DiscountAmount string              `json:"discount_amount"`
	TotalAmount    string              `json:"total_amount"`
	Notes          string              `json:"notes,omitempty"`
	Items          []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	Description string `json:"description,omitempty"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Total       string `json:"total"`
	ReceivedQty string `json:"received_quantity"`
}

func toOrderResponse(po PurchaseOrder, items []PurchaseOrderItem) orderResponse {
	resp := orderResponse{
		ID:             po.ID,
		Number:         po.Number,
		Status:         string(po.Status),
		SupplierID:     po.SupplierID,
		OrderDate:      po.OrderDate.Format(time.RFC3339),
		ExpectedDate:   po.ExpectedDate.Format(time.RFC3339),
		Subtotal:       po.Subtotal.String(),
		TaxAmount:      po.TaxAmount.String(),
		DiscountAmount: po.DiscountAmount.String(),
		TotalAmount:    po.TotalAmount.String(),
		Notes:          po.Notes,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			UnitPrice:   item.UnitPrice.String(),
			Total:       item.Total.String(),
			ReceivedQty: item.ReceivedQty.String(),
		})
	}
	return resp
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateOrderInput{
		CompanyID:  req.CompanyID,
		SupplierID: req.SupplierID,
		Number:     req.Number,
		Notes:      req.Notes,
		ActorID:    shared.ActorFromContext(r.Context()),
	}
	if req.ExpectedDate != "" {
		t, err := time.Parse("2006-01-02", req.ExpectedDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expected_date must be YYYY-MM-DD")
			return
		}
		input.ExpectedDate = t
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
		input.Items = append(input.Items, OrderItemInput{
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    qty,
			UnitPrice:   price,
		})
	}
	po, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(po, nil))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	companyID, err := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if err != nil || companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id required")
		return
	}
	status := POStatus(r.URL.Query().Get("status"))
	orders, err := h.service.ListOrders(r.Context(), companyID, status, 100)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for _, po := range orders {
		resp = append(resp, toOrderResponse(po, nil))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	companyID, poID, ok := h.scope(w, r)
	if !ok {
		return
	}
	po, items, err := h.service.GetOrder(r.Context(), companyID, poID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(po, items))
}

type transitionFn func(ctx context.Context, companyID, poID int64) error

func (h *Handler) handleTransition(pick func(*Service) transitionFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID, poID, ok := h.scope(w, r)
		if !ok {
			return
		}
		if err := pick(h.service)(r.Context(), companyID, poID); err != nil {
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type receiptLineRequest struct {
	POItemID int64  `json:"po_item_id" validate:"required"`
	Quantity string `json:"quantity" validate:"required"`
	UnitCost string `json:"unit_cost" validate:"required"`
}

type receiptRequest struct {
	CompanyID int64                `json:"company_id" validate:"required"`
	Number    string               `json:"receipt_number"`
	Notes     string               `json:"notes"`
	Lines     []receiptLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handlePostReceipt(w http.ResponseWriter, r *http.Request) {
	poID, err := strconv.ParseInt(chi.URLParam(r, "poID"), 10, 64)
	if err != nil || poID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase order id")
		return
	}
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := PostReceiptInput{
		CompanyID: req.CompanyID,
		POID:      poID,
		Number:    req.Number,
		Notes:     req.Notes,
		ActorID:   shared.ActorFromContext(r.Context()),
	}
	for _, line := range req.Lines {
		qty, err := decimal.NewFromString(line.Quantity)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity must be a decimal number")
			return
		}
		cost, err := decimal.NewFromString(line.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be a decimal number")
			return
		}
		input.Lines = append(input.Lines, ReceiptLineInput{POItemID: line.POItemID, Quantity: qty, UnitCost: cost})
	}
	receipt, err := h.service.PostReceipt(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":             receipt.ID,
		"receipt_number": receipt.Number,
	})
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (companyID, poID int64, ok bool) {
	poID, err := strconv.ParseInt(chi.URLParam(r, "poID"), 10, 64)
	if err != nil || poID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase order id")
		return 0, 0, false
	}
	companyID, err = strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if err != nil || companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id required")
		return 0, 0, false
	}
	return companyID, poID, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrSupplierNotFound), errors.Is(err, inventory.ErrProductNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, inventory.ErrConcurrentModification):
		httpx.RespondError(w, httpx.ErrConflict)
	default:
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
