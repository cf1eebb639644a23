package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/zimam-erp/zimam-erp/internal/platform/httpx"
	"github.com/zimam-erp/zimam-erp/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjustments", h.handleAdjustment)
	r.Get("/products/{productID}", h.handleGetProduct)
	r.Get("/products/{productID}/transactions", h.handleListTransactions)
	r.Get("/products/{productID}/balance", h.handleBalanceAsOf)
	r.Post("/products/{productID}/reconcile", h.handleReconcile)
	r.Get("/low-stock", h.handleLowStock)
}

type adjustmentRequest struct {
	CompanyID int64   `json:"company_id" validate:"required"`
	ProductID int64   `json:"product_id" validate:"required"`
	Quantity  string  `json:"quantity" validate:"required"`
	UnitCost  *string `json:"unit_cost,omitempty"`
	Notes     string  `json:"notes"`
}

type productResponse struct {
	ID                 int64  `json:"id"`
	SKU                string `json:"sku"`
	Name               string `json:"name"`
	CurrentStock       string `json:"current_stock"`
	AverageCost        string `json:"average_cost"`
	ReorderPoint       string `json:"reorder_point"`
	SuggestedReorderPt int64  `json:"ai_suggested_reorder_point,omitempty"`
	LastRestocked      string `json:"last_restocked,omitempty"`
}

func toProductResponse(p Product) productResponse {
	resp := productResponse{
		ID:                 p.ID,
		SKU:                p.SKU,
		Name:               p.Name,
		CurrentStock:       p.CurrentStock.String(),
		AverageCost:        p.AverageCost.String(),
		ReorderPoint:       p.ReorderPoint.String(),
		SuggestedReorderPt: p.SuggestedReorderPt,
	}
	if !p.LastRestocked.IsZero() {
		resp.LastRestocked = p.LastRestocked.Format(time.RFC3339)
	}
	return resp
}

type transactionResponse struct {
	ID             int64  `json:"id"`
	Type           string `json:"type"`
	Quantity       string `json:"quantity"`
	UnitCost       string `json:"unit_cost"`
	TotalCost      string `json:"total_cost"`
	RunningBalance string `json:"running_balance"`
	RefKind        string `json:"ref_kind,omitempty"`
	RefID          int64  `json:"ref_id,omitempty"`
	Notes          string `json:"notes,omitempty"`
	NeedsReview    bool   `json:"needs_review,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity must be a decimal number")
		return
	}
	input := TransactionInput{
		CompanyID: req.CompanyID,
		ProductID: req.ProductID,
		Type:      TransactionTypeAdjustment,
		Quantity:  qty,
		Notes:     req.Notes,
		ActorID:   shared.ActorFromContext(r.Context()),
	}
	if req.UnitCost != nil {
		cost, err := decimal.NewFromString(*req.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be a decimal number")
			return
		}
		input.UnitCost = &cost
	}
	product, err := h.service.ProcessTransaction(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	companyID, productID, ok := h.scope(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), companyID, productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	companyID, productID, ok := h.scope(w, r)
	if !ok {
		return
	}
	filter := TransactionFilter{CompanyID: companyID, ProductID: productID, Limit: 200}
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		// inclusive end of day
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if v := q.Get("type"); v != "" {
		t := TransactionType(v)
		if !t.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown transaction type")
			return
		}
		filter.Types = []TransactionType{t}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	entries, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := make([]transactionResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, transactionResponse{
			ID:             e.ID,
			Type:           string(e.Type),
			Quantity:       e.Quantity.String(),
			UnitCost:       e.UnitCost.String(),
			TotalCost:      e.TotalCost.String(),
			RunningBalance: e.RunningBalance.String(),
			RefKind:        string(e.Ref.Kind),
			RefID:          e.Ref.ID,
			Notes:          e.Notes,
			NeedsReview:    e.NeedsReview,
			CreatedAt:      e.CreatedAt.Format(time.RFC3339),
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleBalanceAsOf(w http.ResponseWriter, r *http.Request) {
	companyID, productID, ok := h.scope(w, r)
	if !ok {
		return
	}
	at := time.Now().UTC()
	if v := r.URL.Query().Get("at"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "at must be YYYY-MM-DD")
			return
		}
		at = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	balance, err := h.service.BalanceAsOf(r.Context(), companyID, productID, at)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"balance": balance.String(),
		"as_of":   at.Format(time.RFC3339),
	})
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	companyID, productID, ok := h.scope(w, r)
	if !ok {
		return
	}
	repair := r.URL.Query().Get("repair") == "true"
	report, err := h.service.Reconcile(r.Context(), companyID, productID, repair)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id":        report.ProductID,
		"entries":           report.Entries,
		"stored_stock":      report.StoredStock.String(),
		"replayed_stock":    report.ReplayedStock.String(),
		"stored_avg_cost":   report.StoredAvgCost.String(),
		"replayed_avg_cost": report.ReplayedAvgCost.String(),
		"drift":             report.Drift(),
		"repaired":          report.Repaired,
	})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	companyID, err := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if err != nil || companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id required")
		return
	}
	products, err := h.service.ListLowStock(r.Context(), companyID, 200)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (companyID, productID int64, ok bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return 0, 0, false
	}
	companyID, err = strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if err != nil || companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id required")
		return 0, 0, false
	}
	return companyID, productID, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidType), errors.Is(err, ErrInvalidUnitCost), errors.Is(err, ErrNegativeStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Movement", err.Error())
	case errors.Is(err, ErrConcurrentModification):
		httpx.RespondError(w, httpx.ErrConflict)
	default:
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
