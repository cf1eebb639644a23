package accounting

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zimam-erp/zimam-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the accounting reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs accounting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers accounting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/cogs", h.handleCOGS)
	r.Get("/inventory-value", h.handleValuation)
}

func (h *Handler) handleCOGS(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.company(w, r)
	if !ok {
		return
	}
	from, ok := h.date(w, r, "from", time.Now().UTC().AddDate(0, -1, 0))
	if !ok {
		return
	}
	to, ok := h.date(w, r, "to", time.Now().UTC())
	if !ok {
		return
	}
	report, err := h.service.CostOfGoodsSold(r.Context(), companyID, from, to)
	if err != nil {
		h.logger.Error("cogs report failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"company_id": report.CompanyID,
		"from":       report.From.Format("2006-01-02"),
		"to":         report.To.Format("2006-01-02"),
		"cogs":       report.COGS.String(),
		"units_sold": report.UnitsSold.String(),
	})
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.company(w, r)
	if !ok {
		return
	}
	asOf, ok := h.date(w, r, "as_of", time.Now().UTC())
	if !ok {
		return
	}
	report, err := h.service.InventoryValuation(r.Context(), companyID, asOf)
	if err != nil {
		h.logger.Error("valuation report failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	lines := make([]map[string]any, 0, len(report.Lines))
	for _, line := range report.Lines {
		lines = append(lines, map[string]any{
			"product_id": line.ProductID,
			"sku":        line.SKU,
			"name":       line.Name,
			"on_hand":    line.OnHand.String(),
			"value":      line.Value.String(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"company_id": report.CompanyID,
		"as_of":      report.AsOf.Format("2006-01-02"),
		"total":      report.Total.String(),
		"lines":      lines,
	})
}

func (h *Handler) company(w http.ResponseWriter, r *http.Request) (int64, bool) {
	companyID, err := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if err != nil || companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id required")
		return 0, false
	}
	return companyID, true
}

func (h *Handler) date(w http.ResponseWriter, r *http.Request, param string, fallback time.Time) (time.Time, bool) {
	v := r.URL.Query().Get(param)
	if v == "" {
		return fallback, true
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", param+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t.Add(24*time.Hour - time.Nanosecond), true
}
