package forecast

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zimam-erp/zimam-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the forecast module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs forecast handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers forecast routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reorder-suggestions", h.handleSuggestions)
	r.Post("/reorder-suggestions/run", h.handleRun)
}

func (h *Handler) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.company(w, r)
	if !ok {
		return
	}
	suggestions, err := h.service.Suggestions(r.Context(), companyID)
	if err != nil {
		h.logger.Error("forecast read failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suggestions)
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.company(w, r)
	if !ok {
		return
	}
	suggestions, err := h.service.Run(r.Context(), companyID)
	if err != nil {
		h.logger.Error("forecast run failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suggestions)
}

func (h *Handler) company(w http.ResponseWriter, r *http.Request) (int64, bool) {
	companyID, err := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if err != nil || companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id required")
		return 0, false
	}
	return companyID, true
}
