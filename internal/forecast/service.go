package forecast

import (
	"context"
	"log/slog"
	"time"
)

// HistoryPort reads aggregated sales history.
type HistoryPort interface {
	SalesHistorySince(ctx context.Context, companyID int64, since time.Time) ([]SalesHistory, error)
}

// SuggestionStore writes predictor output back onto product records. The
// suggestion is advisory only and never overwrites the configured reorder
// point.
type SuggestionStore interface {
	SetSuggestedReorderPoints(ctx context.Context, companyID int64, points map[int64]int64) error
}

// Service runs the reorder point predictor.
type Service struct {
	history HistoryPort
	store   SuggestionStore
	cache   *Cache
	logger  *slog.Logger
}

// NewService constructs forecast service.
func NewService(history HistoryPort, store SuggestionStore, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{history: history, store: store, cache: cache, logger: logger}
}

// Run recomputes suggested reorder points for every product with sales in
// the lookback window, persists them, and refreshes the cache.
func (s *Service) Run(ctx context.Context, companyID int64) ([]Suggestion, error) {
	since := time.Now().UTC().AddDate(0, 0, -LookbackDays)
	histories, err := s.history.SalesHistorySince(ctx, companyID, since)
	if err != nil {
		return nil, err
	}
	points := make(map[int64]int64, len(histories))
	suggestions := make([]Suggestion, 0, len(histories))
	for _, h := range histories {
		point := PredictReorderPoint(h)
		points[h.ProductID] = point
		suggestions = append(suggestions, Suggestion{ProductID: h.ProductID, ReorderPoint: point})
	}
	if len(points) > 0 {
		if err := s.store.SetSuggestedReorderPoints(ctx, companyID, points); err != nil {
			return nil, err
		}
	}
	if err := s.cache.Invalidate(ctx, companyID); err != nil {
		s.logger.Warn("forecast cache invalidation failed", slog.Any("error", err))
	}
	s.logger.Info("reorder prediction finished",
		slog.Int64("company_id", companyID),
		slog.Int("products", len(suggestions)))
	return suggestions, nil
}

// Suggestions returns the cached predictor output, recomputing on a miss
// without persisting, so reads stay cheap and side-effect free.
func (s *Service) Suggestions(ctx context.Context, companyID int64) ([]Suggestion, error) {
	return s.cache.FetchSuggestions(ctx, companyID, func(ctx context.Context) ([]Suggestion, error) {
		since := time.Now().UTC().AddDate(0, 0, -LookbackDays)
		histories, err := s.history.SalesHistorySince(ctx, companyID, since)
		if err != nil {
			return nil, err
		}
		out := make([]Suggestion, 0, len(histories))
		for _, h := range histories {
			out = append(out, Suggestion{ProductID: h.ProductID, ReorderPoint: PredictReorderPoint(h)})
		}
		return out, nil
	})
}
