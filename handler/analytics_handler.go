package handler

import (
	"net/http"

	"complaintengine/models"
	"complaintengine/service"

	"go.uber.org/zap"
)

// AnalyticsHandler serves reporting aggregates
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	logger    *zap.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analytics *service.AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, logger: namedLogger(logger, "analytics-handler")}
}

// GenerateAnalytics handles POST /api/v1/generate-analytics
func (h *AnalyticsHandler) GenerateAnalytics(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateAnalyticsRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	report, err := h.analytics.Generate(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}
