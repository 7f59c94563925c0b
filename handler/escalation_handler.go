package handler

import (
	"net/http"

	"complaintengine/service"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// EscalationHandler handles HTTP requests for escalation operations
type EscalationHandler struct {
	escalations *service.EscalationService
	logger      *zap.Logger
}

// NewEscalationHandler creates a new escalation handler
func NewEscalationHandler(escalations *service.EscalationService, logger *zap.Logger) *EscalationHandler {
	return &EscalationHandler{escalations: escalations, logger: namedLogger(logger, "escalation-handler")}
}

// ProcessEscalations handles POST /api/v1/escalations/process
// Runs one sweep outside the worker schedule
func (h *EscalationHandler) ProcessEscalations(w http.ResponseWriter, r *http.Request) {
	result, err := h.escalations.Sweep(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// CheckComplaint handles POST /api/v1/complaints/{id}/escalation-check
func (h *EscalationHandler) CheckComplaint(w http.ResponseWriter, r *http.Request) {
	result, err := h.escalations.EvaluateComplaint(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// GetEscalations handles GET /api/v1/complaints/{id}/escalations
func (h *EscalationHandler) GetEscalations(w http.ResponseWriter, r *http.Request) {
	complaintID := mux.Vars(r)["id"]
	records, err := h.escalations.GetEscalations(r.Context(), complaintID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"complaint_id": complaintID,
		"escalations":  records,
	})
}
