package handler

import (
	"net/http"

	"complaintengine/models"
	"complaintengine/service"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ComplaintHandler handles complaint intake and the status ledger
type ComplaintHandler struct {
	complaints *service.ComplaintService
	ledger     *service.LedgerService
	logger     *zap.Logger
}

// NewComplaintHandler creates a new complaint handler
func NewComplaintHandler(complaints *service.ComplaintService, ledger *service.LedgerService, logger *zap.Logger) *ComplaintHandler {
	return &ComplaintHandler{
		complaints: complaints,
		ledger:     ledger,
		logger:     namedLogger(logger, "complaint-handler"),
	}
}

// CreateComplaint handles POST /api/v1/complaints
func (h *ComplaintHandler) CreateComplaint(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req models.CreateComplaintRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	response, err := h.complaints.CreateComplaint(r.Context(), userID, &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, response)
}

// GetComplaintByID handles GET /api/v1/complaints/{id}
func (h *ComplaintHandler) GetComplaintByID(w http.ResponseWriter, r *http.Request) {
	complaint, err := h.complaints.GetComplaint(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, complaint)
}

// GetStatusTimeline handles GET /api/v1/complaints/{id}/timeline
func (h *ComplaintHandler) GetStatusTimeline(w http.ResponseWriter, r *http.Request) {
	complaintID := mux.Vars(r)["id"]
	timeline, err := h.ledger.Timeline(r.Context(), complaintID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"complaint_id": complaintID,
		"timeline":     timeline,
	})
}

// UpdateComplaintStatus handles POST /api/v1/complaints/{id}/status
func (h *ComplaintHandler) UpdateComplaintStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, ok := service.ParseComplaintStatus(req.Status)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Validation error", "Invalid status")
		return
	}

	complaint, err := h.ledger.Transition(r.Context(), mux.Vars(r)["id"], status, actorFromRequest(r), req.Notes)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, complaint)
}

// ReopenComplaint handles POST /api/v1/complaints/{id}/reopen
func (h *ComplaintHandler) ReopenComplaint(w http.ResponseWriter, r *http.Request) {
	var req models.ReopenRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	complaint, err := h.ledger.Reopen(r.Context(), mux.Vars(r)["id"], actorFromRequest(r), req.Notes)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, complaint)
}
