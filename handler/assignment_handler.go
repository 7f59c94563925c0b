package handler

import (
	"net/http"

	"complaintengine/models"
	"complaintengine/service"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AssignmentHandler handles assignment, transfer and assignment lifecycle requests
type AssignmentHandler struct {
	assignments *service.AssignmentService
	logger      *zap.Logger
}

// NewAssignmentHandler creates a new assignment handler
func NewAssignmentHandler(assignments *service.AssignmentService, logger *zap.Logger) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments, logger: namedLogger(logger, "assignment-handler")}
}

// AssignComplaint handles POST /api/v1/assign-complaint.
// Without employeeId the best eligible employee is picked.
func (h *AssignmentHandler) AssignComplaint(w http.ResponseWriter, r *http.Request) {
	var req models.AssignComplaintRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ComplaintID == "" {
		respondWithError(w, http.StatusBadRequest, "Validation error", "complaintId is required")
		return
	}
	if req.AssignedBy == "" {
		req.AssignedBy = actorFromRequest(r).ID
	}

	var mode service.AssignmentMode = service.AutoAssignment{}
	if req.EmployeeID != "" {
		mode = service.ManualAssignment{EmployeeID: req.EmployeeID}
	}

	assignment, err := h.assignments.Assign(r.Context(), req.ComplaintID, service.AssignRequest{
		Mode:       mode,
		AssignedBy: req.AssignedBy,
		Notes:      req.Notes,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.AssignComplaintResponse{
		Assignment: assignment,
		Status:     assignment.Status,
	})
}

// GetAssignments handles GET /api/v1/complaints/{id}/assignments
func (h *AssignmentHandler) GetAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.assignments.GetAssignments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"assignments": assignments})
}

// TransferAssignment handles POST /api/v1/assignments/{id}/transfer
func (h *AssignmentHandler) TransferAssignment(w http.ResponseWriter, r *http.Request) {
	var req models.TransferAssignmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EmployeeID == "" {
		respondWithError(w, http.StatusBadRequest, "Validation error", "employeeId is required")
		return
	}

	assignment, err := h.assignments.Transfer(r.Context(), mux.Vars(r)["id"], req.EmployeeID, actorFromRequest(r).ID, req.Notes)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.AssignComplaintResponse{Assignment: assignment, Status: assignment.Status})
}

// UpdateAssignmentStatus handles POST /api/v1/assignments/{id}/status
func (h *AssignmentHandler) UpdateAssignmentStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateAssignmentStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	assignment, err := h.assignments.UpdateAssignmentStatus(
		r.Context(),
		mux.Vars(r)["id"],
		models.AssignmentStatus(req.Status),
		actorFromRequest(r),
		req.Notes,
	)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.AssignComplaintResponse{Assignment: assignment, Status: assignment.Status})
}
