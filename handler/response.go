package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"complaintengine/middleware"
	"complaintengine/models"
	"complaintengine/service"

	"go.uber.org/zap"
)

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondWithError sends an error response
func respondWithError(w http.ResponseWriter, statusCode int, errorType, message string) {
	respondWithJSON(w, statusCode, models.ErrorResponse{
		Error:   errorType,
		Message: message,
		Code:    statusCode,
	})
}

// respondWithServiceError maps domain errors to HTTP statuses. Unknown errors
// are logged and reported as 500 without their text.
func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var conflict *models.ConflictError
	switch {
	case models.IsValidation(err):
		respondWithError(w, http.StatusBadRequest, "Validation error", err.Error())
	case models.IsNotFound(err):
		respondWithError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.As(err, &conflict):
		respondWithError(w, http.StatusConflict, conflict.Code, conflict.Message)
	default:
		logger.Error("request failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal error", "internal server error")
	}
}

// decodeJSON parses the request body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "Failed to parse request body")
		return false
	}
	return true
}

// actorFromRequest builds the ledger actor from the authenticated caller
func actorFromRequest(r *http.Request) service.Actor {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return service.SystemActor
	}
	return service.Actor{ID: userID, Type: middleware.ActorTypeFromContext(r.Context())}
}

// requireUserID extracts user_id set by the auth middleware
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized", "User ID not found in context")
	}
	return userID, ok
}

func namedLogger(logger *zap.Logger, name string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.Named(name)
}
