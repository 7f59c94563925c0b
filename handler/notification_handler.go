package handler

import (
	"net/http"

	"complaintengine/models"
	"complaintengine/service"

	"go.uber.org/zap"
)

// NotificationHandler handles notification dispatch, preferences and push tokens
type NotificationHandler struct {
	notifications *service.NotificationService
	logger        *zap.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: namedLogger(logger, "notification-handler")}
}

// targetFromRequest picks the single recipient selector set in req
func targetFromRequest(req *models.SendNotificationRequest) (service.Target, bool) {
	set := 0
	var target service.Target
	if req.UserID != "" {
		set++
		target = service.UserTarget{UserID: req.UserID}
	}
	if len(req.UserIDs) > 0 {
		set++
		target = service.UsersTarget{UserIDs: req.UserIDs}
	}
	if req.Role != "" {
		set++
		target = service.RoleTarget{Role: models.UserRole(req.Role), DepartmentID: req.DepartmentID}
	}
	return target, set == 1
}

// SendNotification handles POST /api/v1/send-notification
func (h *NotificationHandler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req models.SendNotificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	target, ok := targetFromRequest(&req)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Validation error", "exactly one of userId, userIds or role is required")
		return
	}
	notificationType, ok := models.ParseNotificationType(req.Type)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Validation error", "Invalid notification type")
		return
	}

	stats, err := h.notifications.Dispatch(r.Context(), service.DispatchRequest{
		Target:        target,
		Title:         req.Title,
		Body:          req.Body,
		Data:          req.Data,
		Type:          notificationType,
		ReferenceID:   req.ReferenceID,
		ReferenceType: req.ReferenceType,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// ListMyNotifications handles GET /api/v1/users/me/notifications
func (h *NotificationHandler) ListMyNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	notifications, err := h.notifications.ListNotifications(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"notifications": notifications})
}

// GetPreferences handles GET /api/v1/users/me/notification-preferences
func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	pref, err := h.notifications.GetPreferences(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, pref)
}

// UpdatePreferences handles PUT /api/v1/users/me/notification-preferences
func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req models.UpdatePreferencesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pref, err := h.notifications.UpdatePreferences(r.Context(), userID, &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, pref)
}

// RegisterPushToken handles POST /api/v1/users/me/push-tokens
func (h *NotificationHandler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req models.RegisterPushTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, err := h.notifications.RegisterPushToken(r.Context(), userID, &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, token)
}
