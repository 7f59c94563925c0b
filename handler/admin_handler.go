package handler

import (
	"net/http"

	"complaintengine/models"
	"complaintengine/service"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AdminHandler provides operator-only directory endpoints (users, employees,
// departments, categories) and the effective SLA rules.
type AdminHandler struct {
	directory *service.DirectoryService
	resolver  *service.SLAPolicyResolver
	logger    *zap.Logger
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(directory *service.DirectoryService, resolver *service.SLAPolicyResolver, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{directory: directory, resolver: resolver, logger: namedLogger(logger, "admin-handler")}
}

// CreateUser handles POST /api/v1/admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.directory.CreateUser(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, user)
}

// GetUser handles GET /api/v1/admin/users/{id}
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.directory.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

// CreateEmployee handles POST /api/v1/admin/employees
func (h *AdminHandler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEmployeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	employee, err := h.directory.CreateEmployee(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, employee)
}

// GetEmployee handles GET /api/v1/admin/employees/{id}
func (h *AdminHandler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	employee, err := h.directory.GetEmployee(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, employee)
}

// CreateDepartment handles POST /api/v1/admin/departments
func (h *AdminHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDepartmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.directory.CreateDepartment(r.Context(), &req); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, req)
}

// CreateCategory handles POST /api/v1/admin/categories
func (h *AdminHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var category models.Category
	if !decodeJSON(w, r, &category) {
		return
	}
	if err := h.directory.CreateCategory(r.Context(), &category); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, category)
}

// ListCategories handles GET /api/v1/categories
func (h *AdminHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.directory.ListCategories(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

// GetSLARules handles GET /api/v1/admin/sla-rules
func (h *AdminHandler) GetSLARules(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"rules": h.resolver.Rules()})
}
