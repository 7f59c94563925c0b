package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"complaintengine/models"
	"complaintengine/repository"

	"go.uber.org/zap"
)

// DirectoryService manages users, employees, departments and categories
type DirectoryService struct {
	users      *repository.UserRepository
	employees  *repository.EmployeeRepository
	categories *repository.CategoryRepository
	logger     *zap.Logger
	now        func() time.Time
}

// NewDirectoryService creates a new directory service
func NewDirectoryService(
	users *repository.UserRepository,
	employees *repository.EmployeeRepository,
	categories *repository.CategoryRepository,
	logger *zap.Logger,
) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{
		users:      users,
		employees:  employees,
		categories: categories,
		logger:     logger.Named("directory"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}

func parseRole(value string) (models.UserRole, bool) {
	switch models.UserRole(value) {
	case models.RoleCitizen, models.RoleEmployee, models.RoleSupervisor, models.RoleDepartmentHead, models.RoleAdmin:
		return models.UserRole(value), true
	}
	return "", false
}

// CreateUser adds an active user
func (s *DirectoryService) CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.User, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, models.NewValidationError("name", "name is required")
	}
	role, ok := parseRole(req.Role)
	if !ok {
		return nil, models.NewValidationError("role", "unknown role")
	}
	u := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        nullString(req.Email),
		Phone:        nullString(req.Phone),
		Role:         role,
		DepartmentID: nullString(req.DepartmentID),
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.String("user_id", u.UserID), zap.String("role", string(role)))
	return u, nil
}

// GetUser returns a user by id
func (s *DirectoryService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// CreateEmployee adds an active employee with no workload for an existing user
func (s *DirectoryService) CreateEmployee(ctx context.Context, req *models.CreateEmployeeRequest) (*models.Employee, error) {
	if req.UserID == "" {
		return nil, models.NewValidationError("user_id", "user_id is required")
	}
	if req.DepartmentID == "" {
		return nil, models.NewValidationError("department_id", "department_id is required")
	}
	if req.RatingAverage < 0 || req.RatingAverage > 5 {
		return nil, models.NewValidationError("rating_average", "rating_average must be between 0 and 5")
	}
	if _, err := s.users.GetUserByID(ctx, req.UserID); err != nil {
		return nil, err
	}
	e := &models.Employee{
		UserID:        req.UserID,
		DepartmentID:  req.DepartmentID,
		ZoneID:        nullString(req.ZoneID),
		Status:        models.EmployeeActive,
		RatingAverage: req.RatingAverage,
		JoinedDate:    s.now(),
	}
	if err := s.employees.CreateEmployee(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("employee created",
		zap.String("employee_id", e.EmployeeID),
		zap.String("department_id", e.DepartmentID))
	return e, nil
}

// GetEmployee returns an employee by id
func (s *DirectoryService) GetEmployee(ctx context.Context, employeeID string) (*models.Employee, error) {
	return s.employees.GetEmployeeByID(ctx, employeeID)
}

// CreateDepartment adds a department
func (s *DirectoryService) CreateDepartment(ctx context.Context, req *models.CreateDepartmentRequest) error {
	if req.DepartmentID == "" || strings.TrimSpace(req.Name) == "" {
		return models.NewValidationError("department", "department_id and name are required")
	}
	return s.categories.CreateDepartment(ctx, req.DepartmentID, strings.TrimSpace(req.Name), req.IsDefault)
}

// CreateCategory maps a category to a department
func (s *DirectoryService) CreateCategory(ctx context.Context, c *models.Category) error {
	if c.CategoryID == "" || c.DepartmentID == "" {
		return models.NewValidationError("category", "category_id and department_id are required")
	}
	if c.Name == "" {
		c.Name = c.CategoryID
	}
	return s.categories.CreateCategory(ctx, c)
}

// ListCategories returns every mapped category
func (s *DirectoryService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.categories.ListCategories(ctx)
}
