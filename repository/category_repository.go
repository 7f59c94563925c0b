package repository

import (
	"context"
	"database/sql"
	"fmt"

	"complaintengine/models"
)

// CategoryRepository handles database operations for category → department routing
type CategoryRepository struct {
	db DBTX
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db DBTX) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// CreateDepartment inserts a department. isDefault marks the fallback department
// used for unmapped categories.
func (r *CategoryRepository) CreateDepartment(ctx context.Context, departmentID, name string, isDefault bool) error {
	query := `INSERT INTO departments (department_id, name, is_default) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, departmentID, name, isDefault); err != nil {
		return fmt.Errorf("failed to create department: %w", err)
	}
	return nil
}

// CreateCategory inserts a category mapped to a department
func (r *CategoryRepository) CreateCategory(ctx context.Context, c *models.Category) error {
	query := `INSERT INTO categories (category_id, name, department_id) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, c.CategoryID, c.Name, c.DepartmentID); err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// GetDepartmentForCategory returns the department owning a category.
// Unmapped categories go to the default department; with no default either,
// a NotFoundError is returned.
func (r *CategoryRepository) GetDepartmentForCategory(ctx context.Context, categoryID string) (string, error) {
	var departmentID string
	err := r.db.QueryRowContext(ctx,
		`SELECT department_id FROM categories WHERE category_id = ?`, categoryID,
	).Scan(&departmentID)
	if err == nil {
		return departmentID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to get category department: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT department_id FROM departments WHERE is_default = ? ORDER BY department_id LIMIT 1`, true,
	).Scan(&departmentID)
	if err == sql.ErrNoRows {
		return "", models.NewNotFoundError("department for category", categoryID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get default department: %w", err)
	}
	return departmentID, nil
}

// ListCategories returns every mapped category
func (r *CategoryRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category_id, name, department_id FROM categories ORDER BY category_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.CategoryID, &c.Name, &c.DepartmentID); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
