package repository

import (
	"context"
	"fmt"
	"time"

	"complaintengine/models"

	"github.com/google/uuid"
)

// UserRepository handles database operations for users and their push tokens
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new user repository
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `user_id, name, email, phone, role, department_id, is_active, created_at`

// CreateUser creates a new user
func (r *UserRepository) CreateUser(ctx context.Context, u *models.User) error {
	if u.UserID == "" {
		u.UserID = uuid.New().String()
	}
	u.CreatedAt = dbTime(u.CreatedAt)
	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		u.UserID, u.Name, u.Email, u.Phone, u.Role, u.DepartmentID, u.IsActive, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	users, err := r.list(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, models.NewNotFoundError("user", userID)
	}
	return &users[0], nil
}

// GetActiveUsersByIDs returns the active users among ids. Unknown ids are skipped.
func (r *UserRepository) GetActiveUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := []interface{}{true}
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE is_active = ? AND user_id IN (` + placeholders(len(ids)) + `) ORDER BY user_id`
	return r.list(ctx, query, args...)
}

// GetActiveUsersByRole returns active users with role, optionally restricted to a department
func (r *UserRepository) GetActiveUsersByRole(ctx context.Context, role models.UserRole, departmentID string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_active = ? AND role = ?`
	args := []interface{}{true, role}
	if departmentID != "" {
		query += ` AND department_id = ?`
		args = append(args, departmentID)
	}
	query += ` ORDER BY user_id`
	return r.list(ctx, query, args...)
}

func (r *UserRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.UserID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.DepartmentID, &u.IsActive, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SavePushToken registers a device token for a user. A token moves to the
// latest user that registers it.
func (r *UserRepository) SavePushToken(ctx context.Context, token *models.PushToken, now time.Time) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM push_tokens WHERE token = ?`, token.Token); err != nil {
		return fmt.Errorf("failed to replace push token: %w", err)
	}
	token.CreatedAt = dbTime(now)
	query := `INSERT INTO push_tokens (token, user_id, platform, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, token.Token, token.UserID, token.Platform, token.CreatedAt); err != nil {
		return fmt.Errorf("failed to save push token: %w", err)
	}
	return nil
}

// DeletePushToken removes a token the provider reported as invalid
func (r *UserRepository) DeletePushToken(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM push_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete push token: %w", err)
	}
	return nil
}

// GetPushTokens returns the tokens of every user in userIDs, keyed by user.
func (r *UserRepository) GetPushTokens(ctx context.Context, userIDs []string) (map[string][]string, error) {
	tokens := make(map[string][]string)
	if len(userIDs) == 0 {
		return tokens, nil
	}
	args := make([]interface{}, 0, len(userIDs))
	for _, id := range userIDs {
		args = append(args, id)
	}
	query := `SELECT user_id, token FROM push_tokens WHERE user_id IN (` + placeholders(len(userIDs)) + `) ORDER BY user_id, created_at, token`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query push tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, token string
		if err := rows.Scan(&userID, &token); err != nil {
			return nil, fmt.Errorf("failed to scan push token: %w", err)
		}
		tokens[userID] = append(tokens[userID], token)
	}
	return tokens, rows.Err()
}
