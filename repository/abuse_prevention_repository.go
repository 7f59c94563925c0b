package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AbusePreventionRepository answers the intake checks run before a citizen's
// complaint is stored. Rejected complaints never count.
type AbusePreventionRepository struct {
	db DBTX
}

// NewAbusePreventionRepository creates a new abuse prevention repository
func NewAbusePreventionRepository(db DBTX) *AbusePreventionRepository {
	return &AbusePreventionRepository{db: db}
}

// CountComplaintsByCitizenSince counts complaints citizenID submitted at or after since
func (r *AbusePreventionRepository) CountComplaintsByCitizenSince(ctx context.Context, citizenID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM complaints
		WHERE citizen_id = ?
		  AND submitted_at >= ?
		  AND status != 'rejected'
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, citizenID, dbTime(since)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count complaints: %w", err)
	}
	return count, nil
}

// FindRecentDuplicate returns the number of a complaint with the same citizen,
// category and title (case-insensitive) submitted at or after since.
func (r *AbusePreventionRepository) FindRecentDuplicate(ctx context.Context, citizenID, categoryID, title string, since time.Time) (string, bool, error) {
	query := `
		SELECT complaint_number
		FROM complaints
		WHERE citizen_id = ?
		  AND category_id = ?
		  AND LOWER(title) = ?
		  AND submitted_at >= ?
		  AND status != 'rejected'
		ORDER BY submitted_at DESC
		LIMIT 1
	`

	var number string
	err := r.db.QueryRowContext(ctx, query, citizenID, categoryID, strings.ToLower(strings.TrimSpace(title)), dbTime(since)).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return number, true, nil
}
