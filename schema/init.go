// Package schema creates missing tables at startup. It never drops or rewrites existing ones.
package schema

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Dialect names accepted by InitializeDatabase.
const (
	DialectMySQL  = "mysql"
	DialectSQLite = "sqlite3"
)

type table struct {
	name    string
	create  string
	indexes []string
}

// Tables in creation order. DDL is kept to the subset MySQL and SQLite share.
var tables = []table{
	{
		name: "departments",
		create: `CREATE TABLE IF NOT EXISTS departments (
    department_id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    is_default BOOLEAN NOT NULL DEFAULT FALSE
)`,
	},
	{
		name: "categories",
		create: `CREATE TABLE IF NOT EXISTS categories (
    category_id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    department_id VARCHAR(64) NOT NULL
)`,
	},
	{
		name: "users",
		create: `CREATE TABLE IF NOT EXISTS users (
    user_id VARCHAR(36) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    email VARCHAR(255) NULL,
    phone VARCHAR(32) NULL,
    role VARCHAR(32) NOT NULL,
    department_id VARCHAR(64) NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at DATETIME NOT NULL
)`,
		indexes: []string{
			`CREATE INDEX idx_users_role_department ON users (role, department_id)`,
		},
	},
	{
		name: "employees",
		create: `CREATE TABLE IF NOT EXISTS employees (
    employee_id VARCHAR(36) PRIMARY KEY,
    user_id VARCHAR(36) NOT NULL,
    department_id VARCHAR(64) NOT NULL,
    zone_id VARCHAR(64) NULL,
    status VARCHAR(32) NOT NULL,
    current_workload INT NOT NULL DEFAULT 0,
    rating_average DOUBLE NOT NULL DEFAULT 0,
    joined_date DATETIME NOT NULL,
    version BIGINT NOT NULL DEFAULT 0
)`,
		indexes: []string{
			`CREATE INDEX idx_employees_pool ON employees (department_id, status, zone_id)`,
		},
	},
	{
		name: "complaints",
		create: `CREATE TABLE IF NOT EXISTS complaints (
    complaint_id VARCHAR(36) PRIMARY KEY,
    complaint_number VARCHAR(64) NOT NULL UNIQUE,
    citizen_id VARCHAR(36) NOT NULL,
    title VARCHAR(500) NOT NULL,
    description TEXT NOT NULL,
    category_id VARCHAR(64) NOT NULL,
    department_id VARCHAR(64) NOT NULL,
    zone_id VARCHAR(64) NULL,
    priority VARCHAR(16) NOT NULL,
    status VARCHAR(32) NOT NULL,
    submitted_at DATETIME NOT NULL,
    sla_deadline DATETIME NOT NULL,
    escalation_level INT NOT NULL DEFAULT 0,
    escalation_cycle INT NOT NULL DEFAULT 0,
    assigned_employee_id VARCHAR(36) NULL,
    version BIGINT NOT NULL DEFAULT 0,
    resolved_at DATETIME NULL,
    closed_at DATETIME NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`,
		indexes: []string{
			`CREATE INDEX idx_complaints_status_deadline ON complaints (status, sla_deadline)`,
			`CREATE INDEX idx_complaints_submitted ON complaints (submitted_at)`,
		},
	},
	{
		name: "complaint_status_history",
		create: `CREATE TABLE IF NOT EXISTS complaint_status_history (
    history_id VARCHAR(36) PRIMARY KEY,
    complaint_id VARCHAR(36) NOT NULL,
    old_status VARCHAR(32) NULL,
    new_status VARCHAR(32) NOT NULL,
    changed_by VARCHAR(64) NOT NULL,
    changed_by_type VARCHAR(32) NOT NULL,
    notes TEXT NULL,
    complaint_version BIGINT NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE (complaint_id, complaint_version)
)`,
		indexes: []string{
			`CREATE INDEX idx_history_complaint ON complaint_status_history (complaint_id, created_at)`,
		},
	},
	{
		name: "assignments",
		create: `CREATE TABLE IF NOT EXISTS assignments (
    assignment_id VARCHAR(36) PRIMARY KEY,
    complaint_id VARCHAR(36) NOT NULL,
    employee_id VARCHAR(36) NOT NULL,
    status VARCHAR(32) NOT NULL,
    assigned_by VARCHAR(64) NOT NULL,
    mode VARCHAR(16) NOT NULL,
    notes TEXT NULL,
    superseded_by VARCHAR(36) NULL,
    assigned_at DATETIME NOT NULL,
    accepted_at DATETIME NULL,
    rejected_at DATETIME NULL,
    started_at DATETIME NULL,
    completed_at DATETIME NULL,
    verified_at DATETIME NULL,
    superseded_at DATETIME NULL
)`,
		indexes: []string{
			`CREATE INDEX idx_assignments_complaint ON assignments (complaint_id, status)`,
			`CREATE INDEX idx_assignments_employee ON assignments (employee_id, status)`,
		},
	},
	{
		name: "escalation_records",
		create: `CREATE TABLE IF NOT EXISTS escalation_records (
    escalation_id VARCHAR(36) PRIMARY KEY,
    complaint_id VARCHAR(36) NOT NULL,
    escalation_cycle INT NOT NULL,
    level INT NOT NULL,
    from_level INT NOT NULL,
    reason VARCHAR(32) NOT NULL,
    overdue_hours DOUBLE NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE (complaint_id, escalation_cycle, level)
)`,
	},
	{
		name: "notifications",
		create: `CREATE TABLE IF NOT EXISTS notifications (
    notification_id VARCHAR(36) PRIMARY KEY,
    recipient_user_id VARCHAR(36) NOT NULL,
    type VARCHAR(32) NOT NULL,
    channel VARCHAR(16) NOT NULL,
    title VARCHAR(500) NOT NULL,
    body TEXT NOT NULL,
    payload TEXT NULL,
    reference_id VARCHAR(64) NULL,
    reference_type VARCHAR(64) NULL,
    status VARCHAR(16) NOT NULL,
    attempts INT NOT NULL DEFAULT 0,
    max_attempts INT NOT NULL DEFAULT 3,
    next_attempt_at DATETIME NULL,
    last_error TEXT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`,
		indexes: []string{
			`CREATE INDEX idx_notifications_due ON notifications (status, next_attempt_at)`,
			`CREATE INDEX idx_notifications_recipient ON notifications (recipient_user_id, created_at)`,
		},
	},
	{
		name: "notification_logs",
		create: `CREATE TABLE IF NOT EXISTS notification_logs (
    log_id VARCHAR(36) PRIMARY KEY,
    notification_id VARCHAR(36) NOT NULL,
    attempt_number INT NOT NULL,
    status VARCHAR(16) NOT NULL,
    error_message TEXT NULL,
    created_at DATETIME NOT NULL
)`,
		indexes: []string{
			`CREATE INDEX idx_notification_logs_notification ON notification_logs (notification_id)`,
		},
	},
	{
		name: "notification_preferences",
		create: `CREATE TABLE IF NOT EXISTS notification_preferences (
    user_id VARCHAR(36) PRIMARY KEY,
    channels TEXT NOT NULL,
    quiet_start VARCHAR(5) NULL,
    quiet_end VARCHAR(5) NULL,
    timezone VARCHAR(64) NULL,
    critical_bypass BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at DATETIME NOT NULL
)`,
	},
	{
		name: "push_tokens",
		create: `CREATE TABLE IF NOT EXISTS push_tokens (
    token VARCHAR(255) PRIMARY KEY,
    user_id VARCHAR(36) NOT NULL,
    platform VARCHAR(32) NOT NULL,
    created_at DATETIME NOT NULL
)`,
		indexes: []string{
			`CREATE INDEX idx_push_tokens_user ON push_tokens (user_id)`,
		},
	},
}

// InitializeDatabase ensures every table exists. Only missing tables are
// created (with their indexes); existing tables and data are left untouched.
func InitializeDatabase(ctx context.Context, db *sql.DB, dialect string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("schema")

	for _, t := range tables {
		exists, err := tableExists(ctx, db, dialect, t.name)
		if err != nil {
			return fmt.Errorf("failed to check if table %s exists: %w", t.name, err)
		}
		if exists {
			logger.Debug("table exists", zap.String("table", t.name))
			continue
		}
		if _, err := db.ExecContext(ctx, t.create); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
		for _, idx := range t.indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return fmt.Errorf("failed to create index on %s: %w", t.name, err)
			}
		}
		logger.Info("created table", zap.String("table", t.name))
	}
	return nil
}

// TableNames lists the managed tables in creation order.
func TableNames() []string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.name)
	}
	return names
}

func tableExists(ctx context.Context, db *sql.DB, dialect, name string) (bool, error) {
	var query string
	switch dialect {
	case DialectSQLite:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	default:
		query = `SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`
	}
	var count int
	if err := db.QueryRowContext(ctx, query, name).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
