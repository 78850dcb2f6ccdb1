// Package audit records who changed what inside the same transaction as the
// change itself.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wotrack/internal/models"
)

// Action constants.
const (
	ActionCreate    = "CREATE"
	ActionUpdate    = "UPDATE"
	ActionReconcile = "RECONCILE"
	ActionImport    = "IMPORT"
	ActionExport    = "EXPORT"
)

// Module names.
const (
	ModuleComponent  = "component"
	ModuleProcess    = "process"
	ModuleWorkOrder  = "work_order"
	ModuleInstance   = "instance"
	ModuleAllocation = "material_allocation"
	ModuleStatus     = "process_status"
	ModuleUsage      = "material_usage"
	ModuleStage      = "stage"
)

// SystemOperator is recorded when no operator is attached to the context.
const SystemOperator = "system"

type operatorKey struct{}

// WithOperator attaches the acting operator's name to ctx.
func WithOperator(ctx context.Context, name string) context.Context {
	name = strings.TrimSpace(name)
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, operatorKey{}, name)
}

// Operator returns the operator attached to ctx, or SystemOperator.
func Operator(ctx context.Context) string {
	if name, ok := ctx.Value(operatorKey{}).(string); ok && name != "" {
		return name
	}
	return SystemOperator
}

// Execer is satisfied by *sql.Tx and *sql.DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Queryer is satisfied by *sql.Tx and *sql.DB.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Entry describes one audited change. Before and After are stored as JSON.
type Entry struct {
	Action   string
	Module   string
	RecordID string
	Summary  string
	Before   any
	After    any
}

// Record writes an audit row using the operator from ctx.
func Record(ctx context.Context, db Execer, e Entry) error {
	before, err := encode(e.Before)
	if err != nil {
		return fmt.Errorf("audit: encode before value: %w", err)
	}
	after, err := encode(e.After)
	if err != nil {
		return fmt.Errorf("audit: encode after value: %w", err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO audit_log
		(username, action, module, record_id, summary, before_value, after_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		Operator(ctx), e.Action, e.Module, e.RecordID, e.Summary, before, after,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("audit: insert %s %s: %w", e.Module, e.RecordID, err)
	}
	return nil
}

func encode(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// Filter narrows List. Zero values match everything; Limit defaults to 100.
type Filter struct {
	Module   string
	RecordID string
	Action   string
	Limit    int
}

// List returns audit entries newest first.
func List(ctx context.Context, db Queryer, f Filter) ([]models.AuditEntry, error) {
	query := `SELECT id, username, action, module, record_id, summary,
		COALESCE(before_value, ''), COALESCE(after_value, ''), created_at FROM audit_log WHERE 1=1`
	var args []any
	if f.Module != "" {
		query += " AND module = ?"
		args = append(args, f.Module)
	}
	if f.RecordID != "" {
		query += " AND record_id = ?"
		args = append(args, f.RecordID)
	}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Module, &e.RecordID, &e.Summary,
			&e.BeforeValue, &e.AfterValue, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Cleanup deletes entries older than retentionDays.
func Cleanup(ctx context.Context, db Execer, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339Nano)
	res, err := db.ExecContext(ctx, "DELETE FROM audit_log WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	return res.RowsAffected()
}
