package production

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"wotrack/internal/audit"
	"wotrack/internal/events"
	"wotrack/internal/models"
	"wotrack/internal/validation"
)

// UpdateStage records the date of one checklist stage of a work order.
func (e *Engine) UpdateStage(ctx context.Context, workOrderID int64, stage models.StageName, date string) (*models.WorkOrderStage, error) {
	const op = "update stage"
	date = strings.TrimSpace(date)
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "stage_name", string(stage))
	validation.ValidateEnum(ve, "stage_name", string(stage), validation.ValidStageNames)
	validation.RequireField(ve, "stage_date", date)
	validation.ValidateDate(ve, "stage_date", date)
	if err := ve.Err(); err != nil {
		return nil, invalid(op, err)
	}

	st := models.WorkOrderStage{WorkOrderID: workOrderID, StageName: stage, StageDate: date}
	err := e.write(ctx, op, func(tx *sql.Tx) error {
		if err := requireWorkOrder(ctx, tx, op, workOrderID); err != nil {
			return err
		}
		var previous sql.NullString
		if err := tx.QueryRowContext(ctx, "SELECT stage_date FROM wo_stages WHERE work_order_id = ? AND stage_name = ?",
			workOrderID, stage).Scan(&previous); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load stage: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO wo_stages (work_order_id, stage_name, stage_date, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (work_order_id, stage_name) DO UPDATE SET stage_date = excluded.stage_date, updated_at = excluded.updated_at`,
			workOrderID, stage, date, e.timestamp()); err != nil {
			return fmt.Errorf("upsert stage: %w", err)
		}
		var before any
		if previous.Valid {
			before = previous.String
		}
		return audit.Record(ctx, tx, audit.Entry{
			Action:   audit.ActionUpdate,
			Module:   audit.ModuleStage,
			RecordID: fmt.Sprintf("%d/%s", workOrderID, stage),
			Summary:  fmt.Sprintf("%s on %s", stage, date),
			Before:   before,
			After:    date,
		})
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.New(events.StageUpdated, workOrderID, fmt.Sprintf("%d/%s", workOrderID, stage), st))
	return &st, nil
}

// ListStages returns the recorded stages of a work order in business order
// (Assembly, Testing, PDI, Packing, Dispatch).
func (e *Engine) ListStages(ctx context.Context, workOrderID int64) ([]models.WorkOrderStage, error) {
	const op = "list stages"
	db := e.store.DB()
	if err := requireWorkOrder(ctx, db, op, workOrderID); err != nil {
		return nil, classify(op, err)
	}
	rows, err := db.QueryContext(ctx,
		"SELECT work_order_id, stage_name, stage_date FROM wo_stages WHERE work_order_id = ?", workOrderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := []models.WorkOrderStage{}
	for rows.Next() {
		var s models.WorkOrderStage
		if err := rows.Scan(&s.WorkOrderID, &s.StageName, &s.StageDate); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageName.Rank() < out[j].StageName.Rank() })
	return out, nil
}

// RecordBoardExport audits that the board of a work order left the system
// as a spreadsheet.
func (e *Engine) RecordBoardExport(ctx context.Context, workOrderID int64, rows int) error {
	const op = "record board export"
	return e.write(ctx, op, func(tx *sql.Tx) error {
		if err := requireWorkOrder(ctx, tx, op, workOrderID); err != nil {
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			Action:   audit.ActionExport,
			Module:   audit.ModuleWorkOrder,
			RecordID: fmt.Sprintf("%d", workOrderID),
			Summary:  fmt.Sprintf("exported board with %d process rows", rows),
		})
	})
}
