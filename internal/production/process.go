package production

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"wotrack/internal/audit"
	"wotrack/internal/events"
	"wotrack/internal/logging"
	"wotrack/internal/models"
	"wotrack/internal/validation"
)

// ProcessUpdate carries the fields of an UpdateProcessStatus call. Nil
// fields keep their stored value. An empty CompletionDate or
// ResponsiblePerson clears the field.
type ProcessUpdate struct {
	CompletedQuantity *int    `json:"completed_quantity"`
	InUseQuantity     *int    `json:"in_use_quantity"`
	CompletionDate    *string `json:"completion_date"`
	ResponsiblePerson *string `json:"responsible_person"`
}

func (u ProcessUpdate) validate() error {
	ve := &validation.ValidationErrors{}
	if u.CompletedQuantity != nil {
		validation.ValidateNonNegativeInt(ve, "completed_quantity", *u.CompletedQuantity)
		validation.ValidateMaxQuantity(ve, "completed_quantity", *u.CompletedQuantity)
	}
	if u.InUseQuantity != nil {
		validation.ValidateNonNegativeInt(ve, "in_use_quantity", *u.InUseQuantity)
		validation.ValidateMaxQuantity(ve, "in_use_quantity", *u.InUseQuantity)
	}
	if u.CompletionDate != nil {
		validation.ValidateDate(ve, "completion_date", strings.TrimSpace(*u.CompletionDate))
	}
	if u.ResponsiblePerson != nil {
		validation.ValidateMaxLength(ve, "responsible_person", *u.ResponsiblePerson, validation.MaxNameLength)
	}
	return ve.Err()
}

// UpdateProcessStatus reports progress on one process of a Motor instance.
//
// The in-use total of all processes must stay within the instance's material
// pool, and so must the completed quantity of this process. The status is
// derived from the new quantities; a completion date defaults to today when
// the process becomes Completed without one and is cleared when it stops
// being Completed. The work order status is
// recomputed in the same transaction.
func (e *Engine) UpdateProcessStatus(ctx context.Context, instanceID, processID int64, u ProcessUpdate) (*models.ProcessStatus, error) {
	const op = "update process status"
	if err := u.validate(); err != nil {
		return nil, invalid(op, err)
	}

	var updated models.ProcessStatus
	var workOrderID int64
	var woBefore, woAfter models.State
	err := e.write(ctx, op, func(tx *sql.Tx) error {
		in, err := loadMotorInstance(ctx, tx, op, instanceID)
		if err != nil {
			return err
		}
		workOrderID = in.WorkOrderID
		pool, err := materialPool(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		rows, err := processRows(ctx, tx, instanceID)
		if err != nil {
			return err
		}

		var current *models.ProcessStatus
		others := 0
		for i := range rows {
			if rows[i].ProcessID == processID {
				current = &rows[i]
				continue
			}
			others += rows[i].InUseQuantity
		}
		if current == nil {
			return notFound(op, "process %d not found on instance %d", processID, instanceID)
		}

		next := *current
		if u.InUseQuantity != nil {
			next.InUseQuantity = *u.InUseQuantity
		}
		if u.CompletedQuantity != nil {
			next.CompletedQuantity = *u.CompletedQuantity
		}
		if total := others + next.InUseQuantity; total > pool {
			return capacity(op, &CapacityError{Scope: ScopeGlobal, ProcessID: processID,
				Attempted: total, Limit: pool, Available: max(pool-others, 0)})
		}
		if next.CompletedQuantity > pool {
			return capacity(op, &CapacityError{Scope: ScopeLocal, ProcessID: processID,
				Attempted: next.CompletedQuantity, Limit: pool, Available: pool})
		}

		next.Status = DeriveProcessState(next.CompletedQuantity, next.InUseQuantity, pool)
		next.AllowedQuantity = pool
		switch {
		case u.CompletionDate != nil:
			next.CompletionDate = optional(*u.CompletionDate)
		case next.Status == models.StateCompleted && current.Status != models.StateCompleted:
			today := e.today()
			next.CompletionDate = &today
		case next.Status != models.StateCompleted && current.Status == models.StateCompleted:
			next.CompletionDate = nil
		}
		if u.ResponsiblePerson != nil {
			next.ResponsiblePerson = optional(*u.ResponsiblePerson)
		}
		next.UpdatedAt = e.timestamp()

		if _, err := tx.ExecContext(ctx, `UPDATE process_statuses
			SET completed_quantity = ?, in_use_quantity = ?, allowed_quantity = ?, completion_date = ?,
				responsible_person = ?, status = ?, updated_at = ?
			WHERE instance_id = ? AND process_id = ?`,
			next.CompletedQuantity, next.InUseQuantity, next.AllowedQuantity, next.CompletionDate,
			next.ResponsiblePerson, next.Status, next.UpdatedAt, instanceID, processID); err != nil {
			return fmt.Errorf("update process %d: %w", processID, err)
		}

		if woBefore, woAfter, err = e.refreshWorkOrderStatus(ctx, tx, in.WorkOrderID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE process_statuses SET allowed_quantity = ? WHERE instance_id = ? AND allowed_quantity <> ?",
			pool, instanceID, pool); err != nil {
			return fmt.Errorf("refresh allowed quantity: %w", err)
		}
		if err := bumpVersion(ctx, tx, &in); err != nil {
			return err
		}

		updated = next
		return audit.Record(ctx, tx, audit.Entry{
			Action:   audit.ActionUpdate,
			Module:   audit.ModuleStatus,
			RecordID: fmt.Sprintf("%d/%d", instanceID, processID),
			Summary: fmt.Sprintf("in use %d -> %d, completed %d -> %d, %s -> %s",
				current.InUseQuantity, next.InUseQuantity, current.CompletedQuantity, next.CompletedQuantity,
				current.Status, next.Status),
			Before: current,
			After:  next,
		})
	})
	if err != nil {
		return nil, err
	}

	if woBefore != woAfter {
		e.logger.Info("work order status changed",
			logging.Int64(logging.FieldWorkOrderID, workOrderID),
			logging.String("from", string(woBefore)),
			logging.String("to", string(woAfter)))
	}
	e.publish(ctx, events.New(events.ProcessStatusUpdated, workOrderID,
		fmt.Sprintf("%d/%d", instanceID, processID), updated))
	return &updated, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// GetProcessStatus returns one process row of a Motor instance.
func (e *Engine) GetProcessStatus(ctx context.Context, instanceID, processID int64) (*models.ProcessStatus, error) {
	const op = "get process status"
	db := e.store.DB()
	if _, err := loadMotorInstance(ctx, db, op, instanceID); err != nil {
		return nil, classify(op, err)
	}
	ps, err := scanProcessStatus(db.QueryRowContext(ctx, `SELECT `+processStatusColumns+`
		FROM process_statuses ps WHERE ps.instance_id = ? AND ps.process_id = ?`, instanceID, processID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(op, "process %d not found on instance %d", processID, instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &ps, nil
}

// ListProcessStatuses returns the process rows of a Motor instance in
// template sequence order.
func (e *Engine) ListProcessStatuses(ctx context.Context, instanceID int64) ([]models.ProcessStatus, error) {
	const op = "list process statuses"
	db := e.store.DB()
	if _, err := loadMotorInstance(ctx, db, op, instanceID); err != nil {
		return nil, classify(op, err)
	}
	rows, err := processRows(ctx, db, instanceID)
	if err != nil {
		return nil, classify(op, err)
	}
	if rows == nil {
		rows = []models.ProcessStatus{}
	}
	return rows, nil
}

// Board returns every process row of a work order with component and
// process names, grouped by instance and ordered by sequence.
func (e *Engine) Board(ctx context.Context, workOrderID int64) ([]models.BoardRow, error) {
	const op = "board"
	db := e.store.DB()
	if err := requireWorkOrder(ctx, db, op, workOrderID); err != nil {
		return nil, classify(op, err)
	}
	rows, err := db.QueryContext(ctx, `SELECT `+processStatusColumns+`, c.name, cp.name, cp.sequence,
			(SELECT COALESCE(SUM(ma.quantity), 0) FROM material_allocations ma WHERE ma.instance_id = ps.instance_id)
		FROM process_statuses ps
		JOIN wo_instances i ON i.id = ps.instance_id
		JOIN components c ON c.id = i.component_id
		JOIN component_processes cp ON cp.id = ps.process_id
		WHERE i.work_order_id = ?
		ORDER BY i.id, cp.sequence, cp.id`, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := []models.BoardRow{}
	for rows.Next() {
		var b models.BoardRow
		ps, err := scanProcessStatus(rows.Scan, &b.ComponentName, &b.ProcessName, &b.Sequence, &b.MaterialPool)
		if err != nil {
			return nil, fmt.Errorf("scan board row: %w", err)
		}
		b.ProcessStatus = ps
		out = append(out, b)
	}
	return out, rows.Err()
}
