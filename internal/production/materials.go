package production

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"wotrack/internal/audit"
	"wotrack/internal/events"
	"wotrack/internal/logging"
	"wotrack/internal/models"
	"wotrack/internal/validation"
)

// ProcessAdjustment records how reconciliation changed one process row.
type ProcessAdjustment struct {
	ProcessID       int64        `json:"process_id"`
	InUseBefore     int          `json:"in_use_before"`
	InUseAfter      int          `json:"in_use_after"`
	CompletedBefore int          `json:"completed_before"`
	CompletedAfter  int          `json:"completed_after"`
	StatusBefore    models.State `json:"status_before"`
	StatusAfter     models.State `json:"status_after"`
}

// reopened reports whether the row left Completed, which clears its
// completion date.
func (a ProcessAdjustment) reopened() bool {
	return a.StatusBefore == models.StateCompleted && a.StatusAfter != models.StateCompleted
}

// Reconciliation reports the sibling rows an allocation change rewrote
// because the pool shrank below what was checked out or completed.
type Reconciliation struct {
	OldPool  int                 `json:"old_pool"`
	NewPool  int                 `json:"new_pool"`
	OldInUse int                 `json:"old_in_use"`
	NewInUse int                 `json:"new_in_use"`
	Adjusted []ProcessAdjustment `json:"adjusted"`
}

// Assignment is the result of AssignMaterial.
type Assignment struct {
	Allocation     models.MaterialAllocation `json:"allocation"`
	MaterialPool   int                       `json:"material_pool"`
	WorkOrder      models.State              `json:"work_order_status"`
	Reconciliation *Reconciliation           `json:"reconciliation,omitempty"`
}

// AssignMaterial sets the quantity of one raw material allocated to a Motor
// instance and recomputes the pool.
//
// When the new pool is smaller than the current in-use total, every process's
// in-use quantity is scaled by newPool/oldInUse (rounded down). Completed
// processes whose completed quantity exceeds the new pool are clamped to it,
// and emptying the pool under a Completed process is rejected. A reduction
// that would leave an unfinished process at or above the new pool is
// rejected, so shrinking the pool never completes a process. Rows that leave
// Completed when the pool grows lose their completion date. Every row's
// allowed quantity is refreshed to the new pool.
func (e *Engine) AssignMaterial(ctx context.Context, instanceID, rawMaterialID int64, quantity int) (*Assignment, error) {
	const op = "assign material"
	ve := &validation.ValidationErrors{}
	validation.ValidateNonNegativeInt(ve, "quantity", quantity)
	validation.ValidateMaxQuantity(ve, "quantity", quantity)
	if err := ve.Err(); err != nil {
		return nil, invalid(op, err)
	}

	var result Assignment
	var workOrderID int64
	err := e.write(ctx, op, func(tx *sql.Tx) error {
		result = Assignment{}
		in, err := loadMotorInstance(ctx, tx, op, instanceID)
		if err != nil {
			return err
		}
		workOrderID = in.WorkOrderID
		if err := requireRawMaterial(ctx, tx, op, rawMaterialID); err != nil {
			return err
		}
		oldPool, err := materialPool(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		rows, err := processRows(ctx, tx, instanceID)
		if err != nil {
			return err
		}

		var previous sql.NullInt64
		err = tx.QueryRowContext(ctx, "SELECT quantity FROM material_allocations WHERE instance_id = ? AND raw_material_id = ?",
			instanceID, rawMaterialID).Scan(&previous)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load allocation: %w", err)
		}

		now := e.timestamp()
		if _, err := tx.ExecContext(ctx, `INSERT INTO material_allocations (instance_id, raw_material_id, quantity, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (instance_id, raw_material_id) DO UPDATE SET quantity = excluded.quantity, updated_at = excluded.updated_at`,
			instanceID, rawMaterialID, quantity, now); err != nil {
			return fmt.Errorf("upsert allocation: %w", err)
		}
		newPool, err := materialPool(ctx, tx, instanceID)
		if err != nil {
			return err
		}

		rec, err := reconcile(op, rows, oldPool, newPool)
		if err != nil {
			return err
		}
		for i, row := range rows {
			adj := rec.Adjusted[i]
			if _, err := tx.ExecContext(ctx, `UPDATE process_statuses
				SET completed_quantity = ?, in_use_quantity = ?, allowed_quantity = ?, status = ?, updated_at = ?,
					completion_date = CASE WHEN ? THEN NULL ELSE completion_date END
				WHERE instance_id = ? AND process_id = ?`,
				adj.CompletedAfter, adj.InUseAfter, newPool, adj.StatusAfter, now, adj.reopened(),
				instanceID, row.ProcessID); err != nil {
				return fmt.Errorf("reconcile process %d: %w", row.ProcessID, err)
			}
		}
		rec.Adjusted = changedOnly(rec.Adjusted)

		if len(rec.Adjusted) > 0 && newPool < oldPool {
			e.logger.Warn("material pool reduction rewrote sibling processes",
				logging.Alert("pool_reconciled"),
				logging.Int64(logging.FieldInstanceID, instanceID),
				logging.Int64("raw_material_id", rawMaterialID),
				logging.Int("old_pool", oldPool),
				logging.Int("new_pool", newPool),
				logging.Int("old_in_use", rec.OldInUse),
				logging.Int("new_in_use", rec.NewInUse),
				logging.Int("adjusted", len(rec.Adjusted)))
			if err := audit.Record(ctx, tx, audit.Entry{
				Action:   audit.ActionReconcile,
				Module:   audit.ModuleInstance,
				RecordID: strconv.FormatInt(instanceID, 10),
				Summary: fmt.Sprintf("pool %d -> %d, in use %d -> %d, %d processes adjusted",
					oldPool, newPool, rec.OldInUse, rec.NewInUse, len(rec.Adjusted)),
				Before: rows,
				After:  rec.Adjusted,
			}); err != nil {
				return err
			}
			result.Reconciliation = &rec
		}

		_, woStatus, err := e.refreshWorkOrderStatus(ctx, tx, in.WorkOrderID)
		if err != nil {
			return err
		}
		if err := bumpVersion(ctx, tx, &in); err != nil {
			return err
		}

		result.Allocation = models.MaterialAllocation{
			InstanceID: instanceID, RawMaterialID: rawMaterialID, Quantity: quantity, UpdatedAt: now,
		}
		result.MaterialPool = newPool
		result.WorkOrder = woStatus

		action := audit.ActionCreate
		var before any
		if previous.Valid {
			action, before = audit.ActionUpdate, previous.Int64
		}
		return audit.Record(ctx, tx, audit.Entry{
			Action:   action,
			Module:   audit.ModuleAllocation,
			RecordID: fmt.Sprintf("%d/%d", instanceID, rawMaterialID),
			Summary:  fmt.Sprintf("raw material %d set to %d, pool %d -> %d", rawMaterialID, quantity, oldPool, newPool),
			Before:   before,
			After:    quantity,
		})
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.New(events.MaterialAssigned, workOrderID,
		fmt.Sprintf("%d/%d", instanceID, rawMaterialID), result))
	return &result, nil
}

// reconcile computes the rows that result from moving an instance's pool
// from oldPool to newPool. Adjusted holds one entry per input row, in order.
func reconcile(op string, rows []models.ProcessStatus, oldPool, newPool int) (Reconciliation, error) {
	rec := Reconciliation{OldPool: oldPool, NewPool: newPool, Adjusted: make([]ProcessAdjustment, len(rows))}
	for _, r := range rows {
		rec.OldInUse += r.InUseQuantity
	}
	scale := rec.OldInUse > newPool

	for i, r := range rows {
		adj := ProcessAdjustment{
			ProcessID:       r.ProcessID,
			InUseBefore:     r.InUseQuantity,
			InUseAfter:      r.InUseQuantity,
			CompletedBefore: r.CompletedQuantity,
			CompletedAfter:  r.CompletedQuantity,
			StatusBefore:    r.Status,
		}
		if scale {
			adj.InUseAfter = int(int64(r.InUseQuantity) * int64(newPool) / int64(rec.OldInUse))
		}
		finished := r.Status == models.StateCompleted
		if adj.CompletedAfter > newPool {
			// An empty pool would take a finished process back to Pending.
			if !finished || newPool == 0 {
				return rec, capacity(op, &CapacityError{Scope: ScopePool, ProcessID: r.ProcessID,
					Attempted: r.CompletedQuantity, Limit: newPool, Available: 0})
			}
			adj.CompletedAfter = newPool
		}
		if !finished && newPool > 0 && adj.CompletedAfter >= newPool {
			return rec, capacity(op, &CapacityError{Scope: ScopePool, ProcessID: r.ProcessID,
				Attempted: r.CompletedQuantity, Limit: newPool, Available: 0})
		}
		adj.StatusAfter = DeriveProcessState(adj.CompletedAfter, adj.InUseAfter, newPool)
		rec.NewInUse += adj.InUseAfter
		rec.Adjusted[i] = adj
	}
	return rec, nil
}

func changedOnly(adjs []ProcessAdjustment) []ProcessAdjustment {
	out := []ProcessAdjustment{}
	for _, a := range adjs {
		if a.InUseAfter != a.InUseBefore || a.CompletedAfter != a.CompletedBefore || a.StatusAfter != a.StatusBefore {
			out = append(out, a)
		}
	}
	return out
}

// ListAllocations returns the allocations of an instance.
func (e *Engine) ListAllocations(ctx context.Context, instanceID int64) ([]models.MaterialAllocation, error) {
	const op = "list allocations"
	db := e.store.DB()
	if _, err := loadInstance(ctx, db, op, instanceID); err != nil {
		return nil, classify(op, err)
	}
	allocs, err := listAllocations(ctx, db, instanceID)
	if err != nil {
		return nil, classify(op, err)
	}
	return allocs, nil
}

func listAllocations(ctx context.Context, q queryer, instanceID int64) ([]models.MaterialAllocation, error) {
	rows, err := q.QueryContext(ctx, `SELECT instance_id, raw_material_id, quantity, updated_at
		FROM material_allocations WHERE instance_id = ? ORDER BY raw_material_id`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list allocations of instance %d: %w", instanceID, err)
	}
	defer rows.Close()

	out := []models.MaterialAllocation{}
	for rows.Next() {
		var a models.MaterialAllocation
		if err := rows.Scan(&a.InstanceID, &a.RawMaterialID, &a.Quantity, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MaterialPool returns the total raw material allocated to an instance.
func (e *Engine) MaterialPool(ctx context.Context, instanceID int64) (int, error) {
	const op = "material pool"
	db := e.store.DB()
	if _, err := loadInstance(ctx, db, op, instanceID); err != nil {
		return 0, classify(op, err)
	}
	pool, err := materialPool(ctx, db, instanceID)
	if err != nil {
		return 0, classify(op, err)
	}
	return pool, nil
}

// RecordMaterialUsage records how much of one raw material a process used.
// It is bookkeeping only and does not touch the capacity accounting.
func (e *Engine) RecordMaterialUsage(ctx context.Context, instanceID, processID, rawMaterialID int64, used int) (*models.ProcessMaterialUsage, error) {
	const op = "record material usage"
	ve := &validation.ValidationErrors{}
	validation.ValidateNonNegativeInt(ve, "used_quantity", used)
	validation.ValidateMaxQuantity(ve, "used_quantity", used)
	if err := ve.Err(); err != nil {
		return nil, invalid(op, err)
	}

	var usage models.ProcessMaterialUsage
	var workOrderID int64
	err := e.write(ctx, op, func(tx *sql.Tx) error {
		in, err := loadMotorInstance(ctx, tx, op, instanceID)
		if err != nil {
			return err
		}
		workOrderID = in.WorkOrderID
		ok, err := exists(ctx, tx, "SELECT 1 FROM process_statuses WHERE instance_id = ? AND process_id = ?", instanceID, processID)
		if err != nil {
			return fmt.Errorf("check process row: %w", err)
		}
		if !ok {
			return notFound(op, "process %d not found on instance %d", processID, instanceID)
		}
		if err := requireRawMaterial(ctx, tx, op, rawMaterialID); err != nil {
			return err
		}
		now := e.timestamp()
		if _, err := tx.ExecContext(ctx, `INSERT INTO process_material_usage
			(instance_id, process_id, raw_material_id, used_quantity, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, process_id, raw_material_id)
			DO UPDATE SET used_quantity = excluded.used_quantity, updated_at = excluded.updated_at`,
			instanceID, processID, rawMaterialID, used, now); err != nil {
			return fmt.Errorf("upsert material usage: %w", err)
		}
		usage = models.ProcessMaterialUsage{
			InstanceID: instanceID, ProcessID: processID, RawMaterialID: rawMaterialID, UsedQuantity: used, UpdatedAt: now,
		}
		return audit.Record(ctx, tx, audit.Entry{
			Action:   audit.ActionUpdate,
			Module:   audit.ModuleUsage,
			RecordID: fmt.Sprintf("%d/%d/%d", instanceID, processID, rawMaterialID),
			Summary:  fmt.Sprintf("process %d used %d of raw material %d", processID, used, rawMaterialID),
			After:    usage,
		})
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.New(events.ProcessMaterialUsed, workOrderID,
		fmt.Sprintf("%d/%d/%d", instanceID, processID, rawMaterialID), usage))
	return &usage, nil
}

// ListMaterialUsage returns the usage rows of an instance.
func (e *Engine) ListMaterialUsage(ctx context.Context, instanceID int64) ([]models.ProcessMaterialUsage, error) {
	const op = "list material usage"
	db := e.store.DB()
	if _, err := loadInstance(ctx, db, op, instanceID); err != nil {
		return nil, classify(op, err)
	}
	rows, err := db.QueryContext(ctx, `SELECT instance_id, process_id, raw_material_id, used_quantity, updated_at
		FROM process_material_usage WHERE instance_id = ? ORDER BY process_id, raw_material_id`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := []models.ProcessMaterialUsage{}
	for rows.Next() {
		var u models.ProcessMaterialUsage
		if err := rows.Scan(&u.InstanceID, &u.ProcessID, &u.RawMaterialID, &u.UsedQuantity, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan material usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// PlanMaterials compares the design-time requirements of an instance's
// component, scaled to the instance quantity and rounded up, with what is
// allocated.
func (e *Engine) PlanMaterials(ctx context.Context, instanceID int64) ([]models.MaterialPlanLine, error) {
	const op = "plan materials"
	db := e.store.DB()
	in, err := loadInstance(ctx, db, op, instanceID)
	if err != nil {
		return nil, classify(op, err)
	}
	reqs, err := listRequirements(ctx, db, in.ComponentID)
	if err != nil {
		return nil, classify(op, err)
	}
	allocs, err := listAllocations(ctx, db, instanceID)
	if err != nil {
		return nil, classify(op, err)
	}
	allocated := make(map[int64]int, len(allocs))
	for _, a := range allocs {
		allocated[a.RawMaterialID] = a.Quantity
	}

	qty := decimal.NewFromInt(int64(in.Quantity))
	lines := make([]models.MaterialPlanLine, 0, len(reqs))
	for _, r := range reqs {
		line := models.MaterialPlanLine{
			RawMaterialID:   r.RawMaterialID,
			QuantityPerUnit: r.QuantityPerUnit,
			Required:        int(r.QuantityPerUnit.Mul(qty).Ceil().IntPart()),
			Allocated:       allocated[r.RawMaterialID],
		}
		if line.Allocated < line.Required {
			line.Shortfall = line.Required - line.Allocated
		}
		lines = append(lines, line)
	}
	return lines, nil
}
