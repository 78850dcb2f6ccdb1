package production

import (
	"context"
	"database/sql"
	"fmt"

	"wotrack/internal/models"
	"wotrack/internal/store"
)

// refreshWorkOrderStatus recomputes a work order's status from every process
// row of its Motor instances and persists it. It returns the status before
// and after.
func (e *Engine) refreshWorkOrderStatus(ctx context.Context, tx *sql.Tx, workOrderID int64) (before, after models.State, err error) {
	if err := tx.QueryRowContext(ctx, "SELECT status FROM work_orders WHERE id = ?", workOrderID).Scan(&before); err != nil {
		return "", "", fmt.Errorf("load work order %d status: %w", workOrderID, err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT ps.status
		FROM process_statuses ps
		JOIN wo_instances i ON i.id = ps.instance_id
		JOIN components c ON c.id = i.component_id
		WHERE i.work_order_id = ? AND c.product_type = ?`, workOrderID, models.ProductMotor)
	if err != nil {
		return "", "", fmt.Errorf("load process states of work order %d: %w", workOrderID, err)
	}
	var states []models.State
	for rows.Next() {
		var s models.State
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return "", "", fmt.Errorf("scan process state: %w", err)
		}
		states = append(states, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", "", err
	}

	after = DeriveAggregateState(states)
	if after != before {
		if _, err := tx.ExecContext(ctx, "UPDATE work_orders SET status = ?, updated_at = ? WHERE id = ?",
			after, e.timestamp(), workOrderID); err != nil {
			return "", "", fmt.Errorf("update work order %d status: %w", workOrderID, err)
		}
	}
	return before, after, nil
}

// bumpVersion is the optimistic concurrency check for writes to an
// instance's pool. Zero affected rows means another transaction committed a
// change to the instance since it was read.
func bumpVersion(ctx context.Context, tx *sql.Tx, in *instanceRow) error {
	res, err := tx.ExecContext(ctx, "UPDATE wo_instances SET version = version + 1 WHERE id = ? AND version = ?",
		in.ID, in.Version)
	if err != nil {
		return fmt.Errorf("bump instance %d version: %w", in.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrConflict
	}
	in.Version++
	return nil
}

// instanceState aggregates the process rows of one instance.
func instanceState(rows []models.ProcessStatus) models.State {
	states := make([]models.State, len(rows))
	for i, r := range rows {
		states[i] = r.Status
	}
	return DeriveAggregateState(states)
}
