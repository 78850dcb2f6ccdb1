package production

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wotrack/internal/models"
)

func loadComponent(ctx context.Context, q queryer, op string, id int64) (models.Component, error) {
	var c models.Component
	var fixed int
	err := q.QueryRowContext(ctx,
		"SELECT id, name, product_type, is_fixed, created_at FROM components WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.ProductType, &fixed, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, notFound(op, "component %d not found", id)
	}
	if err != nil {
		return c, fmt.Errorf("load component %d: %w", id, err)
	}
	c.IsFixed = fixed == 1
	return c, nil
}

// instanceRow is an instance joined with the template fields the engine
// branches on.
type instanceRow struct {
	models.Instance
	ComponentName string
	ProductType   models.ProductType
}

func loadInstance(ctx context.Context, q queryer, op string, id int64) (instanceRow, error) {
	var in instanceRow
	err := q.QueryRowContext(ctx, `SELECT i.id, i.work_order_id, i.component_id, i.quantity, i.version, i.created_at,
			c.name, c.product_type
		FROM wo_instances i JOIN components c ON c.id = i.component_id
		WHERE i.id = ?`, id).
		Scan(&in.ID, &in.WorkOrderID, &in.ComponentID, &in.Quantity, &in.Version, &in.CreatedAt,
			&in.ComponentName, &in.ProductType)
	if errors.Is(err, sql.ErrNoRows) {
		return in, notFound(op, "instance %d not found", id)
	}
	if err != nil {
		return in, fmt.Errorf("load instance %d: %w", id, err)
	}
	return in, nil
}

// loadMotorInstance loads an instance and rejects instances without
// process tracking.
func loadMotorInstance(ctx context.Context, q queryer, op string, id int64) (instanceRow, error) {
	in, err := loadInstance(ctx, q, op, id)
	if err != nil {
		return in, err
	}
	if !in.ProductType.Tracked() {
		return in, notApplicable(op, id)
	}
	return in, nil
}

func exists(ctx context.Context, q queryer, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func requireRawMaterial(ctx context.Context, q queryer, op string, id int64) error {
	ok, err := exists(ctx, q, "SELECT 1 FROM raw_materials WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("check raw material %d: %w", id, err)
	}
	if !ok {
		return notFound(op, "raw material %d not found", id)
	}
	return nil
}

func requireWorkOrder(ctx context.Context, q queryer, op string, id int64) error {
	ok, err := exists(ctx, q, "SELECT 1 FROM work_orders WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("check work order %d: %w", id, err)
	}
	if !ok {
		return notFound(op, "work order %d not found", id)
	}
	return nil
}

// materialPool is the sum of an instance's allocations.
func materialPool(ctx context.Context, q queryer, instanceID int64) (int, error) {
	var pool int
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(quantity), 0) FROM material_allocations WHERE instance_id = ?", instanceID).Scan(&pool)
	if err != nil {
		return 0, fmt.Errorf("sum allocations of instance %d: %w", instanceID, err)
	}
	return pool, nil
}

const processStatusColumns = `ps.instance_id, ps.process_id, ps.completed_quantity, ps.in_use_quantity,
	ps.allowed_quantity, ps.completion_date, ps.responsible_person, ps.status, ps.updated_at`

func scanProcessStatus(scan func(dest ...any) error, extra ...any) (models.ProcessStatus, error) {
	var ps models.ProcessStatus
	var date, person sql.NullString
	dest := []any{&ps.InstanceID, &ps.ProcessID, &ps.CompletedQuantity, &ps.InUseQuantity,
		&ps.AllowedQuantity, &date, &person, &ps.Status, &ps.UpdatedAt}
	if err := scan(append(dest, extra...)...); err != nil {
		return ps, err
	}
	if date.Valid {
		ps.CompletionDate = &date.String
	}
	if person.Valid {
		ps.ResponsiblePerson = &person.String
	}
	return ps, nil
}

// processRows returns every process row of an instance ordered by template
// sequence. Rows are fully read before returning so callers inside a
// transaction can issue further statements.
func processRows(ctx context.Context, q queryer, instanceID int64) ([]models.ProcessStatus, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+processStatusColumns+`
		FROM process_statuses ps JOIN component_processes cp ON cp.id = ps.process_id
		WHERE ps.instance_id = ?
		ORDER BY cp.sequence, cp.id`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list process rows of instance %d: %w", instanceID, err)
	}
	defer rows.Close()

	var out []models.ProcessStatus
	for rows.Next() {
		ps, err := scanProcessStatus(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan process row: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}
