package production

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"wotrack/internal/audit"
	"wotrack/internal/events"
	"wotrack/internal/models"
	"wotrack/internal/store"
	"wotrack/internal/validation"
)

type WorkOrderInput struct {
	OrderID         int64  `json:"order_id"`
	InstanceGroupID *int64 `json:"instance_group_id"`
	TargetDate      string `json:"target_date"`
}

func (in WorkOrderInput) validate() error {
	ve := &validation.ValidationErrors{}
	if in.OrderID <= 0 {
		ve.Add("order_id", "must be a positive integer")
	}
	if in.InstanceGroupID != nil && *in.InstanceGroupID <= 0 {
		ve.Add("instance_group_id", "must be a positive integer")
	}
	validation.RequireField(ve, "target_date", in.TargetDate)
	validation.ValidateDate(ve, "target_date", in.TargetDate)
	return ve.Err()
}

// CreateWorkOrder opens a Pending work order under an existing order. An
// instance group, when given, must belong to the same order.
func (e *Engine) CreateWorkOrder(ctx context.Context, in WorkOrderInput) (*models.WorkOrder, error) {
	const op = "create work order"
	if err := in.validate(); err != nil {
		return nil, invalid(op, err)
	}

	var wo models.WorkOrder
	err := e.write(ctx, op, func(tx *sql.Tx) error {
		ok, err := exists(ctx, tx, "SELECT 1 FROM orders WHERE id = ?", in.OrderID)
		if err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if !ok {
			return notFound(op, "order %d not found", in.OrderID)
		}
		if in.InstanceGroupID != nil {
			var groupOrder int64
			err := tx.QueryRowContext(ctx, "SELECT order_id FROM instance_groups WHERE id = ?", *in.InstanceGroupID).Scan(&groupOrder)
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(op, "instance group %d not found", *in.InstanceGroupID)
			}
			if err != nil {
				return fmt.Errorf("check instance group: %w", err)
			}
			if groupOrder != in.OrderID {
				ve := &validation.ValidationErrors{}
				ve.Add("instance_group_id", fmt.Sprintf("belongs to order %d, not %d", groupOrder, in.OrderID))
				return invalid(op, ve)
			}
		}

		now := e.timestamp()
		res, err := tx.ExecContext(ctx, `INSERT INTO work_orders
			(order_id, instance_group_id, target_date, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			in.OrderID, in.InstanceGroupID, in.TargetDate, models.StatePending, now, now)
		if err != nil {
			return fmt.Errorf("insert work order: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		wo = models.WorkOrder{
			ID:              id,
			OrderID:         in.OrderID,
			InstanceGroupID: in.InstanceGroupID,
			TargetDate:      in.TargetDate,
			Status:          models.StatePending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return audit.Record(ctx, tx, audit.Entry{
			Action:   audit.ActionCreate,
			Module:   audit.ModuleWorkOrder,
			RecordID: strconv.FormatInt(id, 10),
			Summary:  fmt.Sprintf("work order for order %d due %s", in.OrderID, in.TargetDate),
			After:    wo,
		})
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.New(events.WorkOrderCreated, wo.ID, strconv.FormatInt(wo.ID, 10), wo))
	return &wo, nil
}

// AddComponentInstance attaches a component to a work order with a target
// quantity. Motor components get one Pending process row per template in the
// same transaction; a Motor component without templates is rejected.
func (e *Engine) AddComponentInstance(ctx context.Context, workOrderID, componentID int64, quantity int) (*models.InstanceSummary, error) {
	const op = "add component instance"
	ve := &validation.ValidationErrors{}
	validation.ValidatePositiveInt(ve, "quantity", quantity)
	validation.ValidateMaxQuantity(ve, "quantity", quantity)
	if err := ve.Err(); err != nil {
		return nil, invalid(op, err)
	}

	var summary models.InstanceSummary
	err := e.write(ctx, op, func(tx *sql.Tx) error {
		if err := requireWorkOrder(ctx, tx, op, workOrderID); err != nil {
			return err
		}
		comp, err := loadComponent(ctx, tx, op, componentID)
		if err != nil {
			return err
		}
		var procs []models.Process
		if comp.ProductType.Tracked() {
			if procs, err = listProcesses(ctx, tx, componentID); err != nil {
				return err
			}
			if len(procs) == 0 {
				ve := &validation.ValidationErrors{}
				ve.Add("component_id", fmt.Sprintf("Motor component %s has no process templates", comp.Name))
				return invalid(op, ve)
			}
		}

		now := e.timestamp()
		res, err := tx.ExecContext(ctx,
			"INSERT INTO wo_instances (work_order_id, component_id, quantity, version, created_at) VALUES (?, ?, ?, 0, ?)",
			workOrderID, componentID, quantity, now)
		if store.IsUniqueViolation(err) {
			return &Error{Kind: KindConflict, Op: op,
				Message: fmt.Sprintf("work order %d already has component %s", workOrderID, comp.Name)}
		}
		if err != nil {
			return fmt.Errorf("insert instance: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, p := range procs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO process_statuses
				(instance_id, process_id, completed_quantity, in_use_quantity, allowed_quantity, status, updated_at)
				VALUES (?, ?, 0, 0, 0, ?, ?)`, id, p.ID, models.StatePending, now); err != nil {
				return fmt.Errorf("insert process row %d: %w", p.ID, err)
			}
		}

		summary = models.InstanceSummary{
			Instance:      models.Instance{ID: id, WorkOrderID: workOrderID, ComponentID: componentID, Quantity: quantity, CreatedAt: now},
			ComponentName: comp.Name,
			ProductType:   comp.ProductType,
		}
		if comp.ProductType.Tracked() {
			summary.Status = models.StatePending
			if _, _, err := e.refreshWorkOrderStatus(ctx, tx, workOrderID); err != nil {
				return err
			}
		}
		return audit.Record(ctx, tx, audit.Entry{
			Action:   audit.ActionCreate,
			Module:   audit.ModuleInstance,
			RecordID: strconv.FormatInt(id, 10),
			Summary:  fmt.Sprintf("attached %d x %s with %d process rows", quantity, comp.Name, len(procs)),
			After:    summary,
		})
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.New(events.InstanceAdded, workOrderID, strconv.FormatInt(summary.ID, 10), summary))
	return &summary, nil
}

// GetWorkOrder returns a work order with a summary of each instance.
func (e *Engine) GetWorkOrder(ctx context.Context, id int64) (*models.WorkOrder, error) {
	const op = "get work order"
	db := e.store.DB()
	wo, err := scanWorkOrder(db.QueryRowContext(ctx, workOrderSelect+" WHERE id = ?", id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(op, "work order %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if wo.Instances, err = instanceSummaries(ctx, db, id); err != nil {
		return nil, classify(op, err)
	}
	return &wo, nil
}

// ListWorkOrders returns work orders, optionally narrowed to one order.
func (e *Engine) ListWorkOrders(ctx context.Context, orderID int64) ([]models.WorkOrder, error) {
	query, args := workOrderSelect, []any{}
	if orderID > 0 {
		query += " WHERE order_id = ?"
		args = append(args, orderID)
	}
	rows, err := e.store.DB().QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("list work orders: %w", err)
	}
	defer rows.Close()

	out := []models.WorkOrder{}
	for rows.Next() {
		wo, err := scanWorkOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan work order: %w", err)
		}
		out = append(out, wo)
	}
	return out, rows.Err()
}

// GetInstance returns one instance with its pool and derived status.
func (e *Engine) GetInstance(ctx context.Context, id int64) (*models.InstanceSummary, error) {
	const op = "get instance"
	db := e.store.DB()
	in, err := loadInstance(ctx, db, op, id)
	if err != nil {
		return nil, classify(op, err)
	}
	s, err := summarize(ctx, db, in)
	if err != nil {
		return nil, classify(op, err)
	}
	return &s, nil
}

const workOrderSelect = `SELECT id, order_id, instance_group_id, target_date, status, created_at, updated_at FROM work_orders`

func scanWorkOrder(scan func(dest ...any) error) (models.WorkOrder, error) {
	var wo models.WorkOrder
	var group sql.NullInt64
	if err := scan(&wo.ID, &wo.OrderID, &group, &wo.TargetDate, &wo.Status, &wo.CreatedAt, &wo.UpdatedAt); err != nil {
		return wo, err
	}
	if group.Valid {
		wo.InstanceGroupID = &group.Int64
	}
	return wo, nil
}

func instanceSummaries(ctx context.Context, q queryer, workOrderID int64) ([]models.InstanceSummary, error) {
	rows, err := q.QueryContext(ctx, `SELECT i.id, i.work_order_id, i.component_id, i.quantity, i.version, i.created_at,
			c.name, c.product_type
		FROM wo_instances i JOIN components c ON c.id = i.component_id
		WHERE i.work_order_id = ? ORDER BY i.id`, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("list instances of work order %d: %w", workOrderID, err)
	}
	var instances []instanceRow
	for rows.Next() {
		var in instanceRow
		if err := rows.Scan(&in.ID, &in.WorkOrderID, &in.ComponentID, &in.Quantity, &in.Version, &in.CreatedAt,
			&in.ComponentName, &in.ProductType); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, in)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.InstanceSummary, 0, len(instances))
	for _, in := range instances {
		s, err := summarize(ctx, q, in)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func summarize(ctx context.Context, q queryer, in instanceRow) (models.InstanceSummary, error) {
	s := models.InstanceSummary{Instance: in.Instance, ComponentName: in.ComponentName, ProductType: in.ProductType}
	pool, err := materialPool(ctx, q, in.ID)
	if err != nil {
		return s, err
	}
	s.MaterialPool = pool
	if in.ProductType.Tracked() {
		rows, err := processRows(ctx, q, in.ID)
		if err != nil {
			return s, err
		}
		s.Status = instanceState(rows)
	}
	return s, nil
}
