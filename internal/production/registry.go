package production

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"wotrack/internal/audit"
	"wotrack/internal/events"
	"wotrack/internal/models"
	"wotrack/internal/store"
	"wotrack/internal/validation"
)

type ComponentInput struct {
	Name        string             `json:"name"`
	ProductType models.ProductType `json:"product_type"`
	IsFixed     bool               `json:"is_fixed"`
}

func (in ComponentInput) validate() error {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", in.Name)
	validation.ValidateMaxLength(ve, "name", in.Name, validation.MaxNameLength)
	validation.RequireField(ve, "product_type", string(in.ProductType))
	validation.ValidateEnum(ve, "product_type", string(in.ProductType), validation.ValidProductTypes)
	return ve.Err()
}

type ProcessInput struct {
	Name               string `json:"name"`
	Sequence           int    `json:"sequence"`
	DefaultResponsible string `json:"default_responsible"`
	Description        string `json:"description"`
}

func (in ProcessInput) check(ve *validation.ValidationErrors, prefix string) {
	validation.RequireField(ve, prefix+"name", in.Name)
	validation.ValidateMaxLength(ve, prefix+"name", in.Name, validation.MaxNameLength)
	validation.ValidateIntRange(ve, prefix+"sequence", in.Sequence, 0, validation.MaxSequence)
	validation.ValidateMaxLength(ve, prefix+"default_responsible", in.DefaultResponsible, validation.MaxNameLength)
	validation.ValidateMaxLength(ve, prefix+"description", in.Description, validation.MaxStringLength)
}

// RegisterComponent adds a component template. Names are unique ignoring case.
func (e *Engine) RegisterComponent(ctx context.Context, in ComponentInput) (*models.Component, error) {
	const op = "register component"
	in.Name = strings.TrimSpace(in.Name)
	if err := in.validate(); err != nil {
		return nil, invalid(op, err)
	}

	var c models.Component
	err := e.write(ctx, op, func(tx *sql.Tx) error {
		now := e.timestamp()
		res, err := tx.ExecContext(ctx,
			"INSERT INTO components (name, name_key, product_type, is_fixed, created_at) VALUES (?, ?, ?, ?, ?)",
			in.Name, nameKey(in.Name), in.ProductType, in.IsFixed, now)
		if store.IsUniqueViolation(err) {
			return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf("component %q already exists", in.Name)}
		}
		if err != nil {
			return fmt.Errorf("insert component: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		c = models.Component{ID: id, Name: in.Name, ProductType: in.ProductType, IsFixed: in.IsFixed, CreatedAt: now}
		return audit.Record(ctx, tx, audit.Entry{
			Action:   audit.ActionCreate,
			Module:   audit.ModuleComponent,
			RecordID: strconv.FormatInt(id, 10),
			Summary:  fmt.Sprintf("registered %s component %s", in.ProductType, in.Name),
			After:    c,
		})
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.New(events.ComponentRegistered, 0, strconv.FormatInt(c.ID, 10), c))
	return &c, nil
}

// RegisterProcess adds a process template to a component. Sequence and name
// (ignoring case) are unique within the component. Existing instances keep
// the process rows they were created with.
func (e *Engine) RegisterProcess(ctx context.Context, componentID int64, in ProcessInput) (*models.Process, error) {
	procs, err := e.ImportProcesses(ctx, componentID, []ProcessInput{in})
	if err != nil {
		return nil, err
	}
	return &procs[0], nil
}

// ImportProcesses registers a whole routing in one transaction. Any
// duplicate, against the catalog or within the batch, aborts the import.
func (e *Engine) ImportProcesses(ctx context.Context, componentID int64, inputs []ProcessInput) ([]models.Process, error) {
	op := "register process"
	if len(inputs) > 1 {
		op = "import processes"
	}

	ve := &validation.ValidationErrors{}
	if len(inputs) == 0 {
		ve.Add("processes", "at least one process is required")
	}
	for i := range inputs {
		inputs[i].Name = strings.TrimSpace(inputs[i].Name)
		inputs[i].DefaultResponsible = strings.TrimSpace(inputs[i].DefaultResponsible)
		prefix := ""
		if len(inputs) > 1 {
			prefix = fmt.Sprintf("processes[%d].", i)
		}
		inputs[i].check(ve, prefix)
	}
	if err := ve.Err(); err != nil {
		return nil, invalid(op, err)
	}
	if err := duplicateInBatch(op, inputs); err != nil {
		return nil, err
	}

	var created []models.Process
	err := e.write(ctx, op, func(tx *sql.Tx) error {
		created = created[:0]
		comp, err := loadComponent(ctx, tx, op, componentID)
		if err != nil {
			return err
		}
		for _, in := range inputs {
			p, err := insertProcess(ctx, tx, op, comp, in)
			if err != nil {
				return err
			}
			created = append(created, p)
		}
		action, summary := audit.ActionCreate, fmt.Sprintf("registered process %s on %s", inputs[0].Name, comp.Name)
		if len(inputs) > 1 {
			action, summary = audit.ActionImport, fmt.Sprintf("imported %d processes on %s", len(inputs), comp.Name)
		}
		return audit.Record(ctx, tx, audit.Entry{
			Action:   action,
			Module:   audit.ModuleProcess,
			RecordID: strconv.FormatInt(componentID, 10),
			Summary:  summary,
			After:    created,
		})
	})
	if err != nil {
		return nil, err
	}
	for _, p := range created {
		e.publish(ctx, events.New(events.ProcessRegistered, 0, strconv.FormatInt(p.ID, 10), p))
	}
	return created, nil
}

func duplicateInBatch(op string, inputs []ProcessInput) error {
	seqs := make(map[int]string, len(inputs))
	names := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if prev, ok := seqs[in.Sequence]; ok {
			return &Error{Kind: KindConflict, Op: op,
				Message: fmt.Sprintf("processes %q and %q share sequence %d", prev, in.Name, in.Sequence)}
		}
		seqs[in.Sequence] = in.Name
		key := nameKey(in.Name)
		if _, ok := names[key]; ok {
			return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf("process %q listed twice", in.Name)}
		}
		names[key] = struct{}{}
	}
	return nil
}

func insertProcess(ctx context.Context, tx *sql.Tx, op string, comp models.Component, in ProcessInput) (models.Process, error) {
	key := nameKey(in.Name)
	var existing string
	err := tx.QueryRowContext(ctx,
		"SELECT name FROM component_processes WHERE component_id = ? AND (sequence = ? OR name_key = ?) LIMIT 1",
		comp.ID, in.Sequence, key).Scan(&existing)
	if err == nil {
		return models.Process{}, &Error{Kind: KindConflict, Op: op,
			Message: fmt.Sprintf("component %s already has process %q with that name or sequence %d", comp.Name, existing, in.Sequence)}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Process{}, fmt.Errorf("check process uniqueness: %w", err)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO component_processes
		(component_id, name, name_key, sequence, default_responsible, description) VALUES (?, ?, ?, ?, ?, ?)`,
		comp.ID, in.Name, key, in.Sequence, in.DefaultResponsible, in.Description)
	if err != nil {
		return models.Process{}, fmt.Errorf("insert process %s: %w", in.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Process{}, err
	}
	return models.Process{
		ID:                 id,
		ComponentID:        comp.ID,
		Name:               in.Name,
		Sequence:           in.Sequence,
		DefaultResponsible: in.DefaultResponsible,
		Description:        in.Description,
	}, nil
}

// RegisterMaterialRequirement records the design-time quantity of a raw
// material needed per produced unit. It is never enforced at runtime.
func (e *Engine) RegisterMaterialRequirement(ctx context.Context, componentID, rawMaterialID int64, perUnit decimal.Decimal) (*models.MaterialRequirement, error) {
	const op = "register material requirement"
	if !perUnit.IsPositive() {
		ve := &validation.ValidationErrors{}
		ve.Add("quantity_per_unit", "must be greater than zero")
		return nil, invalid(op, ve)
	}

	req := models.MaterialRequirement{ComponentID: componentID, RawMaterialID: rawMaterialID, QuantityPerUnit: perUnit}
	err := e.write(ctx, op, func(tx *sql.Tx) error {
		comp, err := loadComponent(ctx, tx, op, componentID)
		if err != nil {
			return err
		}
		if err := requireRawMaterial(ctx, tx, op, rawMaterialID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO component_materials (component_id, raw_material_id, quantity_per_unit) VALUES (?, ?, ?)",
			componentID, rawMaterialID, perUnit.String())
		if store.IsUniqueViolation(err) {
			return &Error{Kind: KindConflict, Op: op,
				Message: fmt.Sprintf("component %s already requires raw material %d", comp.Name, rawMaterialID)}
		}
		if err != nil {
			return fmt.Errorf("insert material requirement: %w", err)
		}
		return audit.Record(ctx, tx, audit.Entry{
			Action:   audit.ActionCreate,
			Module:   audit.ModuleComponent,
			RecordID: strconv.FormatInt(componentID, 10),
			Summary:  fmt.Sprintf("%s of raw material %d per unit of %s", perUnit, rawMaterialID, comp.Name),
			After:    req,
		})
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetComponent returns a component with its process templates.
func (e *Engine) GetComponent(ctx context.Context, id int64) (*models.Component, error) {
	c, err := loadComponent(ctx, e.store.DB(), "get component", id)
	if err != nil {
		return nil, classify("get component", err)
	}
	c.Processes, err = listProcesses(ctx, e.store.DB(), id)
	if err != nil {
		return nil, classify("get component", err)
	}
	return &c, nil
}

// ListComponents returns every component template ordered by name.
func (e *Engine) ListComponents(ctx context.Context) ([]models.Component, error) {
	rows, err := e.store.DB().QueryContext(ctx,
		"SELECT id, name, product_type, is_fixed, created_at FROM components ORDER BY name_key")
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	defer rows.Close()

	out := []models.Component{}
	for rows.Next() {
		var c models.Component
		var fixed int
		if err := rows.Scan(&c.ID, &c.Name, &c.ProductType, &fixed, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan component: %w", err)
		}
		c.IsFixed = fixed == 1
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListProcesses returns a component's process templates ordered by sequence.
func (e *Engine) ListProcesses(ctx context.Context, componentID int64) ([]models.Process, error) {
	const op = "list processes"
	if _, err := loadComponent(ctx, e.store.DB(), op, componentID); err != nil {
		return nil, classify(op, err)
	}
	procs, err := listProcesses(ctx, e.store.DB(), componentID)
	if err != nil {
		return nil, classify(op, err)
	}
	return procs, nil
}

func listProcesses(ctx context.Context, q queryer, componentID int64) ([]models.Process, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, component_id, name, sequence, default_responsible, description
		FROM component_processes WHERE component_id = ? ORDER BY sequence, id`, componentID)
	if err != nil {
		return nil, fmt.Errorf("list processes of component %d: %w", componentID, err)
	}
	defer rows.Close()

	out := []models.Process{}
	for rows.Next() {
		var p models.Process
		if err := rows.Scan(&p.ID, &p.ComponentID, &p.Name, &p.Sequence, &p.DefaultResponsible, &p.Description); err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListMaterialRequirements returns the per-unit raw material defaults of a component.
func (e *Engine) ListMaterialRequirements(ctx context.Context, componentID int64) ([]models.MaterialRequirement, error) {
	const op = "list material requirements"
	if _, err := loadComponent(ctx, e.store.DB(), op, componentID); err != nil {
		return nil, classify(op, err)
	}
	reqs, err := listRequirements(ctx, e.store.DB(), componentID)
	if err != nil {
		return nil, classify(op, err)
	}
	return reqs, nil
}

func listRequirements(ctx context.Context, q queryer, componentID int64) ([]models.MaterialRequirement, error) {
	rows, err := q.QueryContext(ctx, `SELECT component_id, raw_material_id, quantity_per_unit
		FROM component_materials WHERE component_id = ? ORDER BY raw_material_id`, componentID)
	if err != nil {
		return nil, fmt.Errorf("list material requirements of component %d: %w", componentID, err)
	}
	defer rows.Close()

	out := []models.MaterialRequirement{}
	for rows.Next() {
		var r models.MaterialRequirement
		var raw string
		if err := rows.Scan(&r.ComponentID, &r.RawMaterialID, &raw); err != nil {
			return nil, fmt.Errorf("scan material requirement: %w", err)
		}
		if r.QuantityPerUnit, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("parse quantity per unit %q: %w", raw, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
