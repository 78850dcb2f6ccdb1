package production

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"wotrack/internal/events"
	"wotrack/internal/logging"
	"wotrack/internal/models"
	"wotrack/internal/store"
)

var testNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *store.Store
	engine  *Engine
	events  *events.Recorder
	orderID int64
	copper  int64
	steel   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureAt(t, store.MemoryPath)
}

func newFixtureAt(t *testing.T, path string) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, store.Options{Path: path, MaxAttempts: 50, InitialBackoff: time.Millisecond, MaxBackoff: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	rec := &events.Recorder{}
	f := &fixture{
		t:      t,
		ctx:    ctx,
		store:  s,
		events: rec,
		engine: New(s, Options{Publisher: rec, Logger: logging.NewNop(), Now: func() time.Time { return testNow }}),
	}
	if f.orderID, err = s.InsertOrder(ctx, "SO-1001", "Acme Pumps"); err != nil {
		t.Fatalf("insert order: %v", err)
	}
	if f.copper, err = s.InsertRawMaterial(ctx, "CU-01", "Copper winding wire", "kg"); err != nil {
		t.Fatalf("insert raw material: %v", err)
	}
	if f.steel, err = s.InsertRawMaterial(ctx, "ST-02", "Lamination steel", "kg"); err != nil {
		t.Fatalf("insert raw material: %v", err)
	}
	return f
}

// motor registers a Motor component with one process per name, sequenced
// in the given order.
func (f *fixture) motor(name string, processes ...string) (models.Component, []models.Process) {
	f.t.Helper()
	c, err := f.engine.RegisterComponent(f.ctx, ComponentInput{Name: name, ProductType: models.ProductMotor})
	if err != nil {
		f.t.Fatalf("register component %s: %v", name, err)
	}
	var procs []models.Process
	for i, p := range processes {
		proc, err := f.engine.RegisterProcess(f.ctx, c.ID, ProcessInput{Name: p, Sequence: i * 10})
		if err != nil {
			f.t.Fatalf("register process %s: %v", p, err)
		}
		procs = append(procs, *proc)
	}
	return *c, procs
}

func (f *fixture) nonMotor(name string) models.Component {
	f.t.Helper()
	c, err := f.engine.RegisterComponent(f.ctx, ComponentInput{Name: name, ProductType: models.ProductNonMotor})
	if err != nil {
		f.t.Fatalf("register component %s: %v", name, err)
	}
	return *c
}

func (f *fixture) workOrder() int64 {
	f.t.Helper()
	wo, err := f.engine.CreateWorkOrder(f.ctx, WorkOrderInput{OrderID: f.orderID, TargetDate: "2026-04-30"})
	if err != nil {
		f.t.Fatalf("create work order: %v", err)
	}
	return wo.ID
}

func (f *fixture) instance(workOrderID, componentID int64, quantity int) int64 {
	f.t.Helper()
	in, err := f.engine.AddComponentInstance(f.ctx, workOrderID, componentID, quantity)
	if err != nil {
		f.t.Fatalf("add instance: %v", err)
	}
	return in.ID
}

func (f *fixture) assign(instanceID, rawMaterialID int64, quantity int) *Assignment {
	f.t.Helper()
	a, err := f.engine.AssignMaterial(f.ctx, instanceID, rawMaterialID, quantity)
	if err != nil {
		f.t.Fatalf("assign %d of material %d: %v", quantity, rawMaterialID, err)
	}
	return a
}

func (f *fixture) update(instanceID, processID int64, u ProcessUpdate) *models.ProcessStatus {
	f.t.Helper()
	ps, err := f.engine.UpdateProcessStatus(f.ctx, instanceID, processID, u)
	if err != nil {
		f.t.Fatalf("update process %d: %v", processID, err)
	}
	return ps
}

func (f *fixture) status(instanceID, processID int64) models.ProcessStatus {
	f.t.Helper()
	ps, err := f.engine.GetProcessStatus(f.ctx, instanceID, processID)
	if err != nil {
		f.t.Fatalf("get process %d: %v", processID, err)
	}
	return *ps
}

func (f *fixture) workOrderStatus(id int64) models.State {
	f.t.Helper()
	wo, err := f.engine.GetWorkOrder(f.ctx, id)
	if err != nil {
		f.t.Fatalf("get work order: %v", err)
	}
	return wo.Status
}

// checkInvariants asserts that the in-use total and every completed
// quantity stay within the pool and that each status matches its quantities.
func (f *fixture) checkInvariants(instanceID int64) {
	f.t.Helper()
	pool, err := f.engine.MaterialPool(f.ctx, instanceID)
	if err != nil {
		f.t.Fatalf("pool: %v", err)
	}
	rows, err := f.engine.ListProcessStatuses(f.ctx, instanceID)
	if err != nil {
		f.t.Fatalf("list process statuses: %v", err)
	}
	sum := 0
	for _, r := range rows {
		sum += r.InUseQuantity
		if r.CompletedQuantity > pool {
			f.t.Errorf("process %d completed %d > pool %d", r.ProcessID, r.CompletedQuantity, pool)
		}
		if want := DeriveProcessState(r.CompletedQuantity, r.InUseQuantity, pool); r.Status != want {
			f.t.Errorf("process %d status %s, derived %s", r.ProcessID, r.Status, want)
		}
		if r.AllowedQuantity != pool {
			f.t.Errorf("process %d allowed %d, pool %d", r.ProcessID, r.AllowedQuantity, pool)
		}
	}
	if sum > pool {
		f.t.Errorf("in-use total %d > pool %d", sum, pool)
	}
}

func intp(v int) *int { return &v }

func strp(s string) *string { return &s }

func expectKind(t *testing.T, err error, sentinel error) {
	t.Helper()
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected %v error, got %v", sentinel, err)
	}
}

func processByName(procs []models.Process, name string) models.Process {
	for _, p := range procs {
		if p.Name == name {
			return p
		}
	}
	panic(fmt.Sprintf("no process %s", name))
}
