package production

import (
	"testing"

	"github.com/shopspring/decimal"

	"wotrack/internal/events"
	"wotrack/internal/models"
)

func TestRegisterComponent(t *testing.T) {
	f := newFixture(t)

	c, err := f.engine.RegisterComponent(f.ctx, ComponentInput{Name: "  Stator Assembly ", ProductType: models.ProductMotor, IsFixed: true})
	if err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}
	if c.ID == 0 || c.Name != "Stator Assembly" || !c.IsFixed {
		t.Errorf("unexpected component %+v", c)
	}
	if got := len(f.events.OfType(events.ComponentRegistered)); got != 1 {
		t.Errorf("component_registered events = %d, want 1", got)
	}

	got, err := f.engine.GetComponent(f.ctx, c.ID)
	if err != nil {
		t.Fatalf("GetComponent: %v", err)
	}
	if got.Name != c.Name || got.ProductType != models.ProductMotor || !got.IsFixed {
		t.Errorf("stored component %+v differs from %+v", got, c)
	}
}

func TestRegisterComponentRejectsDuplicateNameIgnoringCase(t *testing.T) {
	f := newFixture(t)
	f.motor("Rotor")

	_, err := f.engine.RegisterComponent(f.ctx, ComponentInput{Name: "ROTOR", ProductType: models.ProductNonMotor})
	expectKind(t, err, ErrConflict)

	comps, err := f.engine.ListComponents(f.ctx)
	if err != nil {
		t.Fatalf("ListComponents: %v", err)
	}
	if len(comps) != 1 {
		t.Errorf("components = %d, want 1", len(comps))
	}
}

func TestRegisterComponentValidation(t *testing.T) {
	f := newFixture(t)
	tests := []ComponentInput{
		{Name: "", ProductType: models.ProductMotor},
		{Name: "Shaft", ProductType: "Gearbox"},
		{Name: "Shaft"},
	}
	for _, in := range tests {
		_, err := f.engine.RegisterComponent(f.ctx, in)
		expectKind(t, err, ErrValidation)
	}
}

func TestRegisterProcessUniqueness(t *testing.T) {
	f := newFixture(t)
	c, _ := f.motor("Stator", "Winding", "Varnishing")

	_, err := f.engine.RegisterProcess(f.ctx, c.ID, ProcessInput{Name: "Testing", Sequence: 10})
	expectKind(t, err, ErrConflict)

	_, err = f.engine.RegisterProcess(f.ctx, c.ID, ProcessInput{Name: "winding", Sequence: 99})
	expectKind(t, err, ErrConflict)

	// the same name is fine on another component
	other, _ := f.motor("Rotor")
	if _, err := f.engine.RegisterProcess(f.ctx, other.ID, ProcessInput{Name: "Winding", Sequence: 0}); err != nil {
		t.Fatalf("RegisterProcess on other component: %v", err)
	}
}

func TestRegisterProcessErrors(t *testing.T) {
	f := newFixture(t)
	c, _ := f.motor("Stator")

	_, err := f.engine.RegisterProcess(f.ctx, 999, ProcessInput{Name: "Winding"})
	expectKind(t, err, ErrNotFound)

	_, err = f.engine.RegisterProcess(f.ctx, c.ID, ProcessInput{Name: "Winding", Sequence: -1})
	expectKind(t, err, ErrValidation)

	_, err = f.engine.RegisterProcess(f.ctx, c.ID, ProcessInput{Name: " ", Sequence: 1})
	expectKind(t, err, ErrValidation)
}

func TestProcessesOrderedBySequence(t *testing.T) {
	f := newFixture(t)
	c, _ := f.motor("Stator")
	for _, in := range []ProcessInput{
		{Name: "Final test", Sequence: 30},
		{Name: "Core pressing", Sequence: 0},
		{Name: "Winding", Sequence: 10, DefaultResponsible: "Ravi", Description: "3-phase winding"},
	} {
		if _, err := f.engine.RegisterProcess(f.ctx, c.ID, in); err != nil {
			t.Fatalf("RegisterProcess(%s): %v", in.Name, err)
		}
	}

	got, err := f.engine.GetComponent(f.ctx, c.ID)
	if err != nil {
		t.Fatalf("GetComponent: %v", err)
	}
	want := []string{"Core pressing", "Winding", "Final test"}
	if len(got.Processes) != len(want) {
		t.Fatalf("processes = %d, want %d", len(got.Processes), len(want))
	}
	for i, name := range want {
		if got.Processes[i].Name != name {
			t.Errorf("process[%d] = %s, want %s", i, got.Processes[i].Name, name)
		}
	}
	if got.Processes[1].DefaultResponsible != "Ravi" || got.Processes[1].Description != "3-phase winding" {
		t.Errorf("optional fields not stored: %+v", got.Processes[1])
	}
}

func TestImportProcessesIsAtomic(t *testing.T) {
	f := newFixture(t)
	c, _ := f.motor("Stator", "Winding")

	_, err := f.engine.ImportProcesses(f.ctx, c.ID, []ProcessInput{
		{Name: "Varnishing", Sequence: 20},
		{Name: "Impregnation", Sequence: 0}, // clashes with Winding's sequence
	})
	expectKind(t, err, ErrConflict)

	procs, err := f.engine.ListProcesses(f.ctx, c.ID)
	if err != nil {
		t.Fatalf("ListProcesses: %v", err)
	}
	if len(procs) != 1 {
		t.Errorf("processes = %d after failed import, want 1", len(procs))
	}

	_, err = f.engine.ImportProcesses(f.ctx, c.ID, []ProcessInput{
		{Name: "Varnishing", Sequence: 20},
		{Name: "VARNISHING", Sequence: 30},
	})
	expectKind(t, err, ErrConflict)

	created, err := f.engine.ImportProcesses(f.ctx, c.ID, []ProcessInput{
		{Name: "Varnishing", Sequence: 20},
		{Name: "Final test", Sequence: 30},
	})
	if err != nil {
		t.Fatalf("ImportProcesses: %v", err)
	}
	if len(created) != 2 {
		t.Errorf("created = %d, want 2", len(created))
	}
	if got := len(f.events.OfType(events.ProcessRegistered)); got != 3 {
		t.Errorf("process_registered events = %d, want 3", got)
	}
}

func TestRegisterMaterialRequirement(t *testing.T) {
	f := newFixture(t)
	c, _ := f.motor("Stator")

	perUnit := decimal.RequireFromString("2.75")
	if _, err := f.engine.RegisterMaterialRequirement(f.ctx, c.ID, f.copper, perUnit); err != nil {
		t.Fatalf("RegisterMaterialRequirement: %v", err)
	}

	_, err := f.engine.RegisterMaterialRequirement(f.ctx, c.ID, f.copper, decimal.NewFromInt(1))
	expectKind(t, err, ErrConflict)

	_, err = f.engine.RegisterMaterialRequirement(f.ctx, c.ID, 999, decimal.NewFromInt(1))
	expectKind(t, err, ErrNotFound)

	_, err = f.engine.RegisterMaterialRequirement(f.ctx, c.ID, f.steel, decimal.Zero)
	expectKind(t, err, ErrValidation)

	reqs, err := f.engine.ListMaterialRequirements(f.ctx, c.ID)
	if err != nil {
		t.Fatalf("ListMaterialRequirements: %v", err)
	}
	if len(reqs) != 1 || !reqs[0].QuantityPerUnit.Equal(perUnit) {
		t.Errorf("requirements = %+v, want one of %s", reqs, perUnit)
	}
}

func TestListProcessesUnknownComponent(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ListProcesses(f.ctx, 42)
	expectKind(t, err, ErrNotFound)
}
