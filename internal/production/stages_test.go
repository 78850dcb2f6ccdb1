package production

import (
	"testing"

	"wotrack/internal/audit"
	"wotrack/internal/events"
	"wotrack/internal/models"
)

func TestStagesListedInBusinessOrder(t *testing.T) {
	f := newFixture(t)
	wo := f.workOrder()
	for _, s := range []struct {
		name models.StageName
		date string
	}{
		{models.StageDispatch, "2026-04-20"},
		{models.StageAssembly, "2026-04-01"},
		{models.StagePDI, "2026-04-12"},
		{models.StageTesting, "2026-04-08"},
	} {
		if _, err := f.engine.UpdateStage(f.ctx, wo, s.name, s.date); err != nil {
			t.Fatalf("UpdateStage(%s): %v", s.name, err)
		}
	}

	stages, err := f.engine.ListStages(f.ctx, wo)
	if err != nil {
		t.Fatalf("ListStages: %v", err)
	}
	want := []models.StageName{models.StageAssembly, models.StageTesting, models.StagePDI, models.StageDispatch}
	if len(stages) != len(want) {
		t.Fatalf("stages = %d, want %d", len(stages), len(want))
	}
	for i, name := range want {
		if stages[i].StageName != name {
			t.Errorf("stage[%d] = %s, want %s", i, stages[i].StageName, name)
		}
	}
	if got := len(f.events.OfType(events.StageUpdated)); got != 4 {
		t.Errorf("stage_updated events = %d, want 4", got)
	}
}

func TestUpdateStageUpserts(t *testing.T) {
	f := newFixture(t)
	wo := f.workOrder()
	if _, err := f.engine.UpdateStage(f.ctx, wo, models.StagePacking, "2026-04-15"); err != nil {
		t.Fatalf("UpdateStage: %v", err)
	}
	if _, err := f.engine.UpdateStage(f.ctx, wo, models.StagePacking, "2026-04-17"); err != nil {
		t.Fatalf("UpdateStage: %v", err)
	}
	stages, _ := f.engine.ListStages(f.ctx, wo)
	if len(stages) != 1 || stages[0].StageDate != "2026-04-17" {
		t.Errorf("stages = %+v", stages)
	}
}

func TestUpdateStageValidation(t *testing.T) {
	f := newFixture(t)
	wo := f.workOrder()

	_, err := f.engine.UpdateStage(f.ctx, wo, "Painting", "2026-04-15")
	expectKind(t, err, ErrValidation)

	_, err = f.engine.UpdateStage(f.ctx, wo, models.StageTesting, "yesterday")
	expectKind(t, err, ErrValidation)

	_, err = f.engine.UpdateStage(f.ctx, 999, models.StageTesting, "2026-04-15")
	expectKind(t, err, ErrNotFound)

	_, err = f.engine.ListStages(f.ctx, 999)
	expectKind(t, err, ErrNotFound)
}

func TestRecordBoardExport(t *testing.T) {
	f := newFixture(t)
	wo := f.workOrder()

	if err := f.engine.RecordBoardExport(audit.WithOperator(f.ctx, "dev"), wo, 4); err != nil {
		t.Fatalf("RecordBoardExport: %v", err)
	}
	entries, err := audit.List(f.ctx, f.store.DB(), audit.Filter{Action: audit.ActionExport})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Username != "dev" || entries[0].Module != audit.ModuleWorkOrder {
		t.Errorf("export entries = %+v", entries)
	}

	expectKind(t, f.engine.RecordBoardExport(f.ctx, 999, 0), ErrNotFound)
}
