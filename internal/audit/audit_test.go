package audit

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"wotrack/internal/store"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{Path: store.MemoryPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOperatorDefaultsToSystem(t *testing.T) {
	ctx := context.Background()
	if got := Operator(ctx); got != SystemOperator {
		t.Errorf("Operator() = %q, want %q", got, SystemOperator)
	}
	if got := Operator(WithOperator(ctx, "  ")); got != SystemOperator {
		t.Errorf("blank operator should fall back to system, got %q", got)
	}
	if got := Operator(WithOperator(ctx, "maria")); got != "maria" {
		t.Errorf("Operator() = %q, want maria", got)
	}
}

func TestRecordInsideTransaction(t *testing.T) {
	s := setupStore(t)
	ctx := WithOperator(context.Background(), "shift-lead")

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return Record(ctx, tx, Entry{
			Action:   ActionReconcile,
			Module:   ModuleStatus,
			RecordID: "4/11",
			Summary:  "pool reduced 100 -> 80",
			Before:   map[string]int{"in_use_quantity": 60},
			After:    map[string]int{"in_use_quantity": 48},
		})
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := List(ctx, s.DB(), Filter{Module: ModuleStatus})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Username != "shift-lead" || e.Action != ActionReconcile || e.RecordID != "4/11" {
		t.Errorf("unexpected entry %+v", e)
	}
	if !strings.Contains(e.BeforeValue, `"in_use_quantity":60`) || !strings.Contains(e.AfterValue, "48") {
		t.Errorf("before/after not stored as JSON: %+v", e)
	}
}

func TestRecordRolledBackWithTransaction(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_ = s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := Record(ctx, tx, Entry{Action: ActionCreate, Module: ModuleWorkOrder, RecordID: "1"}); err != nil {
			return err
		}
		return sql.ErrNoRows
	})

	entries, err := List(ctx, s.DB(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d after rollback, want 0", len(entries))
	}
}

func TestListFiltersAndOrdersNewestFirst(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	db := s.DB()
	for _, e := range []Entry{
		{Action: ActionCreate, Module: ModuleWorkOrder, RecordID: "1"},
		{Action: ActionCreate, Module: ModuleInstance, RecordID: "7"},
		{Action: ActionUpdate, Module: ModuleWorkOrder, RecordID: "1"},
	} {
		if err := Record(ctx, db, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := List(ctx, db, Filter{Module: ModuleWorkOrder, RecordID: "1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Action != ActionUpdate {
		t.Errorf("first entry action = %s, want newest (UPDATE)", entries[0].Action)
	}

	limited, _ := List(ctx, db, Filter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit ignored: got %d entries", len(limited))
	}
}

func TestCleanupKeepsRecentEntries(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	db := s.DB()
	if err := Record(ctx, db, Entry{Action: ActionCreate, Module: ModuleStage, RecordID: "1/PDI"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO audit_log (action, module, record_id, created_at)
		VALUES ('CREATE', 'stage', 'old', '2001-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("insert old entry: %v", err)
	}

	n, err := Cleanup(ctx, db, 30)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}
