package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNewStampsIDAndTime(t *testing.T) {
	evt := New(StageUpdated, 7, "7/Testing", nil)
	if evt.ID == "" {
		t.Error("expected event id")
	}
	if evt.At.IsZero() {
		t.Error("expected timestamp")
	}
	if evt.Type != StageUpdated || evt.WorkOrderID != 7 || evt.RecordID != "7/Testing" {
		t.Errorf("unexpected event: %+v", evt)
	}
	if other := New(StageUpdated, 7, "7/Testing", nil); other.ID == evt.ID {
		t.Error("event ids must be unique")
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("boom")
	f := Fanout{rec, nil, PublisherFunc(func(context.Context, Event) error { return boom })}

	err := f.Publish(context.Background(), New(WorkOrderCreated, 1, "1", nil))
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := len(rec.Events()); got != 1 {
		t.Errorf("recorder got %d events, want 1 even when a sibling fails", got)
	}
}

func TestRecorderOfType(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()
	rec.Publish(ctx, New(InstanceAdded, 1, "1", nil))
	rec.Publish(ctx, New(MaterialAssigned, 1, "1", nil))
	rec.Publish(ctx, New(InstanceAdded, 1, "2", nil))

	if got := len(rec.OfType(InstanceAdded)); got != 2 {
		t.Errorf("OfType(instance_added) = %d, want 2", got)
	}
	if got := len(rec.OfType(StageUpdated)); got != 0 {
		t.Errorf("OfType(stage_updated) = %d, want 0", got)
	}
}

func TestLogPublisherWritesDebugLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := Log(logger).Publish(context.Background(), New(MaterialAssigned, 4, "9/2", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"event_type":"material_assigned"`, `"work_order_id":4`, `"component":"events"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log %s missing %s", out, want)
		}
	}
}
