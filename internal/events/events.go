// Package events defines the change notifications emitted after every
// committed engine mutation. Delivery is best-effort: publishers report
// failures, and the engine logs them without undoing the state change.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"wotrack/internal/logging"
)

// Event types.
const (
	WorkOrderCreated     = "work_order_created"
	InstanceAdded        = "instance_added"
	MaterialAssigned     = "material_assigned"
	ProcessStatusUpdated = "process_status_updated"
	StageUpdated         = "stage_updated"
	ProcessMaterialUsed  = "process_material_used"
	ComponentRegistered  = "component_registered"
	ProcessRegistered    = "process_registered"
)

// Event is a change notification. Data carries the updated row.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	WorkOrderID int64     `json:"work_order_id,omitempty"`
	RecordID    string    `json:"record_id"`
	Data        any       `json:"data,omitempty"`
	At          time.Time `json:"at"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType string, workOrderID int64, recordID string, data any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		WorkOrderID: workOrderID,
		RecordID:    recordID,
		Data:        data,
		At:          time.Now().UTC(),
	}
}

// Publisher delivers events to observers.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, evt Event) error

func (f PublisherFunc) Publish(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// Log returns a publisher that writes every event to logger at debug level.
func Log(logger *slog.Logger) Publisher {
	logger = logging.NewComponentLogger(logger, "events")
	return PublisherFunc(func(ctx context.Context, evt Event) error {
		logger.DebugContext(ctx, "event published",
			logging.String("event_type", evt.Type),
			logging.String("event_id", evt.ID),
			logging.Int64(logging.FieldWorkOrderID, evt.WorkOrderID),
			logging.String("record_id", evt.RecordID),
		)
		return nil
	})
}

// Fanout publishes to every target and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, evt := range r.Events() {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}
