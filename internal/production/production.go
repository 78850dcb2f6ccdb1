// Package production is the work order allocation engine. It owns the
// component catalog, work order instances, the per-instance material pool
// and the capacity-checked process status machine, and keeps process,
// instance and work order status consistent inside one transaction per
// operation.
//
// Status values are always derived from quantities (see DeriveProcessState
// and DeriveAggregateState) and are recomputed from the rows below them after
// every change; nothing is counted incrementally.
//
// Writes to an instance's shared pool finish with an optimistic version
// check on the instance row. A concurrent writer makes the check fail, the
// transaction is rolled back and run again from the start, so capacity checks
// always see committed sibling rows.
package production

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"wotrack/internal/events"
	"wotrack/internal/logging"
	"wotrack/internal/store"
	"wotrack/internal/validation"
)

// Options configures an Engine.
type Options struct {
	// Publisher receives change events after commit. Defaults to events.Discard.
	Publisher events.Publisher
	Logger    *slog.Logger
	// Now is the clock used for timestamps and default completion dates.
	Now func() time.Time
}

// Engine runs the allocation operations against a store.
type Engine struct {
	store     *store.Store
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New builds an engine over s.
func New(s *store.Store, opts Options) *Engine {
	if opts.Publisher == nil {
		opts.Publisher = events.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:     s,
		publisher: opts.Publisher,
		logger:    logging.NewComponentLogger(opts.Logger, "production"),
		now:       opts.Now,
	}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// write runs fn in a retried transaction and classifies the final error.
func (e *Engine) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return classify(op, e.store.WithTx(ctx, fn))
}

// publish delivers evt; failures are logged and never reach the caller.
func (e *Engine) publish(ctx context.Context, evt events.Event) {
	if err := e.publisher.Publish(ctx, evt); err != nil {
		e.logger.Warn("event publication failed",
			logging.String("event_type", evt.Type),
			logging.String("record_id", evt.RecordID),
			logging.Int64(logging.FieldWorkOrderID, evt.WorkOrderID),
			logging.Error(err))
	}
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339Nano)
}

func (e *Engine) today() string {
	return e.now().Format(validation.DateLayout)
}

// nameKey is the case-insensitive identity of a catalog name.
func nameKey(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}
