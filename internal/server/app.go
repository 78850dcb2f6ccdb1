package server

import (
	"context"
	"log/slog"

	"wotrack/internal/production"
	"wotrack/internal/store"
	"wotrack/internal/websocket"
)

// ContextKey is the type used for request context keys.
type ContextKey string

const CtxRequestID ContextKey = "requestID"

// OperatorHeader names the acting operator of a mutating request.
const OperatorHeader = "X-Operator"

// App holds shared dependencies for the application.
type App struct {
	Store  *store.Store
	Engine *production.Engine
	Hub    *websocket.Hub
	Logger *slog.Logger
}

// RequestID returns the id assigned by the RequestID middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(CtxRequestID).(string)
	return id
}
