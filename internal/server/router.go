package server

import (
	"net/http"

	"wotrack/internal/handlers/manufacturing"
	"wotrack/internal/response"
	"wotrack/internal/websocket"
)

// Routes builds the HTTP handler: health check, live event stream and the
// JSON API, wrapped in the standard middleware chain.
func (a *App) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Store.DB().PingContext(r.Context()); err != nil {
			response.Err(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		response.JSON(w, map[string]any{"status": "ok", "clients": a.hubClients()})
	})

	if a.Hub != nil {
		mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			websocket.HandleWebSocket(a.Hub, w, r)
		})
	}

	mux.Handle("/api/v1/", &manufacturing.Handler{Engine: a.Engine, Store: a.Store, Logger: a.Logger})

	return Chain(mux,
		RequestIDMiddleware,
		RecoverMiddleware(a.Logger),
		LoggingMiddleware(a.Logger),
		OperatorMiddleware,
		GzipMiddleware,
	)
}

func (a *App) hubClients() int {
	if a.Hub == nil {
		return 0
	}
	return a.Hub.ClientCount()
}
