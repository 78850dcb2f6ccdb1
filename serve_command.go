package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"wotrack/internal/events"
	"wotrack/internal/logging"
	"wotrack/internal/server"
	"wotrack/internal/store"
	"wotrack/internal/websocket"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and live dashboard stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				ctx.config.Server.Addr = addr
			}
			signalCtx, cancel := signal.NotifyContext(ctx.commandCtx(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return ctx.serve(signalCtx, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides configuration)")
	return cmd
}

// serve owns the database for the lifetime of ctx. When ready is non-nil it
// receives the bound listener address once the server accepts connections.
func (c *commandContext) serve(ctx context.Context, ready chan<- string) error {
	cfg := c.config
	logger := logging.NewComponentLogger(c.logger, "serve")

	if cfg.Database.Path != store.MemoryPath {
		lock := flock.New(cfg.Database.Path + ".lock")
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire database lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("database %s is already served by another process", cfg.Database.Path)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Warn("failed to release database lock", logging.Error(err))
			}
		}()
	}

	s, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	hub := websocket.NewHub(c.logger, websocket.Options{
		WriteTimeout: cfg.WebSocket.WriteTimeout(),
		PingInterval: cfg.WebSocket.PingInterval(),
	})
	app := &server.App{
		Store:  s,
		Engine: c.newEngine(s, events.Fanout{hub, events.Log(c.logger)}),
		Hub:    hub,
		Logger: c.logger,
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}
	srv := &http.Server{
		Handler:           app.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("wotrack listening",
		logging.String("addr", ln.Addr().String()),
		logging.String("database", cfg.Database.Path),
		logging.Bool("in_memory", cfg.Database.Path == store.MemoryPath))
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
