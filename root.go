package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"wotrack/internal/audit"
	"wotrack/internal/config"
	"wotrack/internal/events"
	"wotrack/internal/logging"
	"wotrack/internal/production"
	"wotrack/internal/store"
)

// commandContext carries lazily loaded configuration and logging shared by
// every subcommand.
type commandContext struct {
	configFlag   *string
	dbFlag       *string
	operatorFlag *string
	logOutput    io.Writer

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logger *slog.Logger
	closer io.Closer
}

func newRootCommand() *cobra.Command {
	var configFlag, dbFlag, operatorFlag string
	ctx := &commandContext{configFlag: &configFlag, dbFlag: &dbFlag, operatorFlag: &operatorFlag}

	rootCmd := &cobra.Command{
		Use:           "wotrack",
		Short:         "Work order process and material tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if ctx.closer != nil {
				_ = ctx.closer.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "SQLite database path (overrides configuration)")
	rootCmd.PersistentFlags().StringVar(&operatorFlag, "operator", "", "Operator name recorded in the audit log")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newSeedCommand(ctx))
	rootCmd.AddCommand(newBoardCommand(ctx))
	rootCmd.AddCommand(newStagesCommand(ctx))
	rootCmd.AddCommand(newImportProcessesCommand(ctx))
	rootCmd.AddCommand(newExportBoardCommand(ctx))

	return rootCmd
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if db := strings.TrimSpace(*c.dbFlag); db != "" {
			cfg.Database.Path = db
		}
		logger, closer, err := logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			File:   cfg.Logging.File,
			Output: c.logOutput,
		})
		if err != nil {
			c.configErr = err
			return
		}
		c.config, c.logger, c.closer = cfg, logger, closer
	})
	return c.config, c.configErr
}

// commandCtx attaches the --operator flag to the command's context.
func (c *commandContext) commandCtx(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if op := strings.TrimSpace(*c.operatorFlag); op != "" {
		ctx = audit.WithOperator(ctx, op)
	}
	return ctx
}

func (c *commandContext) openStore(ctx context.Context) (*store.Store, error) {
	cfg := c.config
	return store.Open(ctx, store.Options{
		Path:           cfg.Database.Path,
		BusyTimeout:    cfg.Database.BusyTimeout(),
		MaxAttempts:    cfg.Engine.MaxAttempts,
		InitialBackoff: cfg.Engine.RetryBackoff(),
	})
}

func (c *commandContext) newEngine(s *store.Store, publisher events.Publisher) *production.Engine {
	return production.New(s, production.Options{Publisher: publisher, Logger: c.logger})
}

// withEngine opens the store, runs fn with an engine that logs its events,
// and closes the store.
func (c *commandContext) withEngine(cmd *cobra.Command, fn func(ctx context.Context, s *store.Store, e *production.Engine) error) error {
	ctx := c.commandCtx(cmd)
	s, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s, c.newEngine(s, events.Log(c.logger)))
}
