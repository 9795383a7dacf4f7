package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hans/hans/internal/config"
	"github.com/hans/hans/internal/platform/auth"
	"github.com/hans/hans/internal/platform/db"
	"github.com/hans/hans/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hans-admin",
		Short: "Care recipient admin API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(templateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the admin API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format(time.RFC3339)
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

// importCmd runs the same bulk import as the upload endpoint, for rosters
// handed over outside the console.
func importCmd() *cobra.Command {
	var (
		locationRaw string
		path        string
		actor       string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a care recipient roster (CSV or XLSX) for one location",
		RunE: func(cmd *cobra.Command, args []string) error {
			locationID, err := uuid.Parse(locationRaw)
			if err != nil {
				return fmt.Errorf("--location: %w", err)
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			warnIfInsecure(logger, cfg)

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svcs, err := newServices(cfg, logger, pool, prometheus.NewRegistry())
			if err != nil {
				return err
			}

			ctx = auth.WithUser(ctx, actor, actor, []string{auth.RoleAdmin})
			result, err := svcs.recipients.Import(ctx, locationID, path, f)
			out := cmd.OutOrStdout()
			if result != nil {
				for _, line := range result.Lines() {
					fmt.Fprintln(out, line)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&locationRaw, "location", "", "Care provider location id")
	cmd.Flags().StringVar(&path, "file", "", "Path to the roster file")
	cmd.Flags().StringVar(&actor, "actor", "cli", "Name recorded as created_by")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func templateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the roster import template spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeTemplate(path)
		},
	}
	cmd.Flags().StringVar(&path, "out", "care-recipients-import.xlsx", "Output file")
	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	warnIfInsecure(logger, cfg)

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	store, closeStore, err := newFlashStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	svcs, err := newServices(cfg, logger, pool, reg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}

	e, err := newServer(cfg, logger, svcs, store, pool, reg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("hashing", cfg.HashingMode().String()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
