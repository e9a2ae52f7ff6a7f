package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/k1tz03/Forkfall/internal/repository"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDatabase(func(run migrationRunner) error {
				return run.up()
			})
		},
	}, &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (one step by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return withDatabase(func(run migrationRunner) error {
				return run.down(steps)
			})
		},
	})
	return cmd
}

type migrationRunner struct {
	up   func() error
	down func(steps int) error
}

func withDatabase(fn func(migrationRunner) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url (or DATABASE_URL) is required for migrations")
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	db, err := repository.NewPostgresDB(cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	return fn(migrationRunner{
		up:   func() error { return repository.MigrateDB(db, logger) },
		down: func(steps int) error { return repository.RollbackDB(db, steps, logger) },
	})
}
