package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"yotoup/internal/shared"
)

// ConfigInit creates a config.toml from the embedded template.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if err := shared.CreateConfigFile(configPath); err != nil {
		return err
	}

	r.writePlain("Config file created at %s\n", configPath)
	r.writePlain("Set yoto.client_id before running 'yotoup auth login'.\n")
	return nil
}

// DBMigrate initializes the database and runs pending migrations.
func (r *Runner) DBMigrate(ctx context.Context, cmd *cli.Command) error {
	config := r.loadMigrationConfig(cmd.String("config"))

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("migrations complete for database: %v", config.Database.Path)
	return nil
}

// DBRollback rolls back the most recent migration.
func (r *Runner) DBRollback(ctx context.Context, cmd *cli.Command) error {
	config := r.loadMigrationConfig(cmd.String("config"))

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	r.logger.Info("rollback complete")
	return nil
}

// loadMigrationConfig loads config for database commands, creating the file
// from the template when it is missing.
func (r *Runner) loadMigrationConfig(configPath string) *shared.Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		}
	}
	return r.loadConfig(configPath)
}
