// package repositories provides SQLite persistence for state that must
// survive process restarts: OAuth tokens and the remote upload cache.
//
// Upload sessions themselves are held in memory by the uploads registry and
// are deliberately not persisted here.
package repositories

import (
	"database/sql"
	"fmt"

	"yotoup/internal/shared"
)

// Open opens the SQLite database at path, applies connection pool settings
// and runs pending migrations.
func Open(cfg shared.DatabaseConfig) (*sql.DB, error) {
	db, err := shared.NewDatabase(cfg.Path)
	if err != nil {
		return nil, err
	}

	shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
