package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/khushi89012/syook/common/database"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationStatus is the schema version after Migrate.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate applies the embedded schema migrations to the database at connString.
// The run is bounded by database.MigrateTimeout; when ctx ends first, migrate
// is asked to stop after the current step and ctx's error is returned.
func Migrate(ctx context.Context, connString string) (*MigrationStatus, error) {
	ctx, cancel := database.MigrateContext(ctx)
	defer cancel()

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: initialize migrations: %v", ErrPersistence, err)
	}
	defer m.Close()

	done := make(chan error, 1)
	go func() { done <- m.Up() }()

	var upErr error
	select {
	case upErr = <-done:
	case <-ctx.Done():
		m.GracefulStop <- true
		<-done
		return nil, fmt.Errorf("%w: run migrations: %v", ErrPersistence, ctx.Err())
	}

	status := &MigrationStatus{Changed: true}
	if upErr != nil {
		if !errors.Is(upErr, migrate.ErrNoChange) {
			return nil, fmt.Errorf("%w: run migrations: %v", ErrPersistence, upErr)
		}
		status.Changed = false
	}

	version, dirty, err := m.Version()
	if err != nil {
		return nil, fmt.Errorf("read migration version: %w", err)
	}
	status.Version = version
	status.Dirty = dirty
	return status, nil
}
