package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is relative to the repository root, where the binaries are started.
const DefaultDir = "pkg/migrate/migrations"

// Migrator applies the SQL files in one directory through a goose provider.
// It never closes the *sql.DB it was given.
type Migrator struct {
	provider *goose.Provider
}

// New builds a Migrator for Postgres.
func New(db *sql.DB, dir string) (*Migrator, error) {
	return NewWithDialect(db, dir, goose.DialectPostgres)
}

// NewWithDialect exists so tests can run the real files against sqlite.
func NewWithDialect(db *sql.DB, dir string, dialect goose.Dialect) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dir == "" {
		return nil, errors.New("dir is required")
	}
	provider, err := goose.NewProvider(dialect, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider for %q: %w", dir, err)
	}
	return &Migrator{provider: provider}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) ([]*goose.MigrationResult, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return results, fmt.Errorf("goose up: %w", err)
	}
	return results, nil
}

// Down rolls back the newest applied migration.
func (m *Migrator) Down(ctx context.Context) (*goose.MigrationResult, error) {
	result, err := m.provider.Down(ctx)
	if err != nil {
		return result, fmt.Errorf("goose down: %w", err)
	}
	return result, nil
}

// Redo rolls back the newest migration and applies it again.
func (m *Migrator) Redo(ctx context.Context) error {
	if _, err := m.Down(ctx); err != nil {
		return err
	}
	if _, err := m.provider.UpByOne(ctx); err != nil {
		return fmt.Errorf("goose up-by-one: %w", err)
	}
	return nil
}

func (m *Migrator) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	return m.provider.Status(ctx)
}

func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}

// To moves the schema up or down until target is the newest applied version.
func (m *Migrator) To(ctx context.Context, target int64) error {
	current, err := m.Version(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < target:
		if _, err := m.provider.UpTo(ctx, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	case current > target:
		if _, err := m.provider.DownTo(ctx, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

// ParseVersion accepts the YYYYMMDDHHMMSS prefix of a migration file.
func ParseVersion(raw string) (int64, error) {
	if len(raw) != len(versionLayout) {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", raw)
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", raw, err)
	}
	return version, nil
}
