package migrations

import (
	"bytes"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/hashicorp/go-hclog"

	"github.com/Mayank009/cashew/internal/config"
)

// templateFS contains the SQL migrations with placeholders for table names.
//
//go:embed sql/*.sql.tmpl
var templateFS embed.FS

const templateSuffix = ".tmpl"

// Render returns the migration files keyed by file name, with the configured
// table names substituted.
func Render(tables config.Tables) (map[string][]byte, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	entries, err := fs.ReadDir(templateFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: read templates: %w", err)
	}

	files := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		tmpl, err := template.ParseFS(templateFS, path.Join("sql", name))
		if err != nil {
			return nil, fmt.Errorf("migrations: parse %s: %w", name, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, tables); err != nil {
			return nil, fmt.Errorf("migrations: render %s: %w", name, err)
		}
		files[strings.TrimSuffix(name, templateSuffix)] = buf.Bytes()
	}

	return files, nil
}

// WriteFiles renders the migrations into dir and returns the written paths
// in version order.
func WriteFiles(dir string, tables config.Tables) ([]string, error) {
	files, err := Render(tables)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("migrations: create %s: %w", dir, err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	written := make([]string, 0, len(names))
	for _, name := range names {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, files[name], 0o644); err != nil {
			return nil, fmt.Errorf("migrations: write %s: %w", p, err)
		}
		written = append(written, p)
	}

	return written, nil
}

// Migrator applies the rendered migrations to a Postgres database.
type Migrator struct {
	db     *sql.DB
	tables config.Tables
	logger hclog.Logger
}

// New creates a Migrator for the given tables.
func New(db *sql.DB, tables config.Tables, logger hclog.Logger) *Migrator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Migrator{db: db, tables: tables, logger: logger}
}

// MigrationsTable is the golang-migrate bookkeeping table. It is derived from
// the subscriptions table so differently configured installs never share it.
func (m *Migrator) MigrationsTable() string {
	return m.tables.Subscriptions + "_schema_migrations"
}

func (m *Migrator) open() (*migrate.Migrate, func(), error) {
	dir, err := os.MkdirTemp("", "cashew-migrations-")
	if err != nil {
		return nil, nil, fmt.Errorf("migrations: create temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	if _, err := WriteFiles(dir, m.tables); err != nil {
		cleanup()
		return nil, nil, err
	}

	driver, err := postgres.WithInstance(m.db, &postgres.Config{MigrationsTable: m.MigrationsTable()})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrations: create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(os.DirFS(dir), ".")
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrations: open rendered migrations: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		_ = sourceDriver.Close()
		cleanup()
		return nil, nil, fmt.Errorf("migrations: init migrate instance: %w", err)
	}

	return mg, func() {
		_ = sourceDriver.Close()
		cleanup()
	}, nil
}

// Up applies all pending database migrations. It is safe to call multiple
// times; when the database schema is up to date, the function is a no-op.
func (m *Migrator) Up() error {
	mg, done, err := m.open()
	if err != nil {
		return err
	}
	defer done()

	currentVersion := uint(0)
	if v, dirty, verr := mg.Version(); verr == nil {
		currentVersion = v
		m.logger.Info("current schema version", "version", v, "dirty", dirty)
	} else if errors.Is(verr, migrate.ErrNilVersion) {
		m.logger.Info("no existing migration version (fresh database)")
	} else {
		m.logger.Warn("unable to determine current version", "error", verr)
	}

	if err := mg.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("database is up to date", "version", currentVersion)
			return nil
		}
		return fmt.Errorf("migrations: apply: %w", err)
	}

	if v, _, err := mg.Version(); err == nil {
		m.logger.Info("applied migrations", "version", v)
	} else {
		m.logger.Warn("applied migrations but failed to read new version", "error", err)
	}

	return nil
}

// FixDirtyDatabase rolls the recorded version back past a failed migration
// so the next Up retries it. A clean database is left alone.
func (m *Migrator) FixDirtyDatabase() error {
	mg, done, err := m.open()
	if err != nil {
		return err
	}
	defer done()

	v, dirty, err := mg.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return fmt.Errorf("migrations: read version: %w", err)
	}
	if !dirty {
		m.logger.Info("database is not dirty", "version", v)
		return nil
	}

	target := previousVersion(v)
	if err := mg.Force(target); err != nil {
		return fmt.Errorf("migrations: force version %d: %w", target, err)
	}

	m.logger.Warn("cleared dirty migration state", "failed_version", v, "forced_version", target)
	return nil
}

// previousVersion is the version to force after v failed half way. Failing
// the first migration leaves no version at all.
func previousVersion(v uint) int {
	if v <= 1 {
		return database.NilVersion
	}
	return int(v) - 1
}

// ForceVersion records v as the current version without running anything.
func (m *Migrator) ForceVersion(v uint) error {
	mg, done, err := m.open()
	if err != nil {
		return err
	}
	defer done()

	if err := mg.Force(int(v)); err != nil {
		return fmt.Errorf("migrations: force version %d: %w", v, err)
	}
	return nil
}

// IsDirty reports whether err comes from a previously failed migration.
func IsDirty(err error) bool {
	var dirty migrate.ErrDirty
	return errors.As(err, &dirty)
}

// UpWithDirtyFix runs Up and, when the database was left dirty by a failed
// run, clears the dirty state once and retries.
func (m *Migrator) UpWithDirtyFix() error {
	err := m.Up()
	if err == nil || !IsDirty(err) {
		return err
	}

	m.logger.Warn("dirty database detected, attempting to fix", "error", err)
	if fixErr := m.FixDirtyDatabase(); fixErr != nil {
		m.logger.Error("failed to fix dirty database", "error", fixErr)
		return err
	}
	return m.Up()
}
