// This file is part of Testkit project, available at https://github.com/qrdl/testkit
// Copyright (c) 2024-2026 Ilya Caramishev. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at https://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dbmaintain

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/qrdl/testkit/dbsupport"
)

const DefaultMigrationsTable = "schema_migrations"

// MigrateConfig configures golang-migrate migrations, an alternative to script maintenance.
type MigrateConfig struct {
	// Dir is the directory holding <version>_<name>.up.sql and .down.sql files
	Dir   string
	Table string // DefaultMigrationsTable if empty
}

// Migrator runs golang-migrate migrations on the test database.
type Migrator struct {
	m   *migrate.Migrate
	src source.Driver
}

func NewMigrator(db *sql.DB, dialect dbsupport.Dialect, fsys fs.FS, cfg MigrateConfig) (*Migrator, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultMigrationsTable
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}

	driver, err := databaseDriver(db, dialect, cfg.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	src, err := iofs.New(fsys, cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, dialect.Name(), driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return &Migrator{m: m, src: src}, nil
}

func databaseDriver(db *sql.DB, dialect dbsupport.Dialect, table string) (database.Driver, error) {
	switch dialect.Name() {
	case "sqlite":
		return sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: table})
	case "postgres":
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
	case "mysql":
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
	}
	return nil, fmt.Errorf("%w %q", dbsupport.ErrUnknownDialect, dialect.Name())
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Down rolls back all migrations.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}

// Version returns the current version, zero and false when no migration was applied.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close releases the migration source, the database stays open.
func (m *Migrator) Close() error {
	return m.src.Close()
}

// Migrate applies all pending migrations from cfg.Dir of fsys.
func Migrate(db *sql.DB, dialect dbsupport.Dialect, fsys fs.FS, cfg MigrateConfig) error {
	m, err := NewMigrator(db, dialect, fsys, cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}
