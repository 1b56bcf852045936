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

/*
Package database opens the test database and runs tests in transactions.

Without configuration, every [Open] creates a new private in-memory SQLite
database, so tests don't share data.
*/
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/qrdl/testkit/dbsupport"
)

const DefaultDriver = "sqlite"

type Config struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN is the data source name, empty means a new in-memory database for sqlite
	DSN string `yaml:"dsn" env:"DSN"`
	// Dialect is derived from Driver if empty
	Dialect      string        `yaml:"dialect" env:"DIALECT"`
	MaxOpenConns int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	ConnTimeout  time.Duration `yaml:"conn_timeout" env:"CONN_TIMEOUT"`
}

// DB is the test database connection pool.
type DB struct {
	*sql.DB
	Dialect dbsupport.Dialect
	DSN     string
	// keep holds a connection open so that an in-memory database lives as long as DB
	keep *sql.Conn
}

// MemoryDSN returns the DSN of a new uniquely named shared-cache in-memory SQLite database.
func MemoryDSN() string {
	return "file:" + uuid.NewString() + "?mode=memory&cache=shared"
}

func Open(cfg Config, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DefaultDriver
	}
	dialectName := cfg.Dialect
	if dialectName == "" {
		dialectName = driver
	}
	dialect, err := dbsupport.ForName(dialectName)
	if err != nil {
		return nil, err
	}

	dsn, memory := cfg.DSN, false
	if dsn == "" {
		if dialect.Name() != "sqlite" {
			return nil, fmt.Errorf("database dsn is required for %s", driver)
		}
		dsn, memory = MemoryDSN(), true
	} else if dialect.Name() == "sqlite" {
		memory = strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	timeout := cfg.ConnTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	db := &DB{DB: sqlDB, Dialect: dialect, DSN: dsn}
	if memory {
		db.keep, err = sqlDB.Conn(ctx)
	} else {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	log.Debug("database opened", zap.String("driver", driver), zap.String("dialect", dialect.Name()), zap.Bool("memory", memory))
	return db, nil
}

func (db *DB) Close() error {
	var err error
	if db.keep != nil {
		err = db.keep.Close()
	}
	return errors.Join(err, db.DB.Close())
}

// TestingT is the part of [testing.T] the package uses.
type TestingT interface {
	Helper()
	Fatalf(format string, args ...any)
	Cleanup(func())
}

// ForTest opens the database and closes it at the end of the test.
func ForTest(t TestingT, cfg Config, log *zap.Logger) *DB {
	t.Helper()
	db, err := Open(cfg, log)
	if err != nil {
		t.Fatalf("cannot open test database: %v", err)
		return nil
	}
	t.Cleanup(func() { db.Close() })
	return db
}
