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

package testkit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/qrdl/testkit/config"
	"github.com/qrdl/testkit/database"
	"github.com/qrdl/testkit/dataset"
	"github.com/qrdl/testkit/dbmaintain"
	"github.com/qrdl/testkit/dbsupport"
	"github.com/qrdl/testkit/orm"
	"github.com/qrdl/testkit/sqlscript"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNoDatabase = errors.New("test database is not open")

var loadConfig = sync.OnceValues(config.Load)

// maintenance serializes schema updates of one database, tests running in parallel
// wait for the first one to bring the schema up to date
type maintenance struct {
	mu   sync.Mutex
	done bool
}

var maintained sync.Map // DSN -> *maintenance

// Env is the environment of a test set up by [Setup].
type Env struct {
	T      T
	Config *config.Config
	Log    *zap.Logger
	// DB is nil unless the fixture or the options use the database
	DB   *database.DB
	Tx   *sql.Tx
	Gorm *gorm.DB

	fixture  string
	dataFS   fs.FS
	scriptFS fs.FS
}

func newEnv(t T, fixture string, s *settings) (*Env, error) {
	cfg := s.cfg
	if cfg == nil {
		var err error
		if cfg, err = loadConfig(); err != nil {
			return nil, err
		}
	}
	log := s.log
	if log == nil {
		var err error
		if log, err = cfg.Logger(); err != nil {
			return nil, err
		}
	}
	e := &Env{
		T:        t,
		Config:   cfg,
		Log:      log.With(zap.String("test", t.Name())),
		fixture:  fixture,
		dataFS:   s.dataFS,
		scriptFS: s.scriptFS,
	}
	if e.dataFS == nil {
		e.dataFS = os.DirFS(cfg.DataSet.Dir)
	}
	if e.scriptFS == nil {
		e.scriptFS = os.DirFS(cfg.BaseDir())
	}
	return e, nil
}

// Querier returns the test transaction if there is one, the database otherwise.
func (e *Env) Querier() dbsupport.Querier {
	if e.Tx != nil {
		return e.Tx
	}
	if e.DB == nil {
		return nil
	}
	return e.DB
}

// openDatabase opens the test database on first use and updates its schema
func (e *Env) openDatabase() (*database.DB, error) {
	if e.DB != nil {
		return e.DB, nil
	}
	db, err := database.Open(e.Config.Database.Config, e.Log)
	if err != nil {
		return nil, err
	}
	e.T.Cleanup(func() {
		if err := db.Close(); err != nil {
			e.Log.Warn("failed to close test database", zap.Error(err))
		}
	})
	e.DB = db

	v, _ := maintained.LoadOrStore(db.DSN, &maintenance{})
	m := v.(*maintenance)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return db, nil
	}
	if err := e.updateSchema(context.Background()); err != nil {
		return nil, err
	}
	m.done = true
	return db, nil
}

/*
NewMaintainer creates the maintainer of db configured by cfg, script locations are
directories in fsys.
*/
func NewMaintainer(cfg *config.Config, db *database.DB, fsys fs.FS, log *zap.Logger) *dbmaintain.Maintainer {
	mc := cfg.Maintain
	return &dbmaintain.Maintainer{
		DB:      db,
		Dialect: db.Dialect,
		Source: dbmaintain.Source{
			FS:                fsys,
			Locations:         mc.Locations,
			Patterns:          mc.Patterns,
			Ignore:            mc.Ignore,
			PostprocessingDir: mc.PostprocessingDir,
		},
		Registry: &dbmaintain.Registry{
			DB:         db,
			Dialect:    db.Dialect,
			Table:      mc.RegistryTable,
			AutoCreate: mc.AutoCreateRegistry,
		},
		Log:                log,
		FromScratch:        mc.FromScratch,
		DisableConstraints: mc.DisableConstraints,
		ParserOptions:      sqlscript.Options{BackslashEscaping: mc.BackslashEscaping},
	}
}

// MigrateConfig returns the golang-migrate settings of cfg.
func MigrateConfig(cfg *config.Config) dbmaintain.MigrateConfig {
	return dbmaintain.MigrateConfig{Dir: filepath.ToSlash(cfg.Migrate.Dir), Table: cfg.Migrate.Table}
}

func (e *Env) updateSchema(ctx context.Context) error {
	if e.Config.Maintain.Enabled {
		if _, err := NewMaintainer(e.Config, e.DB, e.scriptFS, e.Log).Update(ctx); err != nil {
			return fmt.Errorf("database maintenance failed: %w", err)
		}
	}
	if e.Config.Migrate.Enabled {
		if err := dbmaintain.Migrate(e.DB.DB, e.DB.Dialect, e.scriptFS, MigrateConfig(e.Config)); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
	}
	return nil
}

func (e *Env) begin(mode database.TxMode) error {
	db, err := e.openDatabase()
	if err != nil {
		return err
	}
	e.Tx, err = db.BeginTest(e.T, mode)
	return err
}

func (e *Env) openGorm() (*gorm.DB, error) {
	if e.Gorm != nil {
		return e.Gorm, nil
	}
	db, err := e.openDatabase()
	if err != nil {
		return nil, err
	}
	var conn gorm.ConnPool = db.DB
	if e.Tx != nil {
		conn = e.Tx
	}
	e.Gorm, err = orm.Open(conn, db.Dialect, e.Log)
	return e.Gorm, err
}

func (e *Env) readOptions() dataset.ReadOptions {
	return dataset.ReadOptions{NullToken: e.Config.DataSet.NullToken}
}

func (e *Env) read(files []string, defaultFile func(fs.FS, string, string) (string, error)) (*dataset.DataSet, error) {
	if len(files) == 0 {
		name, err := defaultFile(e.dataFS, e.fixture, e.T.Name())
		if err != nil {
			return nil, err
		}
		files = []string{name}
	}
	return dataset.ReadAll(e.dataFS, files, e.readOptions())
}

// LoadDataSet loads the files into the database, without files the default data set of the test.
func (e *Env) LoadDataSet(strategy dataset.LoadStrategy, files ...string) error {
	if _, err := e.openDatabase(); err != nil {
		return err
	}
	ds, err := e.read(files, dataset.DefaultFile)
	if err != nil {
		return err
	}
	loader := dataset.Loader{DB: e.Querier(), Dialect: e.DB.Dialect, Log: e.Log}
	if err := loader.Load(context.Background(), ds, strategy); err != nil {
		return fmt.Errorf("failed to load data set: %w", err)
	}
	e.Log.Debug("data set loaded", zap.Strings("files", files), zap.Stringer("strategy", strategy))
	return nil
}

/*
AssertDataSet fails the test unless the database holds the rows of the files,
without files of the default expected data set of the test. Only the columns the
data set names are compared, other rows of the tables are ignored.
*/
func (e *Env) AssertDataSet(files ...string) bool {
	e.T.Helper()
	diff, err := e.compare(files)
	if err != nil {
		e.T.Errorf("cannot verify data set: %v", err)
		return false
	}
	if !diff.Empty() {
		e.T.Errorf("%s", diff)
		return false
	}
	return true
}

func (e *Env) compare(files []string) (*dataset.Difference, error) {
	if e.DB == nil {
		return nil, ErrNoDatabase
	}
	expected, err := e.read(files, dataset.DefaultExpectedFile)
	if err != nil {
		return nil, err
	}
	return dataset.Compare(context.Background(), e.Querier(), e.DB.Dialect, expected)
}
