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
	"fmt"
	"reflect"
	"strings"

	"github.com/qrdl/testkit/database"
	"github.com/qrdl/testkit/dataset"
	"go.uber.org/zap"
)

// T is the part of [testing.T] Setup uses.
type T interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
	Failed() bool
	Name() string
	TempDir() string
}

/*
MockCreatedHook is implemented by fixtures that prepare their mocks, e.g. define
behaviors shared by all tests. It is called for every mock field right after the
mock is initialized, m is the *mock.Mock[T] of the field.
*/
type MockCreatedHook interface {
	AfterCreateMock(field string, m any)
}

/*
DataSet is embedded into a fixture to load data sets before each of its tests:

	type Suite struct {
	    testkit.DataSet `dataset:"users.xml,roles.yaml" strategy:"refresh" expected:"users-result.xml"`
	}

Without the dataset tag the default data set of the test is loaded, <Fixture>-<Test>.xml
if it exists, <Fixture>.xml otherwise, .yaml and .yml files are looked up too. The
strategy tag overrides the configured load strategy. With the expected tag the
database is compared with the files at the end of the test, expected:"" means the
default expected data set <Fixture>.<Test>-result.xml.
*/
type DataSet struct{}

var dataSetType = reflect.TypeFor[DataSet]()

/*
Setup fills the fields of fixture, a pointer to struct, for the test and registers
their cleanup with t. See the package documentation for the supported fields. Setup
panics if fixture is not a pointer to struct and fails the test if a field cannot
be set up.
*/
func Setup(t T, fixture any, opts ...Option) *Env {
	t.Helper()
	v := reflect.ValueOf(fixture)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("fixture must be a non-nil pointer to struct, got %T", fixture))
	}

	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	e, err := newEnv(t, v.Elem().Type().Name(), s)
	if err != nil {
		t.Fatalf("testkit: %v", err)
		return nil
	}
	if err := e.setup(fixture, v.Elem(), s); err != nil {
		t.Fatalf("testkit: %v", err)
		return nil
	}
	return e
}

func (e *Env) setup(fixture any, v reflect.Value, s *settings) error {
	fields, marker, err := scan(v)
	if err != nil {
		return err
	}
	steps := []func() error{
		func() error { return e.setTempFiles(fields) },
		func() error { return e.setFiles(fields) },
		func() error { return e.setMocks(fixture, fields, s.hooks) },
		func() error { return e.setDummies(fields) },
		func() error { return e.setDatabase(fields, s.txMode, marker != nil || s.loadSet || s.expected) },
		func() error { return e.setDataSets(marker, s) },
		func() error { return e.inject(fields) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	e.Log.Debug("fixture set up", zap.String("fixture", e.fixture), zap.Int("fields", len(fields)))
	return nil
}

func (e *Env) setDatabase(fields []*field, mode *database.TxMode, dataSets bool) error {
	dbFields := filter(fields, "db", "tx", "gorm")
	if len(dbFields) == 0 && !dataSets && mode == nil {
		return nil
	}

	txMode, err := database.ParseTxMode(e.Config.Database.Transaction)
	if err != nil {
		return err
	}
	if mode != nil {
		txMode = *mode
	}
	if txMode == database.TxDisabled && len(filter(fields, "tx")) > 0 {
		txMode = database.TxRollback
	}
	if err := e.begin(txMode); err != nil {
		return err
	}

	for _, f := range dbFields {
		var value any
		switch f.kind {
		case "db":
			switch f.typ {
			case reflect.TypeOf(e.DB):
				value = e.DB
			case reflect.TypeOf(e.DB.DB):
				value = e.DB.DB
			default:
				return f.errorf("testkit:\"db\" requires *sql.DB or *database.DB")
			}
		case "tx":
			if f.typ != reflect.TypeOf(e.Tx) {
				return f.errorf("testkit:\"tx\" requires *sql.Tx")
			}
			value = e.Tx
		case "gorm":
			g, err := e.openGorm()
			if err != nil {
				return err
			}
			if f.typ != reflect.TypeOf(g) {
				return f.errorf("testkit:\"gorm\" requires *gorm.DB")
			}
			value = g
		}
		f.value.Set(reflect.ValueOf(value))
	}
	return nil
}

func (e *Env) setDataSets(marker *reflect.StructField, s *settings) error {
	var (
		strategy dataset.LoadStrategy
		load     = s.loadSet
		files    = s.load
		expect   = s.expected
		expected = s.expect
		err      error
	)
	if strategy, err = dataset.ParseLoadStrategy(e.Config.DataSet.LoadStrategy); err != nil {
		return err
	}
	if marker != nil {
		if name := marker.Tag.Get("strategy"); name != "" {
			if strategy, err = dataset.ParseLoadStrategy(name); err != nil {
				return fmt.Errorf("data set marker: %w", err)
			}
		}
		if !load {
			load, files = true, splitList(marker.Tag.Get("dataset"))
		}
		if tag, ok := marker.Tag.Lookup("expected"); ok && !expect {
			expect, expected = true, splitList(tag)
		}
	}
	if s.strategy != nil {
		strategy = *s.strategy
	}

	if load {
		if err := e.LoadDataSet(strategy, files...); err != nil {
			return err
		}
	}
	if expect {
		// registered after the transaction is begun so that it runs before its end
		e.T.Cleanup(func() {
			e.T.Helper()
			e.AssertDataSet(expected...)
		})
	}
	return nil
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
