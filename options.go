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
	"io/fs"

	"github.com/qrdl/testkit/config"
	"github.com/qrdl/testkit/database"
	"github.com/qrdl/testkit/dataset"
	"go.uber.org/zap"
)

type settings struct {
	cfg      *config.Config
	log      *zap.Logger
	txMode   *database.TxMode
	strategy *dataset.LoadStrategy
	load     []string
	loadSet  bool
	expect   []string
	expected bool
	hooks    []func(field string, m any)
	dataFS   fs.FS
	scriptFS fs.FS
}

// Option changes how [Setup] prepares the test.
type Option func(*settings)

// WithConfig uses cfg instead of the configuration loaded from files and environment.
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithLogger uses log instead of the logger built from the configuration.
func WithLogger(log *zap.Logger) Option {
	return func(s *settings) { s.log = log }
}

/*
LoadDataSet loads the data set files for the test, replacing the data sets of the
[DataSet] marker. Without files the default data set of the test is loaded, see
[dataset.DefaultFile].
*/
func LoadDataSet(files ...string) Option {
	return func(s *settings) {
		s.load = files
		s.loadSet = true
	}
}

// WithLoadStrategy overrides the strategy of the marker and the configuration.
func WithLoadStrategy(strategy dataset.LoadStrategy) Option {
	return func(s *settings) { s.strategy = &strategy }
}

// ExpectDataSet compares the database with the files at the end of the test, without files with the default expected data set.
func ExpectDataSet(files ...string) Option {
	return func(s *settings) {
		s.expect = files
		s.expected = true
	}
}

func WithTxMode(mode database.TxMode) Option {
	return func(s *settings) { s.txMode = &mode }
}

// AfterCreateMock calls fn for every mock field after the mock is initialized.
func AfterCreateMock(fn func(field string, m any)) Option {
	return func(s *settings) { s.hooks = append(s.hooks, fn) }
}

// WithDataSetFS reads data sets from fsys instead of the configured directory.
func WithDataSetFS(fsys fs.FS) Option {
	return func(s *settings) { s.dataFS = fsys }
}

// WithScriptFS reads maintenance scripts and migrations from fsys instead of the project directory.
func WithScriptFS(fsys fs.FS) Option {
	return func(s *settings) { s.scriptFS = fsys }
}
