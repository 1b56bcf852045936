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

// Package orm opens gorm over the test database connection or transaction.
package orm

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qrdl/testkit/dbsupport"
)

// Open opens gorm over conn, which is usually *sql.DB or *sql.Tx of the test.
func Open(conn gorm.ConnPool, dialect dbsupport.Dialect, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dialect.Name() {
	case "sqlite":
		dialector = &sqlite.Dialector{Conn: conn}
	case "postgres":
		dialector = postgres.New(postgres.Config{Conn: conn})
	case "mysql":
		dialector = mysql.New(mysql.Config{Conn: conn, SkipInitializeWithVersion: true})
	default:
		return nil, fmt.Errorf("%w %q", dbsupport.ErrUnknownDialect, dialect.Name())
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return db, nil
}

type zapWriter struct {
	log *zap.SugaredLogger
}

func (w zapWriter) Printf(format string, args ...any) {
	w.log.Debugf(format, args...)
}

// newLogger routes gorm logging to zap at debug level, slow queries and errors included
func newLogger(log *zap.Logger) logger.Interface {
	if log == nil {
		return logger.Discard
	}
	return logger.New(zapWriter{log: log.Sugar()}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Info,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
