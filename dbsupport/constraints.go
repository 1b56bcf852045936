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

package dbsupport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

/*
ConstraintsDisabler removes the constraints that stand in the way of loading
partial data sets: foreign keys, not-null columns and checks. Failures are logged
and the remaining tables are still processed.
*/
type ConstraintsDisabler struct {
	Dialect Dialect
	Log     *zap.Logger
	// Exclude lists tables to leave untouched, e.g. the script registry
	Exclude []string
}

// Disable disables constraints of all tables, it returns the joined errors of the tables that failed.
func (c ConstraintsDisabler) Disable(ctx context.Context, q Querier) error {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	tables, err := c.Dialect.Tables(ctx, q)
	if err != nil {
		return err
	}

	var errs []error
	for _, table := range tables {
		if c.excluded(table) {
			continue
		}
		if err := c.Dialect.DisableReferentialConstraints(ctx, q, table); err != nil {
			log.Warn("cannot disable referential constraints", zap.String("table", table), zap.Error(err))
			errs = append(errs, fmt.Errorf("table %s: %w", table, err))
		}
		if err := c.Dialect.DisableValueConstraints(ctx, q, table); err != nil {
			log.Warn("cannot disable value constraints", zap.String("table", table), zap.Error(err))
			errs = append(errs, fmt.Errorf("table %s: %w", table, err))
		}
		log.Debug("constraints disabled", zap.String("table", table))
	}
	return errors.Join(errs...)
}

// DropAll drops all tables but excluded ones.
func (c ConstraintsDisabler) DropAll(ctx context.Context, q Querier) error {
	tables, err := c.Dialect.Tables(ctx, q)
	if err != nil {
		return err
	}
	for _, table := range tables {
		if c.excluded(table) {
			continue
		}
		if err := c.Dialect.DropTable(ctx, q, table); err != nil {
			return fmt.Errorf("cannot drop table %s: %w", table, err)
		}
	}
	return nil
}

func (c ConstraintsDisabler) excluded(table string) bool {
	for _, e := range c.Exclude {
		if strings.EqualFold(e, table) {
			return true
		}
	}
	return false
}
