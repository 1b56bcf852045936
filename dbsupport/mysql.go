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
	"fmt"
)

// MySQL works with the default database of the connection.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }
func (MySQL) Quote(id string) string { return quoteWith(id, "`") }
func (MySQL) Placeholder(int) string { return "?" }

const (
	mysqlTables = `SELECT table_name FROM information_schema.tables
WHERE table_schema = database() AND table_type = 'BASE TABLE' ORDER BY table_name`

	mysqlColumns = `SELECT column_name, column_type, is_nullable, column_key = 'PRI'
FROM information_schema.columns
WHERE table_schema = database() AND table_name = ? ORDER BY ordinal_position`

	mysqlConstraints = `SELECT constraint_name FROM information_schema.table_constraints
WHERE table_schema = database() AND table_name = ? AND constraint_type = ?`
)

func (MySQL) Tables(ctx context.Context, q Querier) ([]string, error) {
	tables, err := queryStrings(ctx, q, mysqlTables)
	if err != nil {
		return nil, fmt.Errorf("cannot list tables: %w", err)
	}
	return tables, nil
}

func (MySQL) Columns(ctx context.Context, q Querier, table string) ([]Column, error) {
	return informationSchemaColumns(ctx, q, mysqlColumns, table)
}

func (d MySQL) DisableReferentialConstraints(ctx context.Context, q Querier, table string) error {
	names, err := queryStrings(ctx, q, mysqlConstraints, table, "FOREIGN KEY")
	if err != nil {
		return fmt.Errorf("cannot list foreign keys of %s: %w", table, err)
	}
	for _, name := range names {
		stmt := "ALTER TABLE " + d.Quote(table) + " DROP FOREIGN KEY " + d.Quote(name)
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cannot drop foreign key %s of %s: %w", name, table, err)
		}
	}
	return nil
}

// DisableValueConstraints redefines not-null columns as nullable, MySQL requires the full column type for it.
func (d MySQL) DisableValueConstraints(ctx context.Context, q Querier, table string) error {
	names, err := queryStrings(ctx, q, mysqlConstraints, table, "CHECK")
	if err != nil {
		return fmt.Errorf("cannot list check constraints of %s: %w", table, err)
	}
	for _, name := range names {
		stmt := "ALTER TABLE " + d.Quote(table) + " DROP CHECK " + d.Quote(name)
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cannot drop check constraint %s of %s: %w", name, table, err)
		}
	}
	cols, err := d.Columns(ctx, q, table)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if c.Nullable || c.PrimaryKey {
			continue
		}
		stmt := "ALTER TABLE " + d.Quote(table) + " MODIFY COLUMN " + d.Quote(c.Name) + " " + c.Type + " NULL"
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cannot drop not-null constraint of %s.%s: %w", table, c.Name, err)
		}
	}
	return nil
}

func (d MySQL) DropTable(ctx context.Context, q Querier, table string) error {
	if _, err := q.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, "DROP TABLE IF EXISTS "+d.Quote(table))
	return err
}
