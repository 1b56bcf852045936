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
	"strconv"
)

// Postgres works with the current schema of the connection.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }
func (Postgres) Quote(id string) string { return quoteWith(id, `"`) }
func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

const (
	postgresTables = `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`

	postgresColumns = `SELECT c.column_name, c.data_type, c.is_nullable,
EXISTS (SELECT 1 FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
	WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = c.table_schema
	AND tc.table_name = c.table_name AND kcu.column_name = c.column_name)
FROM information_schema.columns c
WHERE c.table_schema = current_schema() AND c.table_name = $1 ORDER BY c.ordinal_position`

	postgresConstraints = `SELECT constraint_name FROM information_schema.table_constraints
WHERE table_schema = current_schema() AND table_name = $1 AND constraint_type = $2`
)

func (Postgres) Tables(ctx context.Context, q Querier) ([]string, error) {
	tables, err := queryStrings(ctx, q, postgresTables)
	if err != nil {
		return nil, fmt.Errorf("cannot list tables: %w", err)
	}
	return tables, nil
}

func (Postgres) Columns(ctx context.Context, q Querier, table string) ([]Column, error) {
	return informationSchemaColumns(ctx, q, postgresColumns, table)
}

func (d Postgres) DisableReferentialConstraints(ctx context.Context, q Querier, table string) error {
	return d.dropConstraints(ctx, q, table, "FOREIGN KEY")
}

func (d Postgres) DisableValueConstraints(ctx context.Context, q Querier, table string) error {
	if err := d.dropConstraints(ctx, q, table, "CHECK"); err != nil {
		return err
	}
	cols, err := d.Columns(ctx, q, table)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if c.Nullable || c.PrimaryKey {
			continue
		}
		stmt := "ALTER TABLE " + d.Quote(table) + " ALTER COLUMN " + d.Quote(c.Name) + " DROP NOT NULL"
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cannot drop not-null constraint of %s.%s: %w", table, c.Name, err)
		}
	}
	return nil
}

func (d Postgres) DropTable(ctx context.Context, q Querier, table string) error {
	_, err := q.ExecContext(ctx, "DROP TABLE IF EXISTS "+d.Quote(table)+" CASCADE")
	return err
}

func (d Postgres) dropConstraints(ctx context.Context, q Querier, table, kind string) error {
	names, err := queryStrings(ctx, q, postgresConstraints, table, kind)
	if err != nil {
		return fmt.Errorf("cannot list %s constraints of %s: %w", kind, table, err)
	}
	for _, name := range names {
		// not-null constraints are reported as checks by older servers
		if kind == "CHECK" && isNotNullConstraint(name) {
			continue
		}
		stmt := "ALTER TABLE " + d.Quote(table) + " DROP CONSTRAINT " + d.Quote(name)
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cannot drop constraint %s of %s: %w", name, table, err)
		}
	}
	return nil
}

func isNotNullConstraint(name string) bool {
	const suffix = "_not_null"
	return len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix
}

func informationSchemaColumns(ctx context.Context, q Querier, query, table string) ([]Column, error) {
	rows, err := q.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("cannot get columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			c        Column
			nullable string
		)
		if err := rows.Scan(&c.Name, &c.Type, &nullable, &c.PrimaryKey); err != nil {
			return nil, fmt.Errorf("cannot get columns of %s: %w", table, err)
		}
		c.Nullable = nullable == "YES"
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cannot get columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return cols, nil
}
