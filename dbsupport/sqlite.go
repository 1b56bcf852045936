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
	"database/sql"
	"fmt"
)

type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }
func (SQLite) Quote(id string) string { return quoteWith(id, `"`) }
func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) Tables(ctx context.Context, q Querier) ([]string, error) {
	tables, err := queryStrings(ctx, q,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("cannot list tables: %w", err)
	}
	return tables, nil
}

func (d SQLite) Columns(ctx context.Context, q Querier, table string) ([]Column, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+d.Quote(table)+")")
	if err != nil {
		return nil, fmt.Errorf("cannot get columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("cannot get columns of %s: %w", table, err)
		}
		cols = append(cols, Column{Name: name, Type: typ, Nullable: notNull == 0 && pk == 0, PrimaryKey: pk > 0})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cannot get columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return cols, nil
}

// DisableReferentialConstraints switches foreign keys off for the connection, the table is irrelevant.
func (SQLite) DisableReferentialConstraints(ctx context.Context, q Querier, _ string) error {
	_, err := q.ExecContext(ctx, "PRAGMA foreign_keys = OFF")
	return err
}

// DisableValueConstraints switches check constraints off, SQLite cannot drop not-null constraints without rebuilding the table.
func (SQLite) DisableValueConstraints(ctx context.Context, q Querier, _ string) error {
	_, err := q.ExecContext(ctx, "PRAGMA ignore_check_constraints = ON")
	return err
}

func (d SQLite) DropTable(ctx context.Context, q Querier, table string) error {
	if _, err := q.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, "DROP TABLE IF EXISTS "+d.Quote(table))
	return err
}
