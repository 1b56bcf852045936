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
Package dbsupport hides the differences between supported databases: identifier
quoting, bind placeholders, schema metadata and constraint handling.

Supported dialects are "sqlite", "postgres" and "mysql", see [ForName].
*/
package dbsupport

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnknownDialect = errors.New("unknown database dialect")

// Querier is implemented by [sql.DB], [sql.Tx] and [sql.Conn].
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Column describes a table column.
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
}

/*
Dialect is the database specific part of the support.

Metadata methods work on the current schema of the connection. Table and column
names are returned as the database reports them.
*/
type Dialect interface {
	Name() string
	// Quote returns the quoted identifier
	Quote(identifier string) string
	// Placeholder returns the bind placeholder for 1-based argument n
	Placeholder(n int) string

	Tables(ctx context.Context, q Querier) ([]string, error)
	Columns(ctx context.Context, q Querier, table string) ([]Column, error)

	// DisableReferentialConstraints removes or switches off foreign keys
	DisableReferentialConstraints(ctx context.Context, q Querier, table string) error
	// DisableValueConstraints removes not-null and check constraints of non primary key columns
	DisableValueConstraints(ctx context.Context, q Querier, table string) error
	// DropTable drops the table regardless of constraints referencing it
	DropTable(ctx context.Context, q Querier, table string) error
}

var dialects = map[string]Dialect{
	"sqlite":   SQLite{},
	"postgres": Postgres{},
	"mysql":    MySQL{},
}

// ForName returns the dialect with given name, names are case-insensitive and "postgresql" and "sqlite3" are accepted too.
func ForName(name string) (Dialect, error) {
	switch n := strings.ToLower(name); n {
	case "postgresql", "pgx":
		name = "postgres"
	case "sqlite3":
		name = "sqlite"
	default:
		name = n
	}
	if d, ok := dialects[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w %q, supported are %s", ErrUnknownDialect, name, strings.Join(Names(), ", "))
}

// Names returns the names of supported dialects.
func Names() []string {
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PrimaryKeys returns the primary key columns of the table.
func PrimaryKeys(ctx context.Context, d Dialect, q Querier, table string) ([]string, error) {
	cols, err := d.Columns(ctx, q, table)
	if err != nil {
		return nil, err
	}
	var pks []string
	for _, c := range cols {
		if c.PrimaryKey {
			pks = append(pks, c.Name)
		}
	}
	return pks, nil
}

// HasTable reports whether the table exists, the name is compared case-insensitively.
func HasTable(ctx context.Context, d Dialect, q Querier, table string) (bool, error) {
	tables, err := d.Tables(ctx, q)
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if strings.EqualFold(t, table) {
			return true, nil
		}
	}
	return false, nil
}

func quoteWith(identifier string, quote string) string {
	return quote + strings.ReplaceAll(identifier, quote, quote+quote) + quote
}

func queryStrings(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
