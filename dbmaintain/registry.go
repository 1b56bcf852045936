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

package dbmaintain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qrdl/testkit/dbsupport"
)

const DefaultRegistryTable = "dbmaintain_scripts"

var ErrNoRegistry = errors.New("executed scripts table doesn't exist")

/*
Registry stores executed scripts in a table with columns file_name, version,
file_last_modified_at, checksum, executed_at and succeeded.

When AutoCreate is set, a missing table is created on first use and a from-scratch
update is recommended, as the state of the database is unknown.
*/
type Registry struct {
	DB         dbsupport.Querier
	Dialect    dbsupport.Dialect
	Table      string // DefaultRegistryTable if empty
	AutoCreate bool

	checked    bool
	wasMissing bool
}

func (r *Registry) table() string {
	if r.Table == "" {
		return DefaultRegistryTable
	}
	return r.Table
}

// CreateStatement returns the DDL of the registry table.
func (r *Registry) CreateStatement() string {
	return "CREATE TABLE " + r.Dialect.Quote(r.table()) + " (" +
		"file_name VARCHAR(150) NOT NULL, " +
		"version VARCHAR(25), " +
		"file_last_modified_at BIGINT, " +
		"checksum VARCHAR(64), " +
		"executed_at VARCHAR(30), " +
		"succeeded INTEGER)"
}

// ensure checks the table exists, creating it when enabled
func (r *Registry) ensure(ctx context.Context) error {
	if r.checked {
		return nil
	}
	exists, err := dbsupport.HasTable(ctx, r.Dialect, r.DB, r.table())
	if err != nil {
		return err
	}
	if !exists {
		if !r.AutoCreate {
			return fmt.Errorf("%w: %s, create it with %q or enable auto-create", ErrNoRegistry, r.table(), r.CreateStatement())
		}
		if _, err := r.DB.ExecContext(ctx, r.CreateStatement()); err != nil {
			return fmt.Errorf("cannot create table %s: %w", r.table(), err)
		}
		r.wasMissing = true
	}
	r.checked = true
	return nil
}

// FromScratchRecommended reports whether the table had to be created, only the first call after creation reports it.
func (r *Registry) FromScratchRecommended(ctx context.Context) (bool, error) {
	if !r.AutoCreate {
		return false, nil
	}
	if err := r.ensure(ctx); err != nil {
		return false, err
	}
	recommended := r.wasMissing
	r.wasMissing = false
	return recommended, nil
}

// Executed returns the registered scripts without content.
func (r *Registry) Executed(ctx context.Context) ([]ExecutedScript, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, "SELECT file_name, version, file_last_modified_at, checksum, executed_at, succeeded FROM "+
		r.Dialect.Quote(r.table())+" ORDER BY file_name")
	if err != nil {
		return nil, fmt.Errorf("cannot read executed scripts: %w", err)
	}
	defer rows.Close()

	var res []ExecutedScript
	for rows.Next() {
		var (
			es         ExecutedScript
			version    string
			modified   int64
			executedAt string
			succeeded  int
		)
		if err := rows.Scan(&es.FileName, &version, &modified, &es.Checksum, &executedAt, &succeeded); err != nil {
			return nil, fmt.Errorf("cannot read executed scripts: %w", err)
		}
		es.Version = parseVersion(version)
		es.Incremental = es.Version != nil && isIndexedFile(es.FileName)
		es.LastModified = time.UnixMilli(modified)
		es.ExecutedAt, _ = time.Parse(time.RFC3339, executedAt)
		es.Succeeded = succeeded != 0
		res = append(res, es)
	}
	return res, rows.Err()
}

func (r *Registry) Register(ctx context.Context, es ExecutedScript) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}
	stmt := "INSERT INTO " + r.Dialect.Quote(r.table()) +
		" (file_name, version, file_last_modified_at, checksum, executed_at, succeeded) VALUES (" +
		placeholders(r.Dialect, 1, 6) + ")"
	if _, err := r.DB.ExecContext(ctx, stmt, es.FileName, es.Version.String(), es.LastModified.UnixMilli(),
		es.Checksum, es.ExecutedAt.UTC().Format(time.RFC3339), boolInt(es.Succeeded)); err != nil {
		return fmt.Errorf("cannot register script %s: %w", es.FileName, err)
	}
	return nil
}

// Update replaces the entry with the same file name.
func (r *Registry) Update(ctx context.Context, es ExecutedScript) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}
	d := r.Dialect
	stmt := "UPDATE " + d.Quote(r.table()) + " SET version = " + d.Placeholder(1) +
		", file_last_modified_at = " + d.Placeholder(2) + ", checksum = " + d.Placeholder(3) +
		", executed_at = " + d.Placeholder(4) + ", succeeded = " + d.Placeholder(5) +
		" WHERE file_name = " + d.Placeholder(6)
	if _, err := r.DB.ExecContext(ctx, stmt, es.Version.String(), es.LastModified.UnixMilli(), es.Checksum,
		es.ExecutedAt.UTC().Format(time.RFC3339), boolInt(es.Succeeded), es.FileName); err != nil {
		return fmt.Errorf("cannot update script %s: %w", es.FileName, err)
	}
	return nil
}

// Clear removes all entries.
func (r *Registry) Clear(ctx context.Context) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}
	if _, err := r.DB.ExecContext(ctx, "DELETE FROM "+r.Dialect.Quote(r.table())); err != nil {
		return fmt.Errorf("cannot clear executed scripts: %w", err)
	}
	return nil
}

func isIndexedFile(name string) bool {
	_, ok := index(name[strings.LastIndex(name, "/")+1:])
	return ok
}

func placeholders(d dbsupport.Dialect, from, count int) string {
	p := make([]string, count)
	for i := range p {
		p[i] = d.Placeholder(from + i)
	}
	return strings.Join(p, ", ")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
