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

package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/qrdl/testkit/dbsupport"
)

type LoadStrategy int

const (
	// CleanInsert deletes all rows of the data set tables, then inserts the rows
	CleanInsert LoadStrategy = iota
	Insert
	// Refresh updates rows with the same primary key and inserts the others
	Refresh
	// Update updates rows with the same primary key, a missing row is an error
	Update
)

var strategyNames = []string{"clean-insert", "insert", "refresh", "update"}

func (s LoadStrategy) String() string {
	if int(s) < len(strategyNames) && s >= 0 {
		return strategyNames[s]
	}
	return fmt.Sprintf("LoadStrategy(%d)", int(s))
}

// ParseLoadStrategy parses the strategy name, e.g. "clean-insert".
func ParseLoadStrategy(name string) (LoadStrategy, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for i, s := range strategyNames {
		if s == n {
			return LoadStrategy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown load strategy %q, supported are %s", name, strings.Join(strategyNames, ", "))
}

var (
	ErrRowNotFound  = errors.New("row to update not found")
	ErrNoPrimaryKey = errors.New("table has no primary key")
)

// Loader writes data sets into the database.
type Loader struct {
	DB      dbsupport.Querier
	Dialect dbsupport.Dialect
	Log     *zap.Logger
}

func (l Loader) Load(ctx context.Context, ds *DataSet, strategy LoadStrategy) error {
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	if strategy == CleanInsert {
		for i := len(ds.Tables) - 1; i >= 0; i-- {
			t := ds.Tables[i]
			if _, err := l.DB.ExecContext(ctx, "DELETE FROM "+l.Dialect.Quote(t.Name)); err != nil {
				return fmt.Errorf("cannot delete rows of %s: %w", t.Name, err)
			}
		}
	}

	for _, t := range ds.Tables {
		var pks []string
		if strategy == Refresh || strategy == Update {
			var err error
			if pks, err = l.primaryKeys(ctx, t); err != nil {
				return err
			}
		}
		for _, r := range t.Rows {
			var err error
			switch strategy {
			case CleanInsert, Insert:
				err = l.insert(ctx, t.Name, r)
			case Refresh:
				var updated bool
				if updated, err = l.update(ctx, t.Name, pks, r); err == nil && !updated {
					err = l.insert(ctx, t.Name, r)
				}
			case Update:
				var updated bool
				if updated, err = l.update(ctx, t.Name, pks, r); err == nil && !updated {
					err = fmt.Errorf("%w: %s", ErrRowNotFound, r)
				}
			default:
				err = fmt.Errorf("unsupported load strategy %s", strategy)
			}
			if err != nil {
				return fmt.Errorf("cannot load row of %s: %w", t.Name, err)
			}
		}
		log.Debug("table loaded", zap.String("table", t.Name), zap.Int("rows", len(t.Rows)), zap.Stringer("strategy", strategy))
	}
	return nil
}

// primaryKeys returns primary key columns marked in the data set, the ones of the database table otherwise
func (l Loader) primaryKeys(ctx context.Context, t *Table) ([]string, error) {
	var pks []string
	for _, r := range t.Rows {
		for _, c := range r.Columns {
			if c.PrimaryKey && !containsFold(pks, c.Name) {
				pks = append(pks, c.Name)
			}
		}
	}
	if len(pks) > 0 {
		return pks, nil
	}
	pks, err := dbsupport.PrimaryKeys(ctx, l.Dialect, l.DB, t.Name)
	if err != nil {
		return nil, err
	}
	if len(pks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, t.Name)
	}
	return pks, nil
}

func (l Loader) insert(ctx context.Context, table string, r Row) error {
	if len(r.Columns) == 0 {
		return nil
	}
	names := make([]string, len(r.Columns))
	marks := make([]string, len(r.Columns))
	args := make([]any, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = l.Dialect.Quote(c.Name)
		marks[i] = l.Dialect.Placeholder(i + 1)
		args[i] = c.Value
	}
	stmt := "INSERT INTO " + l.Dialect.Quote(table) + " (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	_, err := l.DB.ExecContext(ctx, stmt, args...)
	return err
}

// update reports false when no row has the primary key of r
func (l Loader) update(ctx context.Context, table string, pks []string, r Row) (bool, error) {
	var (
		set, where []string
		setArgs    []any
		whereArgs  []any
	)
	for _, c := range r.Columns {
		if !containsFold(pks, c.Name) {
			set = append(set, c.Name)
			setArgs = append(setArgs, c.Value)
		}
	}
	for _, pk := range pks {
		v, ok := r.Get(pk)
		if !ok {
			return false, fmt.Errorf("primary key column %s missing in row %s", pk, r)
		}
		where = append(where, pk)
		whereArgs = append(whereArgs, v)
	}

	n := 0
	next := func() string {
		n++
		return l.Dialect.Placeholder(n)
	}
	var stmt strings.Builder
	stmt.WriteString("UPDATE " + l.Dialect.Quote(table) + " SET ")
	if len(set) == 0 {
		// nothing but the key, make the statement report whether the row exists
		set, setArgs = where[:1], whereArgs[:1]
	}
	for i, c := range set {
		if i > 0 {
			stmt.WriteString(", ")
		}
		stmt.WriteString(l.Dialect.Quote(c) + " = " + next())
	}
	stmt.WriteString(" WHERE ")
	for i, c := range where {
		if i > 0 {
			stmt.WriteString(" AND ")
		}
		stmt.WriteString(l.Dialect.Quote(c) + " = " + next())
	}

	args := make([]any, 0, len(setArgs)+len(whereArgs))
	args = append(append(args, setArgs...), whereArgs...)
	res, err := l.DB.ExecContext(ctx, stmt.String(), args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func containsFold(list []string, s string) bool {
	for _, e := range list {
		if strings.EqualFold(e, s) {
			return true
		}
	}
	return false
}
