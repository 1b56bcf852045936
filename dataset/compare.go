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
	"database/sql"
	"fmt"
	"strings"

	"github.com/qrdl/testkit/dbsupport"
)

type ColumnDifference struct {
	Column   string
	Expected any
	Actual   any
}

// RowDifference is an expected row and the actual row matching it best.
type RowDifference struct {
	Expected Row
	Actual   Row
	Columns  []ColumnDifference
}

type TableDifference struct {
	Table          string
	MissingTable   bool
	MissingColumns []string
	// MissingRows have no candidate actual row
	MissingRows []Row
	Rows        []RowDifference
	// UnexpectedRows are the actual rows of a table expected to be empty
	UnexpectedRows []Row
}

func (td TableDifference) empty() bool {
	return !td.MissingTable && len(td.MissingColumns) == 0 && len(td.MissingRows) == 0 && len(td.Rows) == 0 && len(td.UnexpectedRows) == 0
}

// Difference is the result of comparing an expected data set with the database.
type Difference struct {
	Tables []TableDifference
}

func (d *Difference) Empty() bool {
	return d == nil || len(d.Tables) == 0
}

func (d *Difference) String() string {
	if d.Empty() {
		return "no differences"
	}
	var b strings.Builder
	for i, td := range d.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Found differences for table %s:\n", td.Table)
		if td.MissingTable {
			b.WriteString("  Table doesn't exist\n")
			continue
		}
		if len(td.MissingColumns) > 0 {
			fmt.Fprintf(&b, "  Missing columns: %s\n", strings.Join(td.MissingColumns, ", "))
		}
		for _, r := range td.MissingRows {
			fmt.Fprintf(&b, "  Missing row: %s\n", r)
		}
		for _, rd := range td.Rows {
			fmt.Fprintf(&b, "  Different row: %s\n", rd.Expected)
			fmt.Fprintf(&b, "    Best matching actual row: %s\n", rd.Actual)
			for _, cd := range rd.Columns {
				fmt.Fprintf(&b, "    %s: expected %s, actual %s\n", cd.Column, formatValue(cd.Expected), formatValue(cd.Actual))
			}
		}
		if len(td.UnexpectedRows) > 0 {
			fmt.Fprintf(&b, "  Expected no rows, found %d:\n", len(td.UnexpectedRows))
			for _, r := range td.UnexpectedRows {
				fmt.Fprintf(&b, "    %s\n", r)
			}
		}
	}
	return b.String()
}

/*
Compare compares the tables of expected with the database content. Only the
columns present in the expected rows are compared, extra actual rows are allowed
unless the expected table has no rows at all.

Every expected row is matched with the actual row it differs from the least. An
actual row with a different primary key value is never a match.
*/
func Compare(ctx context.Context, q dbsupport.Querier, d dbsupport.Dialect, expected *DataSet) (*Difference, error) {
	diff := &Difference{}
	for _, t := range expected.Tables {
		td, err := compareTable(ctx, q, d, t)
		if err != nil {
			return nil, err
		}
		if !td.empty() {
			diff.Tables = append(diff.Tables, td)
		}
	}
	return diff, nil
}

func compareTable(ctx context.Context, q dbsupport.Querier, d dbsupport.Dialect, expected *Table) (TableDifference, error) {
	td := TableDifference{Table: expected.Name}
	exists, err := dbsupport.HasTable(ctx, d, q, expected.Name)
	if err != nil {
		return td, err
	}
	if !exists {
		td.MissingTable = true
		return td, nil
	}
	cols, err := d.Columns(ctx, q, expected.Name)
	if err != nil {
		return td, err
	}

	var (
		present []string
		pks     []string
	)
	wanted := expected.ColumnNames()
	for _, c := range cols {
		if c.PrimaryKey {
			pks = append(pks, c.Name)
		}
	}
	for _, name := range wanted {
		if found := findColumn(cols, name); found != "" {
			present = append(present, found)
		} else {
			td.MissingColumns = append(td.MissingColumns, name)
		}
	}
	if len(present) == 0 && len(expected.Rows) > 0 {
		return td, nil
	}
	if len(expected.Rows) == 0 {
		present = pks
		if len(present) == 0 {
			present = []string{cols[0].Name}
		}
	}

	actual, err := ReadTable(ctx, q, d, expected.Name, present)
	if err != nil {
		return td, err
	}
	if len(expected.Rows) == 0 {
		td.UnexpectedRows = actual.Rows
		return td, nil
	}

	used := make([]bool, len(actual.Rows))
	matched := make([]bool, len(expected.Rows))
	for i, er := range expected.Rows {
		for j, ar := range actual.Rows {
			if !used[j] && len(differences(er, ar, present)) == 0 {
				used[j], matched[i] = true, true
				break
			}
		}
	}
	for i, er := range expected.Rows {
		if matched[i] {
			continue
		}
		best, bestDiff := -1, []ColumnDifference(nil)
		for j, ar := range actual.Rows {
			if used[j] || keyDiffers(er, ar, pks) {
				continue
			}
			if cd := differences(er, ar, present); best < 0 || len(cd) < len(bestDiff) {
				best, bestDiff = j, cd
			}
		}
		if best < 0 {
			td.MissingRows = append(td.MissingRows, er)
			continue
		}
		used[best] = true
		td.Rows = append(td.Rows, RowDifference{Expected: er, Actual: actual.Rows[best], Columns: bestDiff})
	}
	return td, nil
}

func findColumn(cols []dbsupport.Column, name string) string {
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return c.Name
		}
	}
	return ""
}

// differences compares the columns of expected present in the table
func differences(expected, actual Row, present []string) []ColumnDifference {
	var diff []ColumnDifference
	for _, c := range expected.Columns {
		if !containsFold(present, c.Name) {
			continue
		}
		av, _ := actual.Get(c.Name)
		if !sameValue(c.Value, av) {
			diff = append(diff, ColumnDifference{Column: c.Name, Expected: c.Value, Actual: av})
		}
	}
	return diff
}

func keyDiffers(expected, actual Row, pks []string) bool {
	for _, pk := range pks {
		ev, ok := expected.Get(pk)
		if !ok {
			continue
		}
		av, _ := actual.Get(pk)
		if !sameValue(ev, av) {
			return true
		}
	}
	return false
}

func sameValue(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	return fmt.Sprint(expected) == fmt.Sprint(actual)
}

// ReadTable reads the columns of all rows of the table, values are strings or nil.
func ReadTable(ctx context.Context, q dbsupport.Querier, d dbsupport.Dialect, table string, columns []string) (*Table, error) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}
	rows, err := q.QueryContext(ctx, "SELECT "+strings.Join(quoted, ", ")+" FROM "+d.Quote(table))
	if err != nil {
		return nil, fmt.Errorf("cannot read table %s: %w", table, err)
	}
	defer rows.Close()

	t := &Table{Name: table}
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("cannot read table %s: %w", table, err)
		}
		row := Row{Columns: make([]Column, len(columns))}
		for i, v := range values {
			row.Columns[i] = Column{Name: columns[i]}
			if v.Valid {
				row.Columns[i].Value = v.String
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, rows.Err()
}
