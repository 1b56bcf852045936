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
Package dataset reads database data sets from flat XML and YAML files, loads them
into the database and compares the database content with expected data sets.

A flat XML data set has an element per row, attributes are columns:

	<dataset>
	    <person id="1" name="joe"/>
	    <person id="2" name="[null]"/>
	    <team/>
	</dataset>

An element without attributes declares the table empty, when loaded with
[CleanInsert] its rows are deleted. The same data set in YAML:

	person:
	  - id: 1
	    name: joe
	  - id: 2
	    name: null
	team: []

Values are kept as strings, nil is SQL NULL.
*/
package dataset

import (
	"fmt"
	"strings"
)

// DefaultNullToken is the value read as NULL.
const DefaultNullToken = "[null]"

type Column struct {
	Name       string
	Value      any
	PrimaryKey bool
}

type Row struct {
	Columns []Column
}

// Get returns the column value by case-insensitive name.
func (r Row) Get(name string) (any, bool) {
	if c := r.column(name); c != nil {
		return c.Value, true
	}
	return nil, false
}

func (r Row) column(name string) *Column {
	for i := range r.Columns {
		if strings.EqualFold(r.Columns[i].Name, name) {
			return &r.Columns[i]
		}
	}
	return nil
}

func (r Row) String() string {
	parts := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		parts[i] = c.Name + "=" + formatValue(c.Value)
	}
	return strings.Join(parts, ", ")
}

type Table struct {
	Name string
	Rows []Row
}

// ColumnNames returns names of all columns of all rows, in order of first occurrence.
func (t *Table) ColumnNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, r := range t.Rows {
		for _, c := range r.Columns {
			if key := strings.ToLower(c.Name); !seen[key] {
				seen[key] = true
				names = append(names, c.Name)
			}
		}
	}
	return names
}

// DataSet is an ordered set of tables, a table can occur only once.
type DataSet struct {
	Tables []*Table
}

// Table returns the table by case-insensitive name, nil if there is none.
func (ds *DataSet) Table(name string) *Table {
	for _, t := range ds.Tables {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

// table returns the table, adding it if missing
func (ds *DataSet) table(name string) *Table {
	if t := ds.Table(name); t != nil {
		return t
	}
	t := &Table{Name: name}
	ds.Tables = append(ds.Tables, t)
	return t
}

// Merge adds tables and rows of other data sets, rows of a table occurring in ds are appended.
func (ds *DataSet) Merge(others ...*DataSet) {
	for _, o := range others {
		for _, t := range o.Tables {
			target := ds.table(t.Name)
			target.Rows = append(target.Rows, t.Rows...)
		}
	}
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%q", fmt.Sprint(v))
}
