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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReadYAML reads a data set from a mapping of table names to lists of rows.
func ReadYAML(r io.Reader, opts ReadOptions) (*DataSet, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &DataSet{}, nil
		}
		return nil, fmt.Errorf("invalid YAML data set: %w", err)
	}
	if len(doc.Content) == 0 {
		return &DataSet{}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("invalid YAML data set: line %d: expected mapping of tables", root.Line)
	}

	ds := &DataSet{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name, rows := root.Content[i], root.Content[i+1]
		t := ds.table(name.Value)
		if isNull(rows) {
			continue
		}
		if rows.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("invalid YAML data set: line %d: expected list of rows of table %s", rows.Line, name.Value)
		}
		for _, rowNode := range rows.Content {
			row, err := readYAMLRow(rowNode, t.Name, opts)
			if err != nil {
				return nil, err
			}
			t.Rows = append(t.Rows, row)
		}
	}
	return ds, nil
}

func readYAMLRow(n *yaml.Node, table string, opts ReadOptions) (Row, error) {
	if n.Kind != yaml.MappingNode {
		return Row{}, fmt.Errorf("invalid YAML data set: line %d: expected row of table %s", n.Line, table)
	}
	row := Row{Columns: make([]Column, 0, len(n.Content)/2)}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		var v any = value.Value
		switch {
		case isNull(value) || isNullToken(value, opts):
			v = nil
		case value.Kind != yaml.ScalarNode:
			return Row{}, fmt.Errorf("invalid YAML data set: line %d: value of %s.%s must be scalar", value.Line, table, key.Value)
		}
		row.Columns = append(row.Columns, Column{Name: key.Value, Value: v})
	}
	return row, nil
}

// isNullToken also accepts unquoted [null], which YAML reads as a list holding null
func isNullToken(n *yaml.Node, opts ReadOptions) bool {
	if n.Kind == yaml.ScalarNode {
		return n.Value == opts.null()
	}
	return opts.null() == DefaultNullToken && n.Kind == yaml.SequenceNode && len(n.Content) == 1 && isNull(n.Content[0])
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

// Read reads the data set file from fsys, the format is chosen by the extension: .xml, .yaml or .yml.
func Read(fsys fs.FS, name string, opts ReadOptions) (*DataSet, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("cannot open data set: %w", err)
	}
	defer f.Close()

	var ds *DataSet
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".xml":
		ds, err = ReadXML(f, opts)
	case ".yaml", ".yml":
		ds, err = ReadYAML(f, opts)
	default:
		return nil, fmt.Errorf("unsupported data set format %q of %s", ext, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return ds, nil
}

// ReadAll reads and merges data set files.
func ReadAll(fsys fs.FS, names []string, opts ReadOptions) (*DataSet, error) {
	ds := &DataSet{}
	for _, name := range names {
		part, err := Read(fsys, name, opts)
		if err != nil {
			return nil, err
		}
		ds.Merge(part)
	}
	return ds, nil
}
