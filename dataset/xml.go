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
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// ReadOptions controls reading of data sets.
type ReadOptions struct {
	NullToken string // DefaultNullToken if empty
}

func (o ReadOptions) null() string {
	if o.NullToken == "" {
		return DefaultNullToken
	}
	return o.NullToken
}

// ReadXML reads a flat XML data set, the name of the root element is not checked.
func ReadXML(r io.Reader, opts ReadOptions) (*DataSet, error) {
	dec := xml.NewDecoder(r)
	ds := &DataSet{}
	depth := 0
	var current string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid XML data set: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				// root
			case 2:
				current = el.Name.Local
				t := ds.table(current)
				if len(el.Attr) == 0 {
					continue
				}
				row := Row{Columns: make([]Column, 0, len(el.Attr))}
				for _, a := range el.Attr {
					var v any = a.Value
					if a.Value == opts.null() {
						v = nil
					}
					row.Columns = append(row.Columns, Column{Name: a.Name.Local, Value: v})
				}
				t.Rows = append(t.Rows, row)
			default:
				return nil, fmt.Errorf("invalid XML data set: unexpected element %s in row of table %s, values must be attributes",
					el.Name.Local, current)
			}
		case xml.EndElement:
			depth--
		}
	}
	if depth != 0 {
		return nil, errors.New("invalid XML data set: unexpected end of document")
	}
	return ds, nil
}

// WriteXML writes ds as flat XML, the inverse of [ReadXML].
func WriteXML(w io.Writer, ds *DataSet, opts ReadOptions) error {
	enc := xml.NewEncoder(w)
	enc.Indent("", "    ")
	root := xml.StartElement{Name: xml.Name{Local: "dataset"}}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}
	for _, t := range ds.Tables {
		rows := t.Rows
		if len(rows) == 0 {
			rows = []Row{{}}
		}
		for _, r := range rows {
			el := xml.StartElement{Name: xml.Name{Local: t.Name}}
			for _, c := range r.Columns {
				v := opts.null()
				if c.Value != nil {
					v = fmt.Sprint(c.Value)
				}
				el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: c.Name}, Value: v})
			}
			if err := enc.EncodeToken(el); err != nil {
				return err
			}
			if err := enc.EncodeToken(el.End()); err != nil {
				return err
			}
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return err
	}
	return enc.Flush()
}
