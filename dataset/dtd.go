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
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/qrdl/testkit/dbsupport"
)

/*
WriteDTD writes the DTD of flat XML data sets for the tables of the database.
All attributes are implied, as data sets can hold any subset of columns:

	<!ELEMENT dataset ( (person | team)*)>
	<!ELEMENT person EMPTY>
	<!ATTLIST person
	   id CDATA #IMPLIED
	   name CDATA #IMPLIED>
*/
func WriteDTD(ctx context.Context, w io.Writer, q dbsupport.Querier, d dbsupport.Dialect, exclude ...string) error {
	all, err := d.Tables(ctx, q)
	if err != nil {
		return err
	}
	var tables []string
	for _, t := range all {
		if !containsFold(exclude, t) {
			tables = append(tables, t)
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "<!ELEMENT dataset ( (%s)*)>\n", strings.Join(tables, " | "))
	for _, t := range tables {
		cols, err := d.Columns(ctx, q, t)
		if err != nil {
			return err
		}
		fmt.Fprintf(bw, "<!ELEMENT %s EMPTY>\n", t)
		fmt.Fprintf(bw, "<!ATTLIST %s", t)
		for _, c := range cols {
			fmt.Fprintf(bw, "\n   %s CDATA #IMPLIED", c.Name)
		}
		bw.WriteString(">\n")
	}
	return bw.Flush()
}
