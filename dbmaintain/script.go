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
Package dbmaintain keeps the test database schema up to date by running SQL
scripts that weren't run yet.

Scripts are discovered by [Source]. Directory and file names can start with a
numeric index followed by underscore, e.g. 01_tables/02_users.sql, the indexes
make the version of the script. Scripts with indexed file names are incremental,
they run once in version order, other scripts are repeatable and run again each
time they change. Executed scripts are kept in the registry table, see [Registry].
*/
package dbmaintain

import (
	"cmp"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"time"

	"lukechampine.com/blake3"
)

// Version is made of the indexes of the script path elements.
type Version []int

func (v Version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Compare returns -1, 0 or +1, a version is lower than any version it is a prefix of.
func (v Version) Compare(o Version) int {
	return slices.Compare(v, o)
}

func parseVersion(s string) Version {
	if s == "" {
		return nil
	}
	var v Version
	for _, p := range strings.Split(s, ".") {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil
		}
		v = append(v, n)
	}
	return v
}

type Script struct {
	// FileName is the slash separated path relative to the script location
	FileName     string
	Version      Version
	Incremental  bool
	LastModified time.Time
	Checksum     string
	Content      []byte
}

func newScript(name string, content []byte, modified time.Time) Script {
	s := Script{FileName: name, Content: content, LastModified: modified, Checksum: checksum(content)}
	elems := strings.Split(name, "/")
	for i, e := range elems {
		n, ok := index(e)
		if ok {
			s.Version = append(s.Version, n)
		}
		if i == len(elems)-1 {
			s.Incremental = ok
		}
	}
	return s
}

// index returns n of a "<n>_name" path element
func index(elem string) (int, bool) {
	prefix, _, found := strings.Cut(elem, "_")
	if !found || prefix == "" {
		return 0, false
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func checksum(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// compareScripts orders incremental scripts by version, repeatable scripts after them by name
func compareScripts(a, b Script) int {
	if a.Incremental != b.Incremental {
		if a.Incremental {
			return -1
		}
		return 1
	}
	if a.Incremental {
		if c := a.Version.Compare(b.Version); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.FileName, b.FileName)
}

func (s Script) String() string {
	if s.Incremental {
		return s.FileName + " (version " + s.Version.String() + ")"
	}
	return s.FileName
}

// ExecutedScript is an entry of the registry.
type ExecutedScript struct {
	Script
	ExecutedAt time.Time
	Succeeded  bool
}
