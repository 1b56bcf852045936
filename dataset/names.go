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
	"io/fs"
	"strings"
)

// Extensions are tried in order when looking up default data set files.
var Extensions = []string{"xml", "yaml", "yml"}

var ErrNotFound = errors.New("data set file not found")

// ClassFile is the name of the data set of all tests of a fixture.
func ClassFile(fixture, ext string) string {
	return fixture + "." + ext
}

// MethodFile is the name of the data set of a single test.
func MethodFile(fixture, test, ext string) string {
	return fixture + "-" + SafeName(test) + "." + ext
}

// ExpectedFile is the name of the data set expected at the end of a test.
func ExpectedFile(fixture, test, ext string) string {
	return fixture + "." + SafeName(test) + "-result." + ext
}

// SafeName makes a test name usable in file names, subtest separators become underscores.
func SafeName(test string) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(test)
}

// DefaultFile returns the method level data set if it exists, else the class level one.
func DefaultFile(fsys fs.FS, fixture, test string) (string, error) {
	for _, ext := range Extensions {
		if name := MethodFile(fixture, test, ext); exists(fsys, name) {
			return name, nil
		}
	}
	for _, ext := range Extensions {
		if name := ClassFile(fixture, ext); exists(fsys, name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: neither %s nor %s exists", ErrNotFound,
		MethodFile(fixture, test, Extensions[0]), ClassFile(fixture, Extensions[0]))
}

// DefaultExpectedFile returns the existing expected data set of the test.
func DefaultExpectedFile(fsys fs.FS, fixture, test string) (string, error) {
	for _, ext := range Extensions {
		if name := ExpectedFile(fixture, test, ext); exists(fsys, name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, ExpectedFile(fixture, test, Extensions[0]))
}

func exists(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
