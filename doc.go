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
Package testkit sets up test fixtures declared as struct fields and tags.

A fixture is a struct whose fields the tests need. [Setup] fills it at the start
of a test and registers the cleanup with the test:

	type UserSuite struct {
	    testkit.DataSet `dataset:"users.xml"`

	    Repo    *mock.Mock[RepoFuncs]
	    DB      *sql.DB          `testkit:"db"`
	    Dir     string           `testkit:"tempdir"`
	    Service *UserService     `testkit:"tested"`
	    Clock   func() time.Time `inject:"now"`
	}

	func TestRename(t *testing.T) {
	    var s UserSuite
	    testkit.Setup(t, &s, testkit.ExpectDataSet())
	    ...
	}

Fields are processed in this order:

  - testkit:"tempfile", testkit:"tempfile=name" and testkit:"tempdir" get a path
    in a directory removed at the end of the test, tempfile fields can also be *os.File,
  - testkit:"file=path" gets the content of the file, as string or []byte,
  - *mock.Mock[T] fields get a new mock named after the field, existing mocks are
    reinitialized, see [MockCreatedHook],
  - testkit:"dummy" gets a do-nothing value, see [mock.DummyOf],
  - testkit:"db" gets the test database as *sql.DB or *database.DB, testkit:"tx" the
    test transaction as *sql.Tx and testkit:"gorm" a *gorm.DB over the transaction
    if there is one, over the database otherwise,
  - data sets are loaded, see [DataSet],
  - testkit:"tested" fields are injection targets. Fields tagged inject:"bytype" are
    injected into every target field of matching type, inject:"path" into the field
    at the dotted path. Mocks inject their proxy. Nil targets are created.

At the end of the test expected data sets are compared with the database and
the test transaction is committed or rolled back.

# Configuration

The database, data set directory, script maintenance and logging are configured
with testkit.yaml, see package [github.com/qrdl/testkit/config].
*/
package testkit
