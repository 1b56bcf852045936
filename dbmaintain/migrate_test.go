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
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrdl/testkit/dbsupport"
)

func TestMigrate(t *testing.T) {
	db := openDB(t)
	fsys := fstest.MapFS{
		"migrations/1_init.up.sql":   {Data: []byte("CREATE TABLE item (id INTEGER PRIMARY KEY);")},
		"migrations/1_init.down.sql": {Data: []byte("DROP TABLE item;")},
		"migrations/2_name.up.sql":   {Data: []byte("ALTER TABLE item ADD COLUMN name TEXT;")},
		"migrations/2_name.down.sql": {Data: []byte("ALTER TABLE item DROP COLUMN name;")},
	}
	cfg := MigrateConfig{Dir: "migrations"}

	require.NoError(t, Migrate(db, dbsupport.SQLite{}, fsys, cfg))
	_, err := db.Exec("INSERT INTO item (id, name) VALUES (1, 'x')")
	require.NoError(t, err)
	require.NoError(t, Migrate(db, dbsupport.SQLite{}, fsys, cfg))

	m, err := NewMigrator(db, dbsupport.SQLite{}, fsys, cfg)
	require.NoError(t, err)
	defer m.Close()
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, m.Down())
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Zero(t, version)

	ok, err := dbsupport.HasTable(t.Context(), dbsupport.SQLite{}, db, "item")
	require.NoError(t, err)
	assert.False(t, ok)
}
