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
	"context"
	"database/sql"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	_ "modernc.org/sqlite"

	"github.com/qrdl/testkit/dbsupport"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM "+table).Scan(&n))
	return n
}

func TestRegistry(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	_, err := (&Registry{DB: db, Dialect: dbsupport.SQLite{}}).Executed(ctx)
	require.ErrorIs(t, err, ErrNoRegistry)

	r := &Registry{DB: db, Dialect: dbsupport.SQLite{}, AutoCreate: true}
	executed, err := r.Executed(ctx)
	require.NoError(t, err)
	assert.Empty(t, executed)
	recommended, err := r.FromScratchRecommended(ctx)
	require.NoError(t, err)
	assert.True(t, recommended)
	recommended, err = r.FromScratchRecommended(ctx)
	require.NoError(t, err)
	assert.False(t, recommended)

	at := time.Date(2008, 5, 20, 10, 20, 0, 0, time.UTC)
	es1 := ExecutedScript{
		Script:     Script{FileName: "1_script1.sql", Version: Version{1}, Incremental: true, LastModified: time.UnixMilli(10), Checksum: "xxx"},
		ExecutedAt: at,
		Succeeded:  true,
	}
	es2 := ExecutedScript{
		Script:     Script{FileName: "script2.sql", LastModified: time.UnixMilli(20), Checksum: "yyy"},
		ExecutedAt: at.Add(5 * time.Minute),
	}
	require.NoError(t, r.Register(ctx, es1))
	require.NoError(t, r.Register(ctx, es2))

	executed, err = r.Executed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ExecutedScript{es1, es2}, executed)

	es2.Succeeded = true
	es2.Checksum = "zzz"
	require.NoError(t, r.Update(ctx, es2))
	executed, err = r.Executed(ctx)
	require.NoError(t, err)
	assert.Equal(t, es2, executed[1])

	require.NoError(t, r.Clear(ctx))
	executed, err = r.Executed(ctx)
	require.NoError(t, err)
	assert.Empty(t, executed)
}

func newMaintainer(t *testing.T, db *sql.DB, fsys fstest.MapFS) *Maintainer {
	return &Maintainer{
		DB:       db,
		Dialect:  dbsupport.SQLite{},
		Source:   Source{FS: fsys},
		Registry: &Registry{DB: db, Dialect: dbsupport.SQLite{}, AutoCreate: true},
		Log:      zaptest.NewLogger(t),
	}
}

func TestMaintainerUpdate(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"01_tables.sql": {Data: []byte("CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT);")},
		"02_data.sql":   {Data: []byte("INSERT INTO person VALUES (1, 'joe');")},
		"views.sql": {Data: []byte(`DROP VIEW IF EXISTS person_names;
CREATE VIEW person_names AS SELECT name FROM person;`)},
		"postprocessing/marker.sql": {Data: []byte(`CREATE TABLE IF NOT EXISTS marker (n INTEGER);
INSERT INTO marker VALUES (1);`)},
	}
	m := newMaintainer(t, db, fsys)

	names, err := m.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"01_tables.sql", "02_data.sql", "views.sql"}, names)
	assert.Equal(t, 1, count(t, db, "person_names"))
	assert.Equal(t, 1, count(t, db, "marker"))

	names, err = m.Update(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, 1, count(t, db, "marker"))

	fsys["03_more.sql"] = &fstest.MapFile{Data: []byte("INSERT INTO person VALUES (2, 'ann');")}
	names, err = m.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"03_more.sql"}, names)
	assert.Equal(t, 2, count(t, db, "person_names"))
	assert.Equal(t, 2, count(t, db, "marker"))

	fsys["views.sql"] = &fstest.MapFile{Data: []byte(`DROP VIEW IF EXISTS person_names;
CREATE VIEW person_names AS SELECT name FROM person WHERE id = 1;`)}
	names, err = m.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"views.sql"}, names)
	assert.Equal(t, 1, count(t, db, "person_names"))
}

func TestMaintainerModifiedScript(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"01_tables.sql": {Data: []byte("CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT);")},
		"02_data.sql":   {Data: []byte("INSERT INTO person (id, name) VALUES (1, 'joe');")},
	}
	m := newMaintainer(t, db, fsys)
	_, err := m.Update(ctx)
	require.NoError(t, err)

	fsys["01_tables.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT, age INTEGER);")}
	_, err = m.Update(ctx)
	require.ErrorIs(t, err, ErrScriptModified)

	m.FromScratch = true
	names, err := m.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"01_tables.sql", "02_data.sql"}, names)
	assert.Equal(t, 1, count(t, db, "person WHERE age IS NULL"))

	executed, err := m.Registry.Executed(ctx)
	require.NoError(t, err)
	assert.Len(t, executed, 2)
}

func TestMaintainerFailedScript(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"01_bad.sql": {Data: []byte("CREATE TABLE t (id INTEGER);\nINSERT INTO missing VALUES (1);")},
	}
	m := newMaintainer(t, db, fsys)

	_, err := m.Update(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script 01_bad.sql failed")
	assert.Contains(t, err.Error(), "INSERT INTO missing")

	executed, err := m.Registry.Executed(ctx)
	require.NoError(t, err)
	require.Len(t, executed, 1)
	assert.False(t, executed[0].Succeeded)

	_, err = m.Update(ctx)
	require.ErrorIs(t, err, ErrPreviousFailure)
}

func TestIncompatibleChange(t *testing.T) {
	s1 := newScript("01_a.sql", []byte("a"), time.Time{})
	s2 := newScript("02_b.sql", []byte("b"), time.Time{})
	rep := newScript("r.sql", []byte("r"), time.Time{})
	done := func(s Script) ExecutedScript { return ExecutedScript{Script: s, Succeeded: true} }

	assert.NoError(t, incompatibleChange([]Script{s1, s2, rep}, []ExecutedScript{done(s1)}))
	assert.ErrorIs(t, incompatibleChange([]Script{s1, s2}, []ExecutedScript{done(s2)}), ErrScriptOutOfOrder)
	assert.ErrorIs(t, incompatibleChange([]Script{s2}, []ExecutedScript{done(s1), done(s2)}), ErrScriptDeleted)

	changedRep := newScript("r.sql", []byte("changed"), time.Time{})
	assert.NoError(t, incompatibleChange([]Script{s1, changedRep}, []ExecutedScript{done(s1), done(rep)}))
	assert.Equal(t, []Script{changedRep}, dueScripts([]Script{s1, changedRep}, []ExecutedScript{done(s1), done(rep)}))
}

func TestMaintainerDisableConstraints(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"01_tables.sql": {Data: []byte(`PRAGMA foreign_keys = ON;
CREATE TABLE parent (id INTEGER PRIMARY KEY);
CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER REFERENCES parent(id));`)},
	}
	m := newMaintainer(t, db, fsys)
	m.DisableConstraints = true
	_, err := m.Update(ctx)
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO child VALUES (1, 42)")
	require.NoError(t, err)
}
