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

package inject_test

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrdl/testkit/inject"
)

type store struct {
	repo   io.Reader
	Name   string
	parent *store
}

type service struct {
	store  *store
	writer io.Writer
	rw     io.ReadWriter
	limit  int
	Public string
}

var timeout = 10

func TestInto(t *testing.T) {
	svc := &service{store: &store{Name: "main"}}

	old, err := inject.Into(7, svc, "limit")
	require.NoError(t, err)
	assert.Equal(t, 0, old)
	assert.Equal(t, 7, svc.limit)

	r := strings.NewReader("data")
	_, err = inject.Into(r, svc, "store.repo")
	require.NoError(t, err)
	assert.Same(t, r, svc.store.repo)

	old, err = inject.Into("backup", svc, "store.Name")
	require.NoError(t, err)
	assert.Equal(t, "main", old)
	assert.Equal(t, "backup", svc.store.Name)

	_, err = inject.Into(nil, svc, "store")
	require.NoError(t, err)
	assert.Nil(t, svc.store)
}

func TestIntoErrors(t *testing.T) {
	svc := &service{}

	_, err := inject.Into(1, svc, "missing")
	assert.ErrorIs(t, err, inject.ErrNoField)

	_, err = inject.Into("x", svc, "store.Name")
	assert.ErrorIs(t, err, inject.ErrInvalidTarget, "nil pointer on the path")

	_, err = inject.Into("x", svc, "limit")
	assert.ErrorIs(t, err, inject.ErrInvalidTarget, "wrong type")

	_, err = inject.Into(nil, svc, "limit")
	assert.ErrorIs(t, err, inject.ErrInvalidTarget, "nil for int")

	_, err = inject.Into(1, *svc, "limit")
	assert.ErrorIs(t, err, inject.ErrInvalidTarget, "not a pointer")

	_, err = inject.Into(1, svc, "limit.value")
	assert.ErrorIs(t, err, inject.ErrInvalidTarget, "not a struct")

	_, err = inject.Into(1, svc, "")
	assert.ErrorIs(t, err, inject.ErrNoField)
}

func TestIntoByType(t *testing.T) {
	svc := &service{}

	s := &store{}
	_, err := inject.IntoByType(s, svc)
	require.NoError(t, err)
	assert.Same(t, s, svc.store)

	// *bytes.Buffer is assignable to writer and rw, rw is more specific
	buf := &bytes.Buffer{}
	_, err = inject.IntoByType(buf, svc)
	require.NoError(t, err)
	assert.Same(t, buf, svc.rw)
	assert.Nil(t, svc.writer)

	_, err = inject.IntoByTypeOf(nil, reflect.TypeFor[*store](), svc)
	require.NoError(t, err)
	assert.Nil(t, svc.store)
}

func TestIntoByTypeErrors(t *testing.T) {
	_, err := inject.IntoByType(1.5, &service{})
	assert.ErrorIs(t, err, inject.ErrNoField)

	type twoWriters struct {
		a io.Writer
		b io.Writer
	}
	_, err = inject.IntoByType(&bytes.Buffer{}, &twoWriters{})
	assert.ErrorIs(t, err, inject.ErrAmbiguous)

	_, err = inject.IntoByType(nil, &service{})
	assert.ErrorIs(t, err, inject.ErrInvalidTarget)
}

func TestIntoStatic(t *testing.T) {
	restore := inject.IntoStatic(&timeout, 1)
	assert.Equal(t, 1, timeout)
	restore()
	assert.Equal(t, 10, timeout)

	assert.Panics(t, func() { inject.IntoStatic[int](nil, 1) })
}

func TestValue(t *testing.T) {
	svc := &service{}
	f := reflect.ValueOf(svc).Elem().FieldByName("limit")
	ptr := reflect.NewAt(f.Type(), f.Addr().UnsafePointer())

	_, err := inject.Value(ptr, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, svc.limit)

	_, err = inject.Value(reflect.ValueOf(3), 3)
	assert.ErrorIs(t, err, inject.ErrInvalidTarget)
}
