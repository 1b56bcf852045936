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

package testkit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"unsafe"

	"github.com/qrdl/testkit/inject"
	"github.com/qrdl/testkit/mock"
	"go.uber.org/zap"
)

var knownKinds = []string{"tempfile", "tempdir", "file", "dummy", "db", "tx", "gorm", "tested"}

// field is a fixture field, value is settable even if the field is unexported
type field struct {
	name   string
	typ    reflect.Type
	value  reflect.Value
	kind   string // testkit tag before '='
	arg    string // testkit tag after '='
	inject string
}

func (f *field) errorf(format string, args ...any) error {
	return fmt.Errorf("field %s of type %s: %s", f.name, f.typ, fmt.Sprintf(format, args...))
}

func scan(v reflect.Value) ([]*field, *reflect.StructField, error) {
	var (
		fields []*field
		marker *reflect.StructField
	)
	st := v.Type()
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		if sf.Anonymous && sf.Type == dataSetType {
			marker = &sf
			continue
		}
		f := &field{
			name:   sf.Name,
			typ:    sf.Type,
			value:  settable(v.Field(i)),
			inject: sf.Tag.Get("inject"),
		}
		if tag, ok := sf.Tag.Lookup("testkit"); ok {
			f.kind, f.arg, _ = strings.Cut(tag, "=")
			if !slices.Contains(knownKinds, f.kind) {
				return nil, nil, f.errorf("unknown testkit tag %q", tag)
			}
		}
		fields = append(fields, f)
	}
	return fields, marker, nil
}

func settable(v reflect.Value) reflect.Value {
	if v.CanSet() {
		return v
	}
	return reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
}

func filter(fields []*field, kinds ...string) []*field {
	var res []*field
	for _, f := range fields {
		if slices.Contains(kinds, f.kind) {
			res = append(res, f)
		}
	}
	return res
}

var (
	stringType = reflect.TypeFor[string]()
	bytesType  = reflect.TypeFor[[]byte]()
	fileType   = reflect.TypeFor[*os.File]()
)

func (e *Env) setTempFiles(fields []*field) error {
	for _, f := range filter(fields, "tempdir", "tempfile") {
		if f.kind == "tempdir" {
			if f.typ != stringType {
				return f.errorf("testkit:\"tempdir\" requires string")
			}
			f.value.SetString(e.T.TempDir())
			continue
		}
		if f.typ != stringType && f.typ != fileType {
			return f.errorf("testkit:\"tempfile\" requires string or *os.File")
		}

		var (
			file *os.File
			err  error
		)
		if f.arg == "" {
			file, err = os.CreateTemp(e.T.TempDir(), "testkit-*")
		} else {
			file, err = os.Create(filepath.Join(e.T.TempDir(), f.arg))
		}
		if err != nil {
			return f.errorf("%v", err)
		}
		if f.typ == fileType {
			e.T.Cleanup(func() { file.Close() })
			f.value.Set(reflect.ValueOf(file))
			continue
		}
		if err := file.Close(); err != nil {
			return f.errorf("%v", err)
		}
		f.value.SetString(file.Name())
	}
	return nil
}

func (e *Env) setFiles(fields []*field) error {
	for _, f := range filter(fields, "file") {
		if f.arg == "" {
			return f.errorf("testkit:\"file\" requires a path, e.g. testkit:\"file=testdata/input.json\"")
		}
		data, err := os.ReadFile(f.arg)
		if err != nil {
			return f.errorf("%v", err)
		}
		switch f.typ {
		case stringType:
			f.value.SetString(string(data))
		case bytesType:
			f.value.SetBytes(data)
		default:
			return f.errorf("testkit:\"file\" requires string or []byte")
		}
	}
	return nil
}

// setMocks initializes all mock fields, tagged or not
func (e *Env) setMocks(fixture any, fields []*field, hooks []func(string, any)) error {
	hook, _ := fixture.(MockCreatedHook)
	for _, f := range fields {
		if !mock.IsMockType(f.typ) {
			continue
		}
		if f.kind != "" {
			return f.errorf("mocks cannot be tagged testkit:%q", f.kind)
		}
		// a mock already set is only reset, hooks are for new mocks
		created := f.value.IsNil()
		if created {
			f.value.Set(reflect.New(f.typ.Elem()))
		}
		m := f.value.Interface()
		mock.Initialize(m, e.T, f.name, mock.WithLogger(e.Log))
		if !created {
			e.Log.Debug("mock reset", zap.String("field", f.name), zap.Stringer("type", f.typ))
			continue
		}
		if hook != nil {
			hook.AfterCreateMock(f.name, m)
		}
		for _, h := range hooks {
			h(f.name, m)
		}
		e.Log.Debug("mock created", zap.String("field", f.name), zap.Stringer("type", f.typ))
	}
	return nil
}

func (e *Env) setDummies(fields []*field) error {
	for _, f := range filter(fields, "dummy") {
		f.value.Set(mock.DummyOf(f.typ))
	}
	return nil
}

/*
inject sets the fields tagged inject of the objects under test. A source is
injected into every target that has a field for it, yet it is an error if no
target has one.
*/
func (e *Env) inject(fields []*field) error {
	var targets []any
	for _, f := range filter(fields, "tested") {
		target, err := testedObject(f)
		if err != nil {
			return err
		}
		targets = append(targets, target)
	}

	for _, f := range fields {
		if f.inject == "" {
			continue
		}
		if len(targets) == 0 {
			return f.errorf("no testkit:\"tested\" field to inject into")
		}
		value, typ := f.value.Interface(), f.typ
		if proxy, ok := mock.ProxyOf(value); ok {
			value, typ = proxy, reflect.TypeOf(proxy)
		}

		injected := 0
		for _, target := range targets {
			var err error
			if f.inject == "bytype" {
				_, err = inject.IntoByTypeOf(value, typ, target)
			} else {
				_, err = inject.Into(value, target, f.inject)
			}
			if errors.Is(err, inject.ErrNoField) {
				continue
			}
			if err != nil {
				return f.errorf("%v", err)
			}
			injected++
		}
		if injected == 0 {
			return f.errorf("no tested object has a field for inject:%q", f.inject)
		}
	}
	return nil
}

// testedObject returns the pointer to the target struct, creating it if the field is nil
func testedObject(f *field) (any, error) {
	switch {
	case f.typ.Kind() == reflect.Struct:
		return f.value.Addr().Interface(), nil
	case f.typ.Kind() == reflect.Pointer && f.typ.Elem().Kind() == reflect.Struct:
		if f.value.IsNil() {
			f.value.Set(reflect.New(f.typ.Elem()))
		}
		return f.value.Interface(), nil
	}
	return nil, f.errorf("testkit:\"tested\" requires a struct or a pointer to struct")
}
