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
Package inject sets fields of the objects under test, including unexported ones, to
test doubles.

	svc := &Service{}
	inject.Into(repo.Proxy(), svc, "store.repo")  // by property path
	inject.IntoByType(clock, svc)                 // into the only field of matching type

Package-level variables are replaced through their pointer, the returned function
restores the original value:

	defer inject.IntoStatic(&timeout, time.Millisecond)()
*/
package inject

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unsafe"
)

var (
	ErrInvalidTarget = errors.New("invalid injection target")
	ErrNoField       = errors.New("no field to inject into")
	ErrAmbiguous     = errors.New("ambiguous injection")
)

/*
Into sets the field at the dotted property path of target, which must be a pointer to
a struct, to value and returns the previous value of the field. Pointers on the path
are followed, values under interfaces too if they hold pointers to structs.
*/
func Into(value, target any, path string) (any, error) {
	v, err := structOf(target)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty property path", ErrNoField)
	}

	names := strings.Split(path, ".")
	for i, name := range names {
		sf, ok := v.Type().FieldByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: property %s not found on %s", ErrNoField, strings.Join(names[:i+1], "."), v.Type())
		}
		f, err := v.FieldByIndexErr(sf.Index)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", strings.Join(names[:i+1], "."), err)
		}
		f = accessible(f)
		if i == len(names)-1 {
			return set(f, value, path)
		}
		next, err := follow(f)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", strings.Join(names[:i+1], "."), err)
		}
		v = next
	}
	return nil, nil // unreachable
}

/*
IntoByType sets the field of target whose type is the type of value. If there is no
such field, the value is injected into the field of the most specific type value is
assignable to, e.g. an interface the value implements. It is an error if no field or
more than one equally specific fields qualify.
*/
func IntoByType(value, target any) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("%w: cannot inject untyped nil by type", ErrInvalidTarget)
	}
	return IntoByTypeOf(value, reflect.TypeOf(value), target)
}

// IntoByTypeOf is [IntoByType] with the type given explicitly, value may be nil then.
func IntoByTypeOf(value any, typ reflect.Type, target any) (any, error) {
	v, err := structOf(target)
	if err != nil {
		return nil, err
	}
	idx, err := fieldByType(v.Type(), typ)
	if err != nil {
		return nil, err
	}
	return set(accessible(v.Field(idx)), value, v.Type().Field(idx).Name)
}

func fieldByType(st, typ reflect.Type) (int, error) {
	var exact, candidates []int
	for i := 0; i < st.NumField(); i++ {
		ft := st.Field(i).Type
		if ft == typ {
			exact = append(exact, i)
		} else if typ.AssignableTo(ft) {
			candidates = append(candidates, i)
		}
	}
	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) > 1:
		return -1, ambiguous(st, typ, exact)
	case len(candidates) == 0:
		return -1, fmt.Errorf("%w: no field with type assignable from %s found in %s", ErrNoField, typ, st)
	case len(candidates) == 1:
		return candidates[0], nil
	}

	// most specific is the one assignable to all others
	for _, i := range candidates {
		specific := true
		for _, j := range candidates {
			fi, fj := st.Field(i).Type, st.Field(j).Type
			if i != j && (fi == fj || !fi.AssignableTo(fj)) {
				specific = false
				break
			}
		}
		if specific {
			return i, nil
		}
	}
	return -1, ambiguous(st, typ, candidates)
}

func ambiguous(st, typ reflect.Type, fields []int) error {
	names := make([]string, len(fields))
	for n, i := range fields {
		names[n] = st.Field(i).Name
	}
	return fmt.Errorf("%w: multiple candidate fields found in %s for %s, none of them more specific than all others: %s",
		ErrAmbiguous, st, typ, strings.Join(names, ", "))
}

// IntoStatic sets the variable ptr points to and returns the function restoring the previous value.
func IntoStatic[T any](ptr *T, value T) (restore func()) {
	if ptr == nil {
		panic("inject.IntoStatic() called with nil pointer")
	}
	old := *ptr
	*ptr = value
	return func() { *ptr = old }
}

// Value sets the variable ptr points to, ptr may point to an unexported field.
func Value(ptr reflect.Value, value any) (any, error) {
	if ptr.Kind() != reflect.Pointer || ptr.IsNil() {
		return nil, fmt.Errorf("%w: %s is not a non-nil pointer", ErrInvalidTarget, ptr.Type())
	}
	return set(ptr.Elem(), value, ptr.Type().Elem().String())
}

func structOf(target any) (reflect.Value, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: target must be a non-nil pointer to struct, got %T", ErrInvalidTarget, target)
	}
	return v.Elem(), nil
}

func follow(f reflect.Value) (reflect.Value, error) {
	for {
		switch f.Kind() {
		case reflect.Struct:
			return f, nil
		case reflect.Pointer, reflect.Interface:
			if f.IsNil() {
				return reflect.Value{}, fmt.Errorf("%w: value is nil", ErrInvalidTarget)
			}
			f = f.Elem()
			if f.Kind() == reflect.Struct && !f.CanSet() {
				return reflect.Value{}, fmt.Errorf("%w: interface holds struct value, not a pointer", ErrInvalidTarget)
			}
		default:
			return reflect.Value{}, fmt.Errorf("%w: %s is not a struct", ErrInvalidTarget, f.Type())
		}
	}
}

// accessible returns settable version of f, even for unexported fields
func accessible(f reflect.Value) reflect.Value {
	if f.CanSet() || !f.CanAddr() {
		return f
	}
	return reflect.NewAt(f.Type(), unsafe.Pointer(f.UnsafeAddr())).Elem()
}

func set(f reflect.Value, value any, name string) (any, error) {
	if !f.CanSet() {
		return nil, fmt.Errorf("%w: %s cannot be set", ErrInvalidTarget, name)
	}
	var nv reflect.Value
	if value == nil {
		switch f.Kind() {
		case reflect.Chan, reflect.Func, reflect.Map, reflect.Pointer, reflect.Interface, reflect.Slice:
			nv = reflect.Zero(f.Type())
		default:
			return nil, fmt.Errorf("%w: nil cannot be injected into %s of type %s", ErrInvalidTarget, name, f.Type())
		}
	} else {
		nv = reflect.ValueOf(value)
		if !nv.Type().AssignableTo(f.Type()) {
			return nil, fmt.Errorf("%w: value of type %s cannot be injected into %s of type %s", ErrInvalidTarget, nv.Type(), name, f.Type())
		}
	}
	old := f.Interface()
	f.Set(nv)
	return old, nil
}
