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

package mock

import (
	"fmt"
	"reflect"
	"strings"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// method is a single mockable function of a contract
type method struct {
	name  string // empty for func contracts
	typ   reflect.Type
	field int // index of the struct field, -1 for func contracts
}

func (m *method) qualifiedName(mockName string) string {
	if m.name == "" {
		return mockName
	}
	return mockName + "." + m.name
}

// errorIndex returns the index of the last result of type error, -1 if there is none
func (m *method) errorIndex() int {
	for i := m.typ.NumOut() - 1; i >= 0; i-- {
		if m.typ.Out(i) == errorType {
			return i
		}
	}
	return -1
}

// contract describes the type a mock stands in for: a func type, a struct with func
// fields (func table), or a pointer to such struct
type contract struct {
	typ     reflect.Type
	methods []*method
	// symbol prefixes of the methods of the func table, e.g. "pkg.RepoFuncs." and
	// "pkg.(*RepoFuncs).", methods delegating to the fields adapt it to an interface
	receivers []string
}

func contractOf(typ reflect.Type) (*contract, error) {
	if typ == nil {
		return nil, fmt.Errorf("cannot mock nil type")
	}
	c := &contract{typ: typ}
	switch {
	case typ.Kind() == reflect.Func:
		c.methods = []*method{{typ: typ, field: -1}}
	case typ.Kind() == reflect.Struct, typ.Kind() == reflect.Pointer && typ.Elem().Kind() == reflect.Struct:
		st := typ
		if st.Kind() == reflect.Pointer {
			st = st.Elem()
		}
		for i := 0; i < st.NumField(); i++ {
			f := st.Field(i)
			if f.IsExported() && f.Type.Kind() == reflect.Func {
				c.methods = append(c.methods, &method{name: f.Name, typ: f.Type, field: i})
			}
		}
		if len(c.methods) == 0 {
			return nil, fmt.Errorf("type %s has no exported func fields to mock", typ)
		}
		c.receivers = receiverPrefixes(st)
	default:
		return nil, fmt.Errorf("type %s cannot be mocked, only func types and structs with func fields are supported", typ)
	}
	return c, nil
}

func receiverPrefixes(st reflect.Type) []string {
	name := st.Name()
	if name == "" {
		return nil
	}
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i] + "[...]"
	}
	pkg := st.PkgPath()
	// the dots of the last path element are escaped in symbol names
	i := strings.LastIndexByte(pkg, '/')
	pkg = pkg[:i+1] + strings.ReplaceAll(pkg[i+1:], ".", "%2e")
	return []string{pkg + "." + name + ".", pkg + ".(*" + name + ")."}
}

// build creates a proxy value, every method of which is routed to handler
func (c *contract) build(handler func(m *method, args []reflect.Value) []reflect.Value) reflect.Value {
	if c.typ.Kind() == reflect.Func {
		m := c.methods[0]
		return reflect.MakeFunc(m.typ, func(args []reflect.Value) []reflect.Value {
			return handler(m, args)
		})
	}

	var st reflect.Value
	var proxy reflect.Value
	if c.typ.Kind() == reflect.Pointer {
		proxy = reflect.New(c.typ.Elem())
		st = proxy.Elem()
	} else {
		proxy = reflect.New(c.typ).Elem()
		st = proxy
	}
	for _, m := range c.methods {
		m := m
		st.Field(m.field).Set(reflect.MakeFunc(m.typ, func(args []reflect.Value) []reflect.Value {
			return handler(m, args)
		}))
	}
	return proxy
}

// function returns the implementation of m in a value of the contract type,
// invalid Value if there is none
func (c *contract) function(v reflect.Value, m *method) reflect.Value {
	if !v.IsValid() {
		return reflect.Value{}
	}
	if m.field < 0 {
		if v.IsNil() {
			return reflect.Value{}
		}
		return v
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	f := v.Field(m.field)
	if f.IsNil() {
		return reflect.Value{}
	}
	return f
}

// flatten expands the variadic argument so every element is matched on its own
func flatten(typ reflect.Type, args []reflect.Value) []reflect.Value {
	if !typ.IsVariadic() || len(args) == 0 {
		return args
	}
	last := args[len(args)-1]
	flat := make([]reflect.Value, 0, len(args)-1+last.Len())
	flat = append(flat, args[:len(args)-1]...)
	for i := 0; i < last.Len(); i++ {
		flat = append(flat, last.Index(i))
	}
	return flat
}

func zeroResults(typ reflect.Type) []reflect.Value {
	ret := make([]reflect.Value, typ.NumOut())
	for i := range ret {
		ret[i] = reflect.Zero(typ.Out(i))
	}
	return ret
}

// defaultResults are the results of a call without defined behavior: zero values,
// except for slices and maps which are empty but not nil
func defaultResults(typ reflect.Type) []reflect.Value {
	ret := make([]reflect.Value, typ.NumOut())
	for i := range ret {
		out := typ.Out(i)
		switch out.Kind() {
		case reflect.Slice:
			ret[i] = reflect.MakeSlice(out, 0, 0)
		case reflect.Map:
			ret[i] = reflect.MakeMap(out)
		default:
			ret[i] = reflect.Zero(out)
		}
	}
	return ret
}

// toResults converts behavior values to the results of m. The trailing error
// result may be omitted, it is nil then.
func toResults(m *method, values []any) ([]reflect.Value, error) {
	numOut := m.typ.NumOut()
	if numOut == 0 && len(values) > 0 {
		return nil, fmt.Errorf("trying to define mock behavior that returns a value for a function without results")
	}
	if len(values) == numOut-1 && m.typ.Out(numOut-1) == errorType {
		values = append(values, nil)
	}
	if len(values) != numOut {
		return nil, fmt.Errorf("function returns %d value(s), but %d given", numOut, len(values))
	}
	ret := make([]reflect.Value, numOut)
	for i, v := range values {
		val, err := toValue(v, m.typ.Out(i))
		if err != nil {
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
		ret[i] = val
	}
	return ret, nil
}

func toValue(v any, typ reflect.Type) (reflect.Value, error) {
	if v == nil {
		if !isNillableType(typ) {
			return reflect.Value{}, fmt.Errorf("nil cannot be used as %s", typ)
		}
		return reflect.Zero(typ), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(typ) {
		out := reflect.New(typ).Elem()
		out.Set(rv)
		return out, nil
	}
	if isNumber(rv.Kind()) && isNumber(typ.Kind()) {
		return rv.Convert(typ), nil
	}
	return reflect.Value{}, fmt.Errorf("value of type %s cannot be used as %s", rv.Type(), typ)
}

func isNillableType(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Pointer, reflect.UnsafePointer, reflect.Interface, reflect.Slice:
		return true
	default:
		return false
	}
}

func isNumber(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}
