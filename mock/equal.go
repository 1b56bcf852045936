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
	"maps"
	"reflect"
)

type comparison struct {
	// ignore zero values in the expected value
	ignoreDefaults bool
	// compare slices and arrays regardless of element order
	lenientOrder bool
}

var (
	strictComparison  = comparison{}
	lenientComparison = comparison{ignoreDefaults: true, lenientOrder: true}
)

// visit is a pair of references already being compared, a revisit is a cycle
type visit struct {
	a, e uintptr
	typ  reflect.Type
}

// standard reflect.Value.Equal compares pointers only as addresses, doesn't
// compare maps and slices, panics and doesn't explain what exactly has failed,
// so this is a reflection walk of our own, also used for lenient comparison
func (c comparison) equal(a, e reflect.Value) (bool, string) {
	return c.walk(a, e, make(map[visit]bool))
}

func (c comparison) walk(a, e reflect.Value, visited map[visit]bool) (bool, string) {
	if a.Kind() == reflect.Interface {
		a = a.Elem()
	}
	if e.Kind() == reflect.Interface {
		e = e.Elem()
	}

	if !e.IsValid() {
		// untyped nil expected
		if !a.IsValid() || (isNillable(a) && a.IsNil()) {
			return true, ""
		}
		return false, fmt.Sprintf("actual value '%v' differs from expected nil", a)
	}
	if c.ignoreDefaults && e.IsZero() {
		return true, ""
	}
	if !a.IsValid() {
		if isNillable(e) && e.IsNil() {
			return true, ""
		}
		return false, fmt.Sprintf("actual value is nil while '%v' is expected", e)
	}

	if a.Type() != e.Type() {
		return false, fmt.Sprintf("actual type '%s' differs from expected '%s'", a.Type(), e.Type())
	}

	switch a.Kind() {
	case reflect.Bool:
		return a.Bool() == e.Bool(), ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() == e.Int(), ""
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.Uint() == e.Uint(), ""
	case reflect.Float32, reflect.Float64:
		return a.Float() == e.Float(), ""
	case reflect.Complex64, reflect.Complex128:
		return a.Complex() == e.Complex(), ""
	case reflect.String:
		return a.String() == e.String(), ""
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		// can be equal only to itself
		return a.Pointer() == e.Pointer(), ""
	case reflect.Pointer:
		if a.Pointer() == e.Pointer() {
			return true, ""
		}
		if a.IsNil() || e.IsNil() {
			return false, fmt.Sprintf("actual value '%v' differs from expected '%v'", a, e)
		}
		if revisited(a, e, visited) {
			return true, ""
		}
		res, str := c.walk(a.Elem(), e.Elem(), visited)
		if !res && str == "" {
			str = fmt.Sprintf("actual value '%v' differs from expected '%v'", a.Elem(), e.Elem())
		}
		return res, str
	case reflect.Struct:
		// same type so same fields
		for i := 0; i < a.NumField(); i++ {
			res, str := c.walk(a.Field(i), e.Field(i), visited)
			if !res {
				if str == "" {
					str = fmt.Sprintf("actual value '%v' differs from expected '%v'", a.Field(i), e.Field(i))
				}
				return false, fmt.Sprintf("struct field '%s': %s", a.Type().Field(i).Name, str)
			}
		}
		return true, ""
	case reflect.Map:
		if a.Pointer() == e.Pointer() {
			return true, ""
		}
		if a.Len() != e.Len() {
			return false, "map lengths differ"
		}
		if revisited(a, e, visited) {
			return true, ""
		}
		for _, k := range e.MapKeys() {
			av := a.MapIndex(k)
			if !av.IsValid() {
				return false, fmt.Sprintf("map key '%v' is missing", k)
			}
			res, str := c.walk(av, e.MapIndex(k), visited)
			if !res {
				if str == "" {
					str = fmt.Sprintf("actual value '%v' differs from expected '%v'", av, e.MapIndex(k))
				}
				return false, fmt.Sprintf("map value for key '%v': %s", k, str)
			}
		}
		return true, ""
	case reflect.Slice, reflect.Array:
		if a.Kind() == reflect.Slice && a.Pointer() == e.Pointer() && a.Len() == e.Len() {
			return true, ""
		}
		if a.Len() != e.Len() {
			return false, fmt.Sprintf("%s lengths differ", a.Kind())
		}
		if a.Kind() == reflect.Slice && revisited(a, e, visited) {
			return true, ""
		}
		if c.lenientOrder {
			return c.equalAnyOrder(a, e, visited)
		}
		for i := 0; i < a.Len(); i++ {
			res, str := c.walk(a.Index(i), e.Index(i), visited)
			if !res {
				if str == "" {
					str = fmt.Sprintf("actual value '%v' differs from expected '%v'", a.Index(i), e.Index(i))
				}
				return false, fmt.Sprintf("%s elem %d: %s", a.Kind(), i, str)
			}
		}
		return true, ""
	}
	return false, "invalid variable Kind" // should never happen
}

func (c comparison) equalAnyOrder(a, e reflect.Value, visited map[visit]bool) (bool, string) {
	used := make([]bool, a.Len())
	for i := 0; i < e.Len(); i++ {
		found := false
		for j := 0; j < a.Len(); j++ {
			if used[j] {
				continue
			}
			// a failed attempt must not leave its pairs marked as visited
			trial := maps.Clone(visited)
			if ok, _ := c.walk(a.Index(j), e.Index(i), trial); ok {
				maps.Copy(visited, trial)
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false, fmt.Sprintf("expected %s elem '%v' not found", e.Kind(), e.Index(i))
		}
	}
	return true, ""
}

// revisited marks the pair of references as visited and reports whether it already was
func revisited(a, e reflect.Value, visited map[visit]bool) bool {
	if a.Pointer() == 0 || e.Pointer() == 0 {
		return false
	}
	v := visit{a: a.Pointer(), e: e.Pointer(), typ: a.Type()}
	if visited[v] {
		return true
	}
	visited[v] = true
	return false
}

func isNillable(val reflect.Value) bool {
	switch val.Kind() {
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Pointer, reflect.UnsafePointer, reflect.Interface, reflect.Slice:
		return true
	default:
		return false
	}
}
