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

import "reflect"

// Dummy returns a value of T that does nothing. Contract types get a proxy returning
// default values without recording, other pointer types point to a new zero value.
func Dummy[T any]() T {
	v, _ := DummyOf(reflect.TypeFor[T]()).Interface().(T)
	return v
}

// DummyOf is the reflective [Dummy].
func DummyOf(typ reflect.Type) reflect.Value {
	if c, err := contractOf(typ); err == nil {
		return c.build(func(m *method, _ []reflect.Value) []reflect.Value {
			return defaultResults(m.typ)
		})
	}
	switch typ.Kind() {
	case reflect.Pointer:
		return reflect.New(typ.Elem())
	case reflect.Map:
		return reflect.MakeMap(typ)
	case reflect.Slice:
		return reflect.MakeSlice(typ, 0, 0)
	}
	return reflect.Zero(typ)
}
