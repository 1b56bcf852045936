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
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

type equalCase struct {
	name     string
	actual   any
	expected any
	equal    bool
	message  string
}

func runEqualCases(t *testing.T, cmp comparison, cases []equalCase) {
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, msg := cmp.equal(reflect.ValueOf(c.actual), reflect.ValueOf(c.expected))
			assert.Equal(t, c.equal, res)
			if c.message != "" {
				assert.Equal(t, c.message, msg)
			}
		})
	}
}

func TestBasicTypes(t *testing.T) {
	runEqualCases(t, strictComparison, []equalCase{
		{"equal bool", true, true, true, ""},
		{"non-equal bool", true, false, false, ""},
		{"equal int", 1, 1, true, ""},
		{"non-equal int", 1, 2, false, ""},
		{"equal int8", int8(1), int8(1), true, ""},
		{"non-equal int64", int64(1), int64(2), false, ""},
		{"equal uint16", uint16(1), uint16(1), true, ""},
		{"non-equal uint64", uint64(1), uint64(2), false, ""},
		{"equal float32", float32(1.5), float32(1.5), true, ""},
		{"non-equal float64", 1.5, 2.5, false, ""},
		{"equal complex128", complex(1, 2), complex(1, 2), true, ""},
		{"non-equal complex64", complex64(1 + 2i), complex64(1 + 4i), false, ""},
		{"equal string", "foo", "foo", true, ""},
		{"non-equal string", "foo", "bar", false, ""},
		{"different types", 1, "bar", false, "actual type 'int' differs from expected 'string'"},
		{"nil expected", nil, nil, true, ""},
		{"nil pointer for nil expected", (*int)(nil), nil, true, ""},
		{"value for nil expected", 1, nil, false, "actual value '1' differs from expected nil"},
	})
}

func TestCompositeTypes(t *testing.T) {
	chan1 := make(chan int)
	chan2 := make(chan int)
	ptr1, ptr2, ptr3 := new(int), new(int), new(int)
	*ptr1, *ptr2, *ptr3 = 1, 1, 3
	type pair struct {
		a int
		b string
	}

	runEqualCases(t, strictComparison, []equalCase{
		// channel can only match to itself
		{"same channel", chan1, chan1, true, ""},
		{"different channel", chan1, chan2, false, ""},
		{"same pointer", ptr1, ptr1, true, ""},
		{"pointer with the same value", ptr1, ptr2, true, ""},
		{"pointer with different value", ptr1, ptr3, false, "actual value '1' differs from expected '3'"},
		{"matching array", [...]int{1, 2}, [...]int{1, 2}, true, ""},
		{"non-matching array", [...]int{1, 2}, [...]int{1, 3}, false, "array elem 1: actual value '2' differs from expected '3'"},
		{"matching struct", pair{5, "foo"}, pair{5, "foo"}, true, ""},
		{"non-matching struct", pair{5, "foo"}, pair{5, "bar"}, false, "struct field 'b': actual value 'foo' differs from expected 'bar'"},
		{"matching map", map[int]string{1: "foo", 2: "bar"}, map[int]string{2: "bar", 1: "foo"}, true, ""},
		{"map with missing key", map[int]string{1: "foo", 3: "bar"}, map[int]string{1: "foo", 2: "bar"}, false, "map key '2' is missing"},
		{"map of diff length", map[int]string{1: "foo"}, map[int]string{1: "foo", 2: "bar"}, false, "map lengths differ"},
		{"matching slice", []int{1, 2}, []int{1, 2}, true, ""},
		{"slice of diff length", []int{1, 2, 3}, []int{1, 2}, false, "slice lengths differ"},
		{"slice in diff order", []int{2, 1}, []int{1, 2}, false, ""},
		{"slice of diff type", []float32{1, 2}, []int{1, 2}, false, ""},
		{"nil and empty slice", []int(nil), []int{}, true, ""},
	})
}

func TestLenientComparison(t *testing.T) {
	type user struct {
		ID   int
		Name string
		Tags []string
	}

	runEqualCases(t, lenientComparison, []equalCase{
		{"zero fields ignored", user{ID: 1, Name: "joe"}, user{Name: "joe"}, true, ""},
		{"non-zero field compared", user{ID: 1, Name: "joe"}, user{Name: "ann"}, false, ""},
		{"slice in diff order", []int{2, 1, 3}, []int{1, 2, 3}, true, ""},
		{"element missing", []int{2, 2, 3}, []int{1, 2, 3}, false, "expected slice elem '1' not found"},
		{"nested slice order", user{Tags: []string{"b", "a"}}, user{Tags: []string{"a", "b"}}, true, ""},
		{"zero expected matches anything", 42, 0, true, ""},
	})
}

type node struct {
	Value int
	Next  *node
}

func TestCyclicValues(t *testing.T) {
	a, b, c := &node{Value: 1}, &node{Value: 1}, &node{Value: 2}
	a.Next, b.Next, c.Next = a, b, c
	m1, m2 := map[string]any{}, map[string]any{}
	m1["self"], m2["self"] = m1, m2

	runEqualCases(t, strictComparison, []equalCase{
		{"equal cycles", a, b, true, ""},
		{"different cycles", a, c, false, ""},
		{"equal map cycles", m1, m2, true, ""},
	})
}

func TestLenientRetryNotShortCircuited(t *testing.T) {
	one, two, expected := new(int), new(int), new(int)
	*one, *two, *expected = 1, 2, 1

	runEqualCases(t, lenientComparison, []equalCase{
		{"element matched once", []*int{two, one}, []*int{expected, expected}, false, ""},
		{"all elements matched", []*int{two, one}, []*int{expected, two}, true, ""},
	})
}
