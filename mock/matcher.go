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
)

// MatchResult is the outcome of matching a single argument. Results are ordered,
// Exact is a better match than Match.
type MatchResult int

const (
	NoMatch MatchResult = iota
	Match
	Exact
)

func (r MatchResult) String() string {
	switch r {
	case Match:
		return "match"
	case Exact:
		return "exact"
	default:
		return "no match"
	}
}

/*
ArgumentMatcher is a rule matching a call argument more loosely than equality.

Matchers are not passed to the proxy directly, because the proxy has the signature
of the mocked function. Instead a matcher helper registers the matcher and returns
the zero value of the argument type, so it can be used inline:

	repo.Returns(user).Get(mock.Any[int]())

Custom helpers are written with [Register]:

	func positive() int {
	    return mock.Register[int](mock.MatcherFunc("positive", func(v any) bool { return v.(int) > 0 }))
	}
*/
type ArgumentMatcher interface {
	Matches(arg any) MatchResult
	String() string
}

// MatcherFunc makes an [ArgumentMatcher] out of a predicate.
func MatcherFunc(description string, pred func(arg any) bool) ArgumentMatcher {
	return predicateMatcher{description: description, pred: pred}
}

/*
Register registers a custom matcher for the matching invocation being defined and
returns the zero value of T. It must be called from a helper function which is
then used as an argument of the matching invocation, the name of the helper is how
the argument position gets identified.
*/
func Register[T any](m ArgumentMatcher) T {
	repository.register(m)
	var zero T
	return zero
}

// Any matches any value, including nil.
func Any[T any]() T {
	repository.register(anyMatcher{})
	var zero T
	return zero
}

// Eq matches values equal to v. Comparable values are compared with ==, others with [reflect.DeepEqual].
func Eq[T any](v T) T {
	repository.register(eqMatcher{expected: v})
	var zero T
	return zero
}

// RefEq matches values that are equal to v by reflection, following pointers.
func RefEq[T any](v T) T {
	repository.register(reflectionMatcher{expected: v, cmp: strictComparison, name: "RefEq"})
	var zero T
	return zero
}

// LenEq is a lenient [RefEq]: zero values in v are not compared and the order of slice elements doesn't matter.
func LenEq[T any](v T) T {
	repository.register(reflectionMatcher{expected: v, cmp: lenientComparison, name: "LenEq"})
	var zero T
	return zero
}

// Same matches the very same instance: pointers, maps, slices, channels and funcs by address, other values by ==.
func Same[T any](v T) T {
	repository.register(sameMatcher{expected: v})
	var zero T
	return zero
}

// NotNil matches any non-nil value.
func NotNil[T any]() T {
	repository.register(nilMatcher{negate: true})
	var zero T
	return zero
}

// Nil matches nil values only.
func Nil[T any]() T {
	repository.register(nilMatcher{})
	var zero T
	return zero
}

// Matches uses a typed predicate.
func Matches[T any](description string, pred func(T) bool) T {
	repository.register(predicateMatcher{description: description, pred: func(arg any) bool {
		v, ok := arg.(T)
		if !ok {
			return false
		}
		return pred(v)
	}})
	var zero T
	return zero
}

// Capture matches any value and stores the matched argument in dst.
func Capture[T any](dst *T) T {
	repository.register(&capturingMatcher[T]{dst: dst})
	var zero T
	return zero
}

type anyMatcher struct{}

func (anyMatcher) Matches(any) MatchResult { return Match }
func (anyMatcher) String() string          { return "Any()" }

type eqMatcher struct {
	expected any
}

func (m eqMatcher) Matches(arg any) MatchResult {
	if m.expected == nil || arg == nil {
		if isNilValue(m.expected) && isNilValue(arg) {
			return Match
		}
		return NoMatch
	}
	if reflect.TypeOf(m.expected).Comparable() && reflect.TypeOf(arg) == reflect.TypeOf(m.expected) {
		if arg == m.expected {
			return Match
		}
		return NoMatch
	}
	if reflect.DeepEqual(arg, m.expected) {
		return Match
	}
	return NoMatch
}

func (m eqMatcher) String() string { return "Eq(" + formatValue(m.expected) + ")" }

type reflectionMatcher struct {
	expected any
	cmp      comparison
	name     string
}

func (m reflectionMatcher) Matches(arg any) MatchResult {
	if ok, _ := m.cmp.equal(reflect.ValueOf(arg), reflect.ValueOf(m.expected)); ok {
		return Match
	}
	return NoMatch
}

func (m reflectionMatcher) String() string { return m.name + "(" + formatValue(m.expected) + ")" }

type sameMatcher struct {
	expected any
}

func (m sameMatcher) Matches(arg any) MatchResult {
	a, e := reflect.ValueOf(arg), reflect.ValueOf(m.expected)
	if !a.IsValid() || !e.IsValid() {
		if a.IsValid() == e.IsValid() {
			return Exact
		}
		return NoMatch
	}
	if a.Type() != e.Type() {
		return NoMatch
	}
	switch a.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		if a.Pointer() == e.Pointer() {
			return Exact
		}
		return NoMatch
	}
	if a.Comparable() && a.Equal(e) {
		return Exact
	}
	return NoMatch
}

func (m sameMatcher) String() string { return "Same(" + formatValue(m.expected) + ")" }

type nilMatcher struct {
	negate bool
}

func (m nilMatcher) Matches(arg any) MatchResult {
	if isNilValue(arg) != m.negate {
		return Match
	}
	return NoMatch
}

func (m nilMatcher) String() string {
	if m.negate {
		return "NotNil()"
	}
	return "Nil()"
}

type predicateMatcher struct {
	description string
	pred        func(any) bool
}

func (m predicateMatcher) Matches(arg any) MatchResult {
	if m.pred(arg) {
		return Match
	}
	return NoMatch
}

func (m predicateMatcher) String() string { return m.description + "()" }

type capturingMatcher[T any] struct {
	dst *T
}

func (m *capturingMatcher[T]) Matches(arg any) MatchResult {
	if v, ok := arg.(T); ok {
		*m.dst = v
	} else if arg == nil {
		var zero T
		*m.dst = zero
	}
	return Match
}

func (m *capturingMatcher[T]) String() string { return "Capture()" }

// literalMatcher is used for arguments that weren't produced by a matcher helper
type literalMatcher struct {
	expected any
}

func (m literalMatcher) Matches(arg any) MatchResult {
	if ok, _ := strictComparison.equal(reflect.ValueOf(arg), reflect.ValueOf(m.expected)); ok {
		return Exact
	}
	return NoMatch
}

func (m literalMatcher) String() string { return formatValue(m.expected) }

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return isNillable(rv) && rv.IsNil()
}

func formatValue(v any) string {
	if v == nil {
		return "nil"
	}
	var s string
	switch v.(type) {
	case string, error:
		s = fmt.Sprintf("%q", fmt.Sprint(v))
	default:
		s = fmt.Sprintf("%v", v)
	}
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}
