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
	"strings"
)

/*
Invocation is a single call of a mock proxy, as observed during the test.
*/
type Invocation struct {
	MockName string
	Method   string // empty for mocks of func types
	Args     []any  // variadic arguments are expanded
	Results  []any  // nil until the behavior returns
	File     string
	Line     int

	seq      int
	owner    any // the *Mock[T] invoked, names are not unique
	method   *method
	args     []reflect.Value
	behavior *behaviorEntry // nil when default or real behavior was used
	used     string         // description of the behavior used
	verified bool
}

func newInvocation(mockName string, m *method, args []reflect.Value, site callSite) *Invocation {
	flat := flatten(m.typ, args)
	inv := &Invocation{
		MockName: mockName,
		Method:   m.name,
		Args:     make([]any, len(flat)),
		File:     site.file,
		Line:     site.line,
		method:   m,
		args:     args,
	}
	for i, a := range flat {
		inv.Args[i] = a.Interface()
	}
	return inv
}

// Arg returns the argument with index i, variadic arguments being expanded.
func (i *Invocation) Arg(n int) any {
	return i.Args[n]
}

// Values returns the arguments as they were passed, i.e. variadic arguments as a slice.
func (i *Invocation) Values() []reflect.Value {
	return i.args
}

// Seq returns the zero-based position of the invocation in its scenario.
func (i *Invocation) Seq() int {
	return i.seq
}

// Verified reports whether the invocation was matched by an assertion.
func (i *Invocation) Verified() bool {
	return i.verified
}

func (i *Invocation) setResults(results []reflect.Value) {
	i.Results = make([]any, len(results))
	for n, r := range results {
		i.Results[n] = r.Interface()
	}
}

func (i *Invocation) callSite() callSite {
	return callSite{file: i.File, line: i.Line}
}

// String formats the invocation as code, e.g. repo.Get(42, "foo")
func (i *Invocation) String() string {
	var b strings.Builder
	b.WriteString(i.method.qualifiedName(i.MockName))
	b.WriteString("(")
	for n, a := range i.Args {
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(formatValue(a))
	}
	b.WriteString(")")
	return b.String()
}

func (i *Invocation) resultString() string {
	switch len(i.Results) {
	case 0:
		return ""
	case 1:
		return formatValue(i.Results[0])
	}
	parts := make([]string, len(i.Results))
	for n, r := range i.Results {
		parts[n] = formatValue(r)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// matchingInvocation is the template recorded by a matching proxy call
type matchingInvocation struct {
	mockName string
	method   *method
	matchers []ArgumentMatcher
	site     callSite
}

// score returns how well inv matches, -1 for no match
func (mi *matchingInvocation) score(inv *Invocation) int {
	if inv.MockName != mi.mockName || inv.method != mi.method || len(inv.Args) != len(mi.matchers) {
		return -1
	}
	total := 0
	for n, m := range mi.matchers {
		res := m.Matches(inv.Args[n])
		if res == NoMatch {
			return -1
		}
		total += int(res)
	}
	return total
}

func (mi *matchingInvocation) String() string {
	var b strings.Builder
	b.WriteString(mi.method.qualifiedName(mi.mockName))
	b.WriteString("(")
	for n, m := range mi.matchers {
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(m.String())
	}
	b.WriteString(")")
	return b.String()
}
