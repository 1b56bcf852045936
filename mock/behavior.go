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
	"sync"
)

// Behavior is a custom implementation of a mocked function, see [Mock.Performs].
// It returns the function results, the trailing error may be omitted.
type Behavior func(inv *Invocation) []any

type mockBehavior interface {
	execute(inv *Invocation) []reflect.Value
	String() string
}

type valueReturning struct {
	values []reflect.Value
	desc   string
}

func newValueReturning(m *method, values []any) mockBehavior {
	results, err := toResults(m, values)
	if err != nil {
		panic(fmt.Sprintf("invalid behavior for %s: %v", m.typ, err))
	}
	return valueReturning{values: results, desc: "returns " + formatResults(results)}
}

func newErrorRaising(m *method, err error) mockBehavior {
	idx := m.errorIndex()
	if idx < 0 {
		panic(fmt.Sprintf("trying to define mock behavior that returns an error for %s, which has no error result", m.typ))
	}
	results := zeroResults(m.typ)
	if err != nil {
		results[idx] = reflect.ValueOf(&err).Elem()
	}
	return valueReturning{values: results, desc: "raises " + formatValue(err)}
}

func (b valueReturning) execute(*Invocation) []reflect.Value {
	return b.values
}

func (b valueReturning) String() string { return b.desc }

type panicking struct {
	value any
}

func (b panicking) execute(*Invocation) []reflect.Value {
	panic(b.value)
}

func (b panicking) String() string { return "panics with " + formatValue(b.value) }

type performing struct {
	fn     Behavior
	method *method
}

func (b performing) execute(inv *Invocation) []reflect.Value {
	results, err := toResults(b.method, b.fn(inv))
	if err != nil {
		panic(fmt.Sprintf("behavior of %s returned invalid results: %v", inv.method.qualifiedName(inv.MockName), err))
	}
	return results
}

func (b performing) String() string { return "performs custom behavior" }

type defaultReturning struct{}

func (defaultReturning) execute(inv *Invocation) []reflect.Value {
	return defaultResults(inv.method.typ)
}

func (defaultReturning) String() string { return "returns default values" }

type realCalling struct {
	fn reflect.Value
}

func (b realCalling) execute(inv *Invocation) []reflect.Value {
	if inv.method.typ.IsVariadic() {
		return b.fn.CallSlice(inv.args)
	}
	return b.fn.Call(inv.args)
}

func (realCalling) String() string { return "calls real implementation" }

// behaviorEntry is a configured behavior, scoped to one mock and one method
type behaviorEntry struct {
	*matchingInvocation
	behavior mockBehavior
	once     bool
	used     int
	seq      int
}

func (e *behaviorEntry) String() string {
	kind := "always"
	if e.once {
		kind = "once"
	}
	return fmt.Sprintf("%s %s %s, defined at %s", e.matchingInvocation, kind, e.behavior, e.site)
}

// behaviorRegistry holds behaviors of a single mock
type behaviorRegistry struct {
	mu     sync.Mutex
	once   []*behaviorEntry
	always []*behaviorEntry
	seq    int
}

func (r *behaviorRegistry) add(e *behaviorEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.seq = r.seq
	r.seq++
	if e.once {
		r.once = append(r.once, e)
	} else {
		r.always = append(r.always, e)
	}
}

/*
find returns the behavior for inv, nil if none matches.
Unused once-behaviors come first, the best matching one is consumed, and on equal
score the earliest defined wins. Otherwise the best always-behavior is used, on
equal score the latest defined one wins, so a behavior can be redefined.
*/
func (r *behaviorRegistry) find(inv *Invocation) *behaviorEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *behaviorEntry
	bestScore := -1
	for _, e := range r.once {
		if e.used > 0 {
			continue
		}
		if s := e.score(inv); s > bestScore {
			best, bestScore = e, s
		}
	}
	if best != nil {
		best.used++
		return best
	}
	for _, e := range r.always {
		if s := e.score(inv); s >= bestScore && s >= 0 {
			best, bestScore = e, s
		}
	}
	if best != nil {
		best.used++
	}
	return best
}

func (r *behaviorRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.once = nil
	r.always = nil
}

func formatResults(results []reflect.Value) string {
	if len(results) == 0 {
		return "nothing"
	}
	s := ""
	for i, r := range results {
		if i > 0 {
			s += ", "
		}
		s += formatValue(r.Interface())
	}
	return s
}
