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

// matching starts a matching invocation and returns the matching proxy. The next
// call of the proxy builds the matching invocation and passes it to apply.
func (m *Mock[T]) matching(operation string, apply func(mi *matchingInvocation)) T {
	m.init()
	site := callerOutside()
	repository.start(m.name, operation, site)

	proxy := m.contract.build(func(meth *method, args []reflect.Value) []reflect.Value {
		state := repository.end()
		if state == nil {
			panic(fmt.Sprintf("matching proxy returned by %s.%s() can only be invoked once", m.name, operation))
		}
		mi := buildMatchingInvocation(state, m.name, meth, args, callerOutside(m.contract.receivers...))
		apply(mi)
		return zeroResults(meth.typ)
	})
	return proxy.Interface().(T)
}

/*
buildMatchingInvocation turns the proxy call arguments and the registered matchers
into the invocation template.

Matchers are registered in the order their helpers are evaluated, which is the
order of arguments. What remains to be found is which arguments they belong to.
*/
func buildMatchingInvocation(state *matchingState, mockName string, m *method, args []reflect.Value, end callSite) *matchingInvocation {
	flat := flatten(m.typ, args)
	mi := &matchingInvocation{
		mockName: mockName,
		method:   m,
		matchers: make([]ArgumentMatcher, len(flat)),
		site:     state.start,
	}

	switch len(state.matchers) {
	case 0:
		for i, a := range flat {
			mi.matchers[i] = literalMatcher{expected: a.Interface()}
		}
		return mi
	case len(flat):
		for i, rm := range state.matchers {
			mi.matchers[i] = rm.matcher
		}
		return mi
	}

	if len(state.matchers) > len(flat) {
		panic(fmt.Sprintf("%d argument matchers registered for %s, which has only %d argument(s). Matchers must be used only as arguments of the matching invocation",
			len(state.matchers), m.qualifiedName(mockName), len(flat)))
	}

	helpers := make(map[string]bool)
	for _, rm := range state.matchers {
		if rm.helper == "" || rm.site.line < state.start.line {
			panic(mixedArgumentsError(mockName, m))
		}
		helpers[rm.helper] = true
	}

	positions, err := sources.matcherPositions(window{start: state.start, end: end, operation: state.operation}, m, len(flat), helpers)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", mixedArgumentsError(mockName, m), err))
	}
	next := 0
	for i, isMatcher := range positions {
		if !isMatcher {
			mi.matchers[i] = literalMatcher{expected: flat[i].Interface()}
			continue
		}
		if next >= len(state.matchers) {
			break
		}
		mi.matchers[i] = state.matchers[next].matcher
		next++
	}
	if next != len(state.matchers) || containsNil(mi.matchers) {
		panic(fmt.Sprintf("%s: found %d matcher position(s) in the source but %d matcher(s) were registered",
			mixedArgumentsError(mockName, m), next, len(state.matchers)))
	}
	return mi
}

func mixedArgumentsError(mockName string, m *method) string {
	return fmt.Sprintf("unable to identify argument matchers of %s, either use argument matchers for all arguments or for none of them",
		m.qualifiedName(mockName))
}

func containsNil(matchers []ArgumentMatcher) bool {
	for _, m := range matchers {
		if m == nil {
			return true
		}
	}
	return false
}
