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
	"bytes"
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// callSite is a location in the code calling into this package
type callSite struct {
	file     string
	line     int
	function string
	via      string // name of the contract method the call was made through, if any
}

func (c callSite) String() string {
	if c.file == "" {
		return "unknown location"
	}
	return c.file + ":" + strconv.Itoa(c.line)
}

type registeredMatcher struct {
	matcher ArgumentMatcher
	helper  string   // name of the helper function, as written at the call site
	site    callSite // line -1 if the call site couldn't be identified
}

// matchingState is a matching invocation waiting for its proxy call
type matchingState struct {
	mockName  string
	operation string
	start     callSite
	matchers  []registeredMatcher
}

func (s *matchingState) syntaxError() string {
	return fmt.Sprintf("Invalid syntax. %s.%s() must be followed by a method invocation on the returned proxy. E.g. %s.%s().Method()",
		s.mockName, s.operation, s.mockName, s.operation)
}

// matcherRepository bridges matcher helpers, called inline as arguments, to the
// matching invocation they belong to. State is kept per goroutine.
type matcherRepository struct {
	mu     sync.Mutex
	states map[int64]*matchingState
}

var repository = &matcherRepository{states: make(map[int64]*matchingState)}

func (r *matcherRepository) start(mockName, operation string, site callSite) {
	id := goroutineID()

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.states[id]; ok {
		delete(r.states, id)
		panic(prev.syntaxError())
	}
	r.states[id] = &matchingState{mockName: mockName, operation: operation, start: site}
}

// end removes and returns the pending matching state of the current goroutine
func (r *matcherRepository) end() *matchingState {
	id := goroutineID()

	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.states[id]
	delete(r.states, id)
	return state
}

// pending returns the pending state without removing it, nil if there is none
func (r *matcherRepository) pending() *matchingState {
	id := goroutineID()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[id]
}

func (r *matcherRepository) assertNotExpectingInvocation() {
	if state := r.pending(); state != nil {
		r.end()
		panic(state.syntaxError())
	}
}

func (r *matcherRepository) register(m ArgumentMatcher) {
	id := goroutineID()

	r.mu.Lock()
	state := r.states[id]
	r.mu.Unlock()
	if state == nil {
		panic(fmt.Sprintf("argument matcher %s can only be used as an argument of a matching invocation, e.g. myMock.Returns(value).Method(mock.Any[int]())", m))
	}

	helper, site := helperCallSite(state.start.function)
	state.matchers = append(state.matchers, registeredMatcher{matcher: m, helper: helper, site: site})
}

// helperCallSite walks the stack up to the function that started the matching
// invocation. The frame right below it is the matcher helper as it appears in
// the source, and the frame itself holds the line of the helper call.
func helperCallSite(recorder string) (string, callSite) {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(3, pcs) // skip Callers, helperCallSite, register
	frames := runtime.CallersFrames(pcs[:n])

	var prev string
	for {
		frame, more := frames.Next()
		if prev != "" && frame.Function == recorder {
			return shortName(prev), callSite{file: frame.File, line: frame.Line, function: frame.Function}
		}
		prev = frame.Function
		if !more {
			break
		}
	}
	return "", callSite{line: -1}
}

func anchor() {}

var packagePrefix = strings.TrimSuffix(runtime.FuncForPC(reflect.ValueOf(anchor).Pointer()).Name(), "anchor")

// callerOutside returns the first frame that belongs neither to this package nor to
// reflect, skipping methods with any of receivers, i.e. the interface adapter of a func table
func callerOutside(receivers ...string) callSite {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var via string
	for {
		frame, more := frames.Next()
		if hasAnyPrefix(frame.Function, receivers) {
			via = shortName(frame.Function)
		} else if !strings.HasPrefix(frame.Function, packagePrefix) &&
			!strings.HasPrefix(frame.Function, "reflect.") &&
			!strings.HasPrefix(frame.Function, "runtime.") {
			return callSite{file: frame.File, line: frame.Line, function: frame.Function, via: via}
		}
		if !more {
			break
		}
	}
	return callSite{line: -1}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// shortName turns "github.com/x/y.(*T[...]).Method[...]" into "Method"
func shortName(function string) string {
	name := function
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	for {
		open := strings.Index(name, "[")
		if open < 0 {
			break
		}
		closing := strings.Index(name[open:], "]")
		if closing < 0 {
			break
		}
		name = name[:open] + name[open+closing+1:]
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func goroutineID() int64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	// "goroutine 18 [running]:..."
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		panic("cannot identify current goroutine: " + err.Error())
	}
	return id
}
