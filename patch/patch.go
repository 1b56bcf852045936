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

//go:build ((linux || dragonfly || freebsd || netbsd || openbsd) && (amd64 || arm64)) || (windows && amd64)

/*
Package patch overrides package-level functions and concrete methods of the test
binary at runtime, by writing a jump to the replacement into the prologue of the
original function. It must be used only for unit testing and never in production!

This package modifies actual executable at runtime, therefore is OS- and CPU arch-specific.
Supported OS/arch combinations:
  - Linux and BSDs / x86_64
  - Linux and BSDs / ARM64
  - Windows / x86_64

It is recommended to disable function inlining using `-gcflags="all=-N -l"` CLI
option, otherwise inlined calls of the original function are not affected:

	go test -gcflags="all=-N -l" [<path>]

Replacement is executed in place of the original function and must not be a closure,
variables of the test case scope are not accessible from it. The usual way is to
forward to a mock kept in a package variable:

	var clock *mock.Mock[func() time.Time]

	func fakeNow() time.Time { return clock.Proxy()() }

	func TestExpiry(t *testing.T) {
	    clock = mock.New[func() time.Time](t, "clock")
	    clock.Returns(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))()
	    patch.Func(t, time.Now, fakeNow)
	    ...
	}

Method receiver becomes the first argument of the replacement:

	patch.Func(t, (*os.File).Read, func(f *os.File, b []byte) (int, error) { ... })
*/
package patch

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"unsafe"
)

// TestingT is the part of [testing.T] used to restore overridden functions.
type TestingT interface {
	Helper()
	Cleanup(func())
}

type override struct {
	name     string
	prologue []byte
	t        TestingT
}

var (
	mu        sync.Mutex
	overrides = make(map[unsafe.Pointer]*override)
)

/*
Func overrides org with repl until the end of the test, or until [Restore] is called.
The signatures of org and repl must match exactly, otherwise compilation error is reported.

Func panics if org is not a function, if it is an instantiation of a generic function,
or if it is already overridden.
*/
func Func[T any](t TestingT, org, repl T) {
	t.Helper()
	orgValue, replValue := reflect.ValueOf(org), reflect.ValueOf(repl)
	if orgValue.Kind() != reflect.Func || replValue.Kind() != reflect.Func {
		panic("patch.Func() can be called only for function/method")
	}
	if orgValue.IsNil() || replValue.IsNil() {
		panic("patch.Func() cannot be called for nil function")
	}

	orgPointer := orgValue.UnsafePointer()
	name := funcName(orgPointer)
	if strings.Contains(name, "[...]") {
		panic(fmt.Sprintf("cannot override generic function %s: instantiations share the code, override a non-generic function referencing it instead", name))
	}

	mu.Lock()
	defer mu.Unlock()
	if _, ok := overrides[orgPointer]; ok {
		panic(fmt.Sprintf("function %s is already overridden, restore it first", name))
	}
	overrides[orgPointer] = &override{
		name:     name,
		prologue: overridePrologue(orgPointer, replValue.UnsafePointer()), // arch-specific
		t:        t,
	}
	t.Cleanup(func() { restore(orgPointer) })
}

// Restore restores the original code of org. Restoring a function that is not overridden is no-op.
func Restore(org any) {
	v := reflect.ValueOf(org)
	if v.Kind() != reflect.Func {
		panic("patch.Restore() can be called only for function/method")
	}
	restore(v.UnsafePointer())
}

// Overridden reports whether org is currently overridden.
func Overridden(org any) bool {
	v := reflect.ValueOf(org)
	if v.Kind() != reflect.Func {
		return false
	}
	mu.Lock()
	defer mu.Unlock()
	_, ok := overrides[v.UnsafePointer()]
	return ok
}

// TestingOf returns the test that overrode org, nil if org is not overridden.
func TestingOf(org any) TestingT {
	v := reflect.ValueOf(org)
	if v.Kind() != reflect.Func {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	if o, ok := overrides[v.UnsafePointer()]; ok {
		return o.t
	}
	return nil
}

func restore(ptr unsafe.Pointer) {
	mu.Lock()
	defer mu.Unlock()
	o, ok := overrides[ptr]
	if !ok {
		return
	}
	resetPrologue(ptr, o.prologue) // arch-specific
	delete(overrides, ptr)
}

func funcName(ptr unsafe.Pointer) string {
	if f := runtime.FuncForPC(uintptr(ptr)); f != nil {
		return f.Name()
	}
	return fmt.Sprintf("%p", ptr)
}
