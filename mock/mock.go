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

	"go.uber.org/zap"
)

// TestingT is the part of [testing.T] mocks use.
type TestingT interface {
	Helper()
	Errorf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
	Failed() bool
	Name() string
}

type options struct {
	log      *zap.Logger
	scenario *Scenario
}

type Option func(*options)

// WithLogger makes the mock log behavior definitions and invocations at debug level.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithScenario records invocations in s instead of the scenario of the test.
func WithScenario(s *Scenario) Option {
	return func(o *options) { o.scenario = s }
}

/*
Mock is a stand-in for the contract T, which is a func type, a struct with exported
func fields (func table) or a pointer to such struct. An interface is mocked by
giving a func table the methods of the interface that delegate to its fields:

	type RepoFuncs struct {
	    GetFn func(id int, fields ...string) (*User, error)
	}

	func (r RepoFuncs) Get(id int, fields ...string) (*User, error) { return r.GetFn(id, fields...) }

	repo := mock.New[RepoFuncs](t, "repo")
	repo.Returns(&User{Name: "joe"}).Get(42, mock.Any[string]())
	svc := NewService(repo.Proxy()) // NewService(r Repository)

Calls made through such delegating methods are reported at the line of the caller,
and matching invocations may go through them as well.

The proxy of the mock returns what its behaviors define, see [Mock.Returns], and
records every call in the [Scenario] of the test for later verification with
[Mock.AssertInvoked].
*/
type Mock[T any] struct {
	name      string
	t         TestingT
	contract  *contract
	proxy     T
	real      reflect.Value
	behaviors behaviorRegistry
	scenario  *Scenario
	log       *zap.Logger
}

// New creates a mock of T. It panics if T cannot be mocked.
func New[T any](t TestingT, name string, opts ...Option) *Mock[T] {
	m := &Mock[T]{}
	m.initialize(t, name, opts...)
	return m
}

// NewPartial creates a mock of T calling impl for every invocation without a defined behavior.
func NewPartial[T any](t TestingT, name string, impl T, opts ...Option) *Mock[T] {
	m := New[T](t, name, opts...)
	m.real = reflect.ValueOf(&impl).Elem()
	return m
}

func (m *Mock[T]) initialize(t TestingT, name string, opts ...Option) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := contractOf(reflect.TypeFor[T]())
	if err != nil {
		panic(err.Error())
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.scenario == nil {
		o.scenario = ScenarioFor(t)
	}

	m.name = name
	m.t = t
	m.contract = c
	m.scenario = o.scenario
	m.log = o.log.With(zap.String("mock", name))
	m.behaviors.reset()
	m.proxy = c.build(m.invoke).Interface().(T)
}

func (m *Mock[T]) init() {
	if m == nil || m.contract == nil {
		panic("mock is not initialized, create it with mock.New() or mock.NewPartial()")
	}
}

// Proxy returns the stand-in to pass to the code under test.
func (m *Mock[T]) Proxy() T {
	m.init()
	return m.proxy
}

func (m *Mock[T]) Name() string {
	return m.name
}

// Type returns the mocked contract type.
func (m *Mock[T]) Type() reflect.Type {
	return reflect.TypeFor[T]()
}

// Scenario returns the scenario the mock records invocations in.
func (m *Mock[T]) Scenario() *Scenario {
	m.init()
	return m.scenario
}

// ResetBehavior removes all defined behaviors, recorded invocations are kept.
func (m *Mock[T]) ResetBehavior() {
	m.init()
	m.behaviors.reset()
}

func (m *Mock[T]) invoke(meth *method, args []reflect.Value) []reflect.Value {
	repository.assertNotExpectingInvocation()

	inv := newInvocation(m.name, meth, args, callerOutside(m.contract.receivers...))
	inv.owner = m
	var b mockBehavior = defaultReturning{}
	if entry := m.behaviors.find(inv); entry != nil {
		inv.behavior = entry
		b = entry.behavior
	} else if f := m.contract.function(m.real, meth); f.IsValid() {
		b = realCalling{fn: f}
	}
	inv.used = b.String()
	m.scenario.add(inv)

	results := b.execute(inv)
	inv.setResults(results)
	return results
}

func (m *Mock[T]) define(operation string, once bool, behavior func(meth *method) mockBehavior) T {
	return m.matching(operation, func(mi *matchingInvocation) {
		entry := &behaviorEntry{matchingInvocation: mi, behavior: behavior(mi.method), once: once}
		m.behaviors.add(entry)
		m.log.Debug("behavior defined", zap.Stringer("behavior", entry))
	})
}

/*
Returns defines the results of the invocation made on the returned proxy. The
trailing error result may be omitted.

	repo.Returns(user).Get(42)

The behavior is used for every matching invocation, later definitions override
earlier ones with the same arguments.
*/
func (m *Mock[T]) Returns(values ...any) T {
	return m.define("Returns", false, func(meth *method) mockBehavior { return newValueReturning(meth, values) })
}

// OnceReturns is [Mock.Returns] used for a single matching invocation.
func (m *Mock[T]) OnceReturns(values ...any) T {
	return m.define("OnceReturns", true, func(meth *method) mockBehavior { return newValueReturning(meth, values) })
}

// Raises defines the error result, other results are zero values.
func (m *Mock[T]) Raises(err error) T {
	return m.define("Raises", false, func(meth *method) mockBehavior { return newErrorRaising(meth, err) })
}

func (m *Mock[T]) OnceRaises(err error) T {
	return m.define("OnceRaises", true, func(meth *method) mockBehavior { return newErrorRaising(meth, err) })
}

// Panics makes the invocation panic with v.
func (m *Mock[T]) Panics(v any) T {
	return m.define("Panics", false, func(*method) mockBehavior { return panicking{value: v} })
}

func (m *Mock[T]) OncePanics(v any) T {
	return m.define("OncePanics", true, func(*method) mockBehavior { return panicking{value: v} })
}

// Performs defines a custom behavior.
func (m *Mock[T]) Performs(fn Behavior) T {
	return m.define("Performs", false, func(meth *method) mockBehavior { return performing{fn: fn, method: meth} })
}

func (m *Mock[T]) OncePerforms(fn Behavior) T {
	return m.define("OncePerforms", true, func(meth *method) mockBehavior { return performing{fn: fn, method: meth} })
}

// Stub makes the invocation return default values, for partial mocks it means the real function is not called.
func (m *Mock[T]) Stub() T {
	return m.define("Stub", false, func(*method) mockBehavior { return defaultReturning{} })
}

// AssertInvoked fails the test unless an invocation matching the one made on the returned proxy occurred.
func (m *Mock[T]) AssertInvoked() T {
	return m.matching("AssertInvoked", func(mi *matchingInvocation) {
		if err := m.scenario.verify(mi, false); err != nil {
			m.scenario.fail(err)
		}
	})
}

// AssertInvokedInSequence is [Mock.AssertInvoked], the invocation must also occur after the last one asserted in sequence.
func (m *Mock[T]) AssertInvokedInSequence() T {
	return m.matching("AssertInvokedInSequence", func(mi *matchingInvocation) {
		if err := m.scenario.verify(mi, true); err != nil {
			m.scenario.fail(err)
		}
	})
}

func (m *Mock[T]) AssertNotInvoked() T {
	return m.matching("AssertNotInvoked", func(mi *matchingInvocation) {
		if err := m.scenario.verifyNotInvoked(mi); err != nil {
			m.scenario.fail(err)
		}
	})
}

// AssertNoMoreInvocations fails the test if some invocation of this mock wasn't verified.
func (m *Mock[T]) AssertNoMoreInvocations() {
	m.init()
	m.t.Helper()
	if err := m.scenario.verifyNoMoreInvocations(m); err != nil {
		m.scenario.fail(err)
	}
}

func (m *Mock[T]) proxyValue() any {
	return m.Proxy()
}

type initializer interface {
	initialize(t TestingT, name string, opts ...Option)
	proxyValue() any
}

/*
Initialize (re)initializes the mock target points to, target must be a *Mock[T]. It
is used when the mock type is only known by reflection, e.g. for fixture fields.
Initializing a mock again removes its behaviors and binds it to t.
*/
func Initialize(target any, t TestingT, name string, opts ...Option) {
	i, ok := target.(initializer)
	if !ok {
		panic(fmt.Sprintf("%T is not a mock", target))
	}
	i.initialize(t, name, opts...)
}

// ProxyOf returns the proxy of v if v is a *Mock[T].
func ProxyOf(v any) (any, bool) {
	i, ok := v.(initializer)
	if !ok || reflect.ValueOf(v).IsNil() {
		return nil, false
	}
	return i.proxyValue(), true
}

// IsMockType reports whether typ is *Mock[T] for some T.
func IsMockType(typ reflect.Type) bool {
	return typ.Kind() == reflect.Pointer && typ.Implements(reflect.TypeFor[initializer]())
}
