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

package mock_test

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrdl/testkit/mock"
)

type userRepo struct {
	Get   func(id int) (string, error)
	Save  func(name string, tags ...string) error
	Count func() int
	Reset func()
	List  func() ([]string, map[string]int)
}

var (
	errBoom  = errors.New("boom")
	errOther = errors.New("other")
)

// recorder stands in for *testing.T so failures can be inspected
type recorder struct {
	errors   []string
	logs     []string
	cleanups []func()
}

func (r *recorder) Helper() {}

func (r *recorder) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recorder) Logf(format string, args ...any) {
	r.logs = append(r.logs, fmt.Sprintf(format, args...))
}

func (r *recorder) Cleanup(f func()) { r.cleanups = append(r.cleanups, f) }
func (r *recorder) Failed() bool     { return len(r.errors) > 0 }
func (r *recorder) Name() string     { return "recorder" }

func (r *recorder) finish() {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
	r.cleanups = nil
}

func (r *recorder) output() string {
	return strings.Join(r.errors, "\n") + strings.Join(r.logs, "\n")
}

func TestReturns(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")
	repo.Returns("joe").Get(42)
	p := repo.Proxy()

	name, err := p.Get(42)
	assert.NoError(t, err)
	assert.Equal(t, "joe", name)

	name, err = p.Get(1)
	assert.NoError(t, err)
	assert.Empty(t, name)
}

func TestDefaultResults(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")
	list, counts := repo.Proxy().List()
	assert.NotNil(t, list)
	assert.Empty(t, list)
	assert.NotNil(t, counts)
	assert.Zero(t, repo.Proxy().Count())
}

func TestLiteralBeatsMatcher(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")
	repo.Returns("exact").Get(42)
	repo.Returns("any").Get(mock.Any[int]())
	p := repo.Proxy()

	name, _ := p.Get(42)
	assert.Equal(t, "exact", name)
	name, _ = p.Get(7)
	assert.Equal(t, "any", name)
}

func TestLatestAlwaysWins(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")
	repo.Returns("first").Get(1)
	repo.Returns("second").Get(1)

	name, _ := repo.Proxy().Get(1)
	assert.Equal(t, "second", name)
}

func TestOnceBehaviors(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")
	repo.Returns("always").Get(1)
	repo.OnceReturns("once 1").Get(1)
	repo.OnceReturns("once 2").Get(mock.Any[int]())
	p := repo.Proxy()

	var names []string
	for range 3 {
		name, _ := p.Get(1)
		names = append(names, name)
	}
	assert.Equal(t, []string{"once 1", "once 2", "always"}, names)
}

func TestRaisesAndPanics(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")
	repo.Raises(errBoom).Get(mock.Any[int]())
	repo.OnceRaises(errOther).Save("joe")
	repo.Panics("gone").Reset()
	p := repo.Proxy()

	name, err := p.Get(3)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, name)
	assert.ErrorIs(t, p.Save("joe"), errOther)
	assert.NoError(t, p.Save("joe"))
	assert.PanicsWithValue(t, "gone", func() { p.Reset() })
}

func TestPerforms(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")
	repo.Performs(func(inv *mock.Invocation) []any {
		return []any{fmt.Sprint("user", inv.Arg(0))}
	}).Get(mock.Any[int]())

	var observed []any
	repo.OncePerforms(func(inv *mock.Invocation) []any {
		observed = inv.Args
		return nil
	}).Save(mock.Any[string](), mock.Any[string](), mock.Any[string]())

	name, err := repo.Proxy().Get(5)
	assert.NoError(t, err)
	assert.Equal(t, "user5", name)

	require.NoError(t, repo.Proxy().Save("ann", "admin", "dev"))
	assert.Equal(t, []any{"ann", "admin", "dev"}, observed)
}

func TestMixedArguments(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")
	repo.Raises(errBoom).Save(mock.Any[string]())
	repo.Raises(errOther).Save("joe", mock.Any[string](), "admin")
	p := repo.Proxy()

	assert.ErrorIs(t, p.Save("ann"), errBoom)
	assert.ErrorIs(t, p.Save("joe", "x", "admin"), errOther)
	assert.NoError(t, p.Save("joe", "x", "user"))
	assert.NoError(t, p.Save("ann", "x", "admin"))
}

func TestMixedArgumentsMultiline(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")
	repo.Raises(errOther).Save(
		mock.Eq("joe"),
		"admin",
	)

	assert.ErrorIs(t, repo.Proxy().Save("joe", "admin"), errOther)
	assert.NoError(t, repo.Proxy().Save("joe", "dev"))
}

func TestMatchers(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")
	repo.Returns("positive").Get(mock.Matches("positive", func(v int) bool { return v > 0 }))
	repo.Returns("negative").Get(mock.Matches("negative", func(v int) bool { return v < 0 }))
	p := repo.Proxy()

	name, _ := p.Get(5)
	assert.Equal(t, "positive", name)
	name, _ = p.Get(-5)
	assert.Equal(t, "negative", name)
	name, _ = p.Get(0)
	assert.Empty(t, name)
}

func TestCapture(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")
	var captured string
	repo.Returns(nil).Save(mock.Capture(&captured))

	require.NoError(t, repo.Proxy().Save("ann"))
	assert.Equal(t, "ann", captured)
}

func TestDefinitionValidation(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")

	assert.Panics(t, func() { repo.Returns("a", nil, 3).Get(1) }, "too many results")
	assert.Panics(t, func() { repo.Returns(42).Get(1) }, "wrong result type")
	assert.Panics(t, func() { repo.Returns(1).Reset() }, "func without results")
	assert.Panics(t, func() { repo.Raises(errBoom).Count() }, "func without error result")
	assert.NotPanics(t, func() { repo.Returns("a").Get(1) }, "error result omitted")
	assert.NotPanics(t, func() { repo.Returns(int8(3)).Count() }, "numeric conversion")

	assert.Equal(t, 3, repo.Proxy().Count())
}

func TestInvalidSyntax(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")

	_ = repo.Returns("x")
	assert.PanicsWithValue(t,
		"Invalid syntax. repo.Returns() must be followed by a method invocation on the returned proxy. E.g. repo.Returns().Method()",
		func() { repo.Returns("y").Get(1) })

	_ = repo.AssertInvoked()
	assert.Panics(t, func() { repo.Proxy().Count() }, "live invocation while defining")

	// works again once the pending definition is cleared
	repo.Returns("z").Get(1)
	name, _ := repo.Proxy().Get(1)
	assert.Equal(t, "z", name)

	assert.Panics(t, func() { mock.Any[int]() }, "matcher outside of matching invocation")
}

func TestPendingDefinitionReported(t *testing.T) {
	rec := &recorder{}
	repo := mock.New[userRepo](rec, "repo")
	_ = repo.Returns("x")

	rec.finish()
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "Invalid syntax. repo.Returns()")
}

func TestAssertInvoked(t *testing.T) {
	rec := &recorder{}
	repo := mock.New[userRepo](rec, "repo")
	p := repo.Proxy()
	p.Get(1)
	p.Get(2)

	repo.AssertInvoked().Get(2)
	repo.AssertInvoked().Get(mock.Any[int]())
	repo.AssertNoMoreInvocations()
	assert.Empty(t, rec.errors)

	repo.AssertInvoked().Get(3)
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "expected invocation of repo.Get(3), but it didn't occur")
	rec.finish()
}

func TestAssertInvokedTwice(t *testing.T) {
	rec := &recorder{}
	repo := mock.New[userRepo](rec, "repo")
	repo.Proxy().Get(1)

	repo.AssertInvoked().Get(1)
	repo.AssertInvoked().Get(1)
	require.Len(t, rec.errors, 1)
	rec.finish()
}

func TestAssertInvokedInSequence(t *testing.T) {
	rec := &recorder{}
	repo := mock.New[userRepo](rec, "repo")
	p := repo.Proxy()
	p.Get(1)
	p.Save("joe")
	p.Get(2)

	repo.AssertInvokedInSequence().Get(1)
	repo.AssertInvokedInSequence().Get(2)
	assert.Empty(t, rec.errors)

	repo.AssertInvokedInSequence().Save("joe")
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "actually occurred before it")
	rec.finish()
}

func TestAssertNotInvoked(t *testing.T) {
	rec := &recorder{}
	repo := mock.New[userRepo](rec, "repo")
	repo.Proxy().Get(1)

	repo.AssertNotInvoked().Get(5)
	repo.AssertNotInvoked().Count()
	assert.Empty(t, rec.errors)

	repo.AssertNotInvoked().Get(mock.Any[int]())
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "expected no invocation of repo.Get(Any())")
	rec.finish()
}

func TestAssertNoMoreInvocations(t *testing.T) {
	rec := &recorder{}
	repo := mock.New[userRepo](rec, "repo")
	other := mock.New[userRepo](rec, "other")
	repo.Proxy().Save("joe", "admin")
	other.Proxy().Count()

	repo.AssertNoMoreInvocations()
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], `no more invocations expected, yet observed repo.Save("joe", "admin")`)
	assert.NotContains(t, strings.SplitN(rec.errors[0], "\n\n", 2)[0], "other.Count()")

	err := repo.Scenario().ExpectationsWereMet()
	assert.ErrorIs(t, err, mock.ErrExpectationsNotMet)
	assert.ErrorIs(t, err, mock.ErrUnverifiedInvoked)
	rec.finish()
}

func TestReportOnFailure(t *testing.T) {
	rec := &recorder{}
	repo := mock.New[userRepo](rec, "repo")
	repo.Returns("joe").Get(1)
	repo.Proxy().Get(1)
	repo.Proxy().Count()
	rec.Errorf("failed for other reason")

	rec.finish()
	require.Len(t, rec.logs, 1)
	report := rec.logs[0]
	assert.Contains(t, report, "Observed scenario:")
	assert.Contains(t, report, `1. repo.Get(1) -> ("joe", nil)`)
	assert.Contains(t, report, "Suggested assert statements:")
	assert.Contains(t, report, "repo.AssertInvoked().Count()")
	assert.Contains(t, report, "Detailed scenario:")
	assert.Contains(t, report, `behavior: returns "joe", nil`)
	assert.Contains(t, report, "mock_test.go:")
}

func TestNoReportOnSuccess(t *testing.T) {
	rec := &recorder{}
	repo := mock.New[userRepo](rec, "repo")
	repo.Proxy().Count()

	rec.finish()
	assert.Empty(t, rec.logs)
}

func TestPartialMock(t *testing.T) {
	impl := userRepo{Get: func(id int) (string, error) { return fmt.Sprint("real", id), nil }}
	repo := mock.NewPartial(t, "repo", impl)
	repo.Returns("mocked").Get(1)
	repo.Stub().Get(3)
	p := repo.Proxy()

	name, _ := p.Get(1)
	assert.Equal(t, "mocked", name)
	name, _ = p.Get(2)
	assert.Equal(t, "real2", name)
	name, _ = p.Get(3)
	assert.Empty(t, name)
	// no real implementation of Count
	assert.Zero(t, p.Count())
}

func TestFuncMock(t *testing.T) {
	rec := &recorder{}
	sum := mock.New[func(int, int) int](rec, "sum")
	sum.Returns(10)(mock.Any[int](), 2)

	assert.Equal(t, 10, sum.Proxy()(5, 2))
	assert.Zero(t, sum.Proxy()(5, 3))

	sum.AssertInvoked()(5, 3)
	sum.AssertNoMoreInvocations()
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "observed sum(5, 2)")
	rec.finish()
}

func TestPointerContract(t *testing.T) {
	repo := mock.New[*userRepo](t, "repo")
	repo.Returns("joe").Get(mock.Any[int]())

	name, err := repo.Proxy().Get(1)
	assert.NoError(t, err)
	assert.Equal(t, "joe", name)
}

func TestResetBehavior(t *testing.T) {
	repo := mock.New[userRepo](t, "repo")
	repo.Returns("joe").Get(1)
	repo.ResetBehavior()

	name, _ := repo.Proxy().Get(1)
	assert.Empty(t, name)
}

func TestInvalidContract(t *testing.T) {
	assert.Panics(t, func() { mock.New[int](t, "x") })
	assert.Panics(t, func() { mock.New[struct{ a func() }](t, "x") }, "no exported func fields")
	assert.Panics(t, func() { var m *mock.Mock[userRepo]; m.Proxy() }, "not initialized")
}

func TestDummy(t *testing.T) {
	d := mock.Dummy[userRepo]()
	name, err := d.Get(1)
	assert.NoError(t, err)
	assert.Empty(t, name)
	assert.NotPanics(t, func() { d.Reset() })

	assert.NotNil(t, mock.Dummy[*bytes.Buffer]())
	assert.NotNil(t, mock.Dummy[func() error]())
	assert.Zero(t, mock.Dummy[int]())
	assert.Nil(t, mock.Dummy[error]())
}

func TestInitialize(t *testing.T) {
	var repo mock.Mock[userRepo]
	mock.Initialize(&repo, t, "repo")
	repo.Returns("joe").Get(1)

	proxy, ok := mock.ProxyOf(&repo)
	require.True(t, ok)
	name, _ := proxy.(userRepo).Get(1)
	assert.Equal(t, "joe", name)
	assert.Equal(t, reflect.TypeFor[userRepo](), repo.Type())

	// initializing again resets behaviors
	mock.Initialize(&repo, t, "repo")
	name, _ = repo.Proxy().Get(1)
	assert.Empty(t, name)

	assert.True(t, mock.IsMockType(reflect.TypeOf(&repo)))
	assert.False(t, mock.IsMockType(reflect.TypeFor[mock.Mock[userRepo]]()))
	assert.False(t, mock.IsMockType(reflect.TypeFor[*int]()))
	_, ok = mock.ProxyOf(42)
	assert.False(t, ok)
	assert.Panics(t, func() { mock.Initialize(42, t, "x") })
}

func TestSharedScenario(t *testing.T) {
	first := mock.New[userRepo](t, "first")
	second := mock.New[userRepo](t, "second")
	first.Proxy().Count()
	second.Proxy().Count()
	first.Proxy().Get(1)

	assert.Same(t, first.Scenario(), second.Scenario())
	invocations := first.Scenario().Invocations()
	require.Len(t, invocations, 3)
	assert.Equal(t, "second", invocations[1].MockName)
	assert.Equal(t, "Get", invocations[2].Method)
	assert.Equal(t, 2, invocations[2].Seq())
	assert.Equal(t, []any{"", nil}, invocations[2].Results)

	first.AssertInvoked().Get(1)
	first.AssertInvoked().Count()
	second.AssertInvoked().Count()
	assert.NoError(t, first.Scenario().ExpectationsWereMet())
}
