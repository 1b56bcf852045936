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
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrdl/testkit/mock"
)

type item struct {
	Key   string
	Tags  []string
	Price int
	Next  *item
}

type itemStore struct {
	Put func(it *item, tags ...string) error
}

func withKey(key string) *item {
	return mock.Register[*item](mock.MatcherFunc("withKey", func(v any) bool {
		it, ok := v.(*item)
		return ok && it != nil && it.Key == key
	}))
}

func TestMatcherHelpers(t *testing.T) {
	shared := &item{Key: "a"}

	cases := []struct {
		name     string
		all      func(s *mock.Mock[itemStore])
		mixed    func(s *mock.Mock[itemStore])
		matching []*item
		other    []*item
	}{
		{
			name:     "RefEq",
			all:      func(s *mock.Mock[itemStore]) { s.Raises(errBoom).Put(mock.RefEq(&item{Key: "a", Tags: []string{"x", "y"}})) },
			mixed:    func(s *mock.Mock[itemStore]) { s.Raises(errBoom).Put(mock.RefEq(&item{Key: "a", Tags: []string{"x", "y"}}), "hot") },
			matching: []*item{{Key: "a", Tags: []string{"x", "y"}}},
			other:    []*item{{Key: "a", Tags: []string{"y", "x"}}, {Key: "b"}, nil},
		},
		{
			name:     "LenEq",
			all:      func(s *mock.Mock[itemStore]) { s.Raises(errBoom).Put(mock.LenEq(&item{Key: "a", Tags: []string{"x", "y"}})) },
			mixed:    func(s *mock.Mock[itemStore]) { s.Raises(errBoom).Put(mock.LenEq(&item{Key: "a", Tags: []string{"x", "y"}}), "hot") },
			matching: []*item{{Key: "a", Tags: []string{"y", "x"}, Price: 10}, {Key: "a", Tags: []string{"x", "y"}}},
			other:    []*item{{Key: "b", Tags: []string{"x", "y"}}, {Key: "a", Tags: []string{"x"}}},
		},
		{
			name:     "Same",
			all:      func(s *mock.Mock[itemStore]) { s.Raises(errBoom).Put(mock.Same(shared)) },
			mixed:    func(s *mock.Mock[itemStore]) { s.Raises(errBoom).Put(mock.Same(shared), "hot") },
			matching: []*item{shared},
			other:    []*item{{Key: "a"}, nil},
		},
		{
			name:     "NotNil",
			all:      func(s *mock.Mock[itemStore]) { s.Raises(errBoom).Put(mock.NotNil[*item]()) },
			mixed:    func(s *mock.Mock[itemStore]) { s.Raises(errBoom).Put(mock.NotNil[*item](), "hot") },
			matching: []*item{{}, shared},
			other:    []*item{nil},
		},
		{
			name:     "Nil",
			all:      func(s *mock.Mock[itemStore]) { s.Raises(errBoom).Put(mock.Nil[*item]()) },
			mixed:    func(s *mock.Mock[itemStore]) { s.Raises(errBoom).Put(mock.Nil[*item](), "hot") },
			matching: []*item{nil},
			other:    []*item{{}, shared},
		},
		{
			name:     "custom helper",
			all:      func(s *mock.Mock[itemStore]) { s.Raises(errBoom).Put(withKey("a")) },
			mixed:    func(s *mock.Mock[itemStore]) { s.Raises(errBoom).Put(withKey("a"), "hot") },
			matching: []*item{{Key: "a", Price: 3}, shared},
			other:    []*item{{Key: "b"}, nil},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			store := mock.New[itemStore](t, "store")
			c.all(store)
			p := store.Proxy()
			for _, it := range c.matching {
				assert.ErrorIs(t, p.Put(it), errBoom, "%+v", it)
			}
			for _, it := range c.other {
				assert.NoError(t, p.Put(it), "%+v", it)
			}
		})
		t.Run(c.name+" with literal", func(t *testing.T) {
			store := mock.New[itemStore](t, "store")
			c.mixed(store)
			p := store.Proxy()
			for _, it := range c.matching {
				assert.ErrorIs(t, p.Put(it, "hot"), errBoom, "%+v", it)
				assert.NoError(t, p.Put(it, "cold"), "%+v", it)
				assert.NoError(t, p.Put(it), "%+v", it)
			}
			for _, it := range c.other {
				assert.NoError(t, p.Put(it, "hot"), "%+v", it)
			}
		})
	}
}

func TestMatchResults(t *testing.T) {
	shared := &item{Key: "a"}

	assert.Equal(t, "exact", mock.Exact.String())
	assert.Equal(t, "match", mock.Match.String())
	assert.Equal(t, "no match", mock.NoMatch.String())
	assert.Greater(t, mock.Exact, mock.Match)

	m := mock.MatcherFunc("short", func(v any) bool { return len(v.(string)) < 3 })
	assert.Equal(t, mock.Match, m.Matches("ab"))
	assert.Equal(t, mock.NoMatch, m.Matches("abc"))
	assert.Equal(t, "short()", m.String())

	// defined first, still wins over the later matcher defined for any item
	store := mock.New[itemStore](t, "store")
	store.Raises(errBoom).Put(mock.Same(shared))
	store.Raises(errOther).Put(mock.Any[*item]())
	p := store.Proxy()

	assert.ErrorIs(t, p.Put(shared), errBoom)
	assert.ErrorIs(t, p.Put(&item{Key: "a"}), errOther)
}

func TestCyclicLiteralArgument(t *testing.T) {
	expected, actual := &item{Key: "ring"}, &item{Key: "ring"}
	expected.Next, actual.Next = expected, actual
	other := &item{Key: "other"}
	other.Next = other

	store := mock.New[itemStore](t, "store")
	store.Raises(errBoom).Put(expected)
	p := store.Proxy()

	assert.ErrorIs(t, p.Put(actual), errBoom)
	assert.NoError(t, p.Put(other))
}

type priceFuncs struct {
	LookupFn func(key string, currency ...string) (int, error)
}

func (p priceFuncs) Lookup(key string, currency ...string) (int, error) {
	return p.LookupFn(key, currency...)
}

type pricer interface {
	Lookup(key string, currency ...string) (int, error)
}

func TestInterfaceAdapter(t *testing.T) {
	prices := mock.New[priceFuncs](t, "prices")
	prices.Returns(10).Lookup("apple", mock.Any[string]())
	prices.Raises(errBoom).Lookup(
		mock.Eq("pear"),
		"USD",
	)
	var p pricer = prices.Proxy()

	_, file, line, _ := runtime.Caller(0)
	price, err := p.Lookup("apple", "EUR")
	require.NoError(t, err)
	assert.Equal(t, 10, price)

	_, err = p.Lookup("pear", "USD")
	assert.ErrorIs(t, err, errBoom)
	price, err = p.Lookup("apple")
	assert.NoError(t, err)
	assert.Zero(t, price)

	invocations := prices.Scenario().Invocations()
	require.Len(t, invocations, 3)
	assert.Equal(t, "LookupFn", invocations[0].Method)
	assert.Equal(t, file, invocations[0].File)
	assert.Equal(t, line+1, invocations[0].Line)

	prices.AssertInvoked().Lookup("apple", mock.Eq("EUR"))
	prices.AssertInvoked().Lookup(mock.Any[string](), "USD")
	prices.AssertInvoked().Lookup("apple")
	prices.AssertNoMoreInvocations()
}

func TestMocksWithSameName(t *testing.T) {
	rec := &recorder{}
	first := mock.New[userRepo](rec, "repo")
	second := mock.New[userRepo](rec, "repo")
	first.Proxy().Count()
	second.Proxy().Count()

	first.AssertInvoked().Count()
	first.AssertNoMoreInvocations()
	assert.Empty(t, rec.errors)

	second.AssertNoMoreInvocations()
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "repo.Count()")
	rec.finish()
}
