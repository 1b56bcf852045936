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

/*
Package mock provides mocks of func types and func tables, programmed and verified
with matching invocations.

A matching invocation is a call made on the proxy returned by a defining operation.
It is not executed, it is captured as a template instead:

	repo := mock.New[RepoFuncs](t, "repo")

	repo.Returns(&User{ID: 42}).Get(42)                // behavior for Get(42)
	repo.Raises(ErrNotFound).Get(mock.Any[int]())       // behavior for any other id
	repo.OnceReturns(nil).Save(mock.NotNil[*User]())   // used once, then behavior above applies

	svc := NewService(repo.Proxy())
	svc.Rename(42, "joe")

	repo.AssertInvoked().Save(mock.Matches("named joe", func(u *User) bool { return u.Name == "joe" }))
	repo.AssertNoMoreInvocations()

# Argument matchers

Arguments of a matching invocation are either literal values, compared by reflection,
or calls of matcher helpers like [Any], [Eq] or [Capture]. A matcher helper registers
its matcher and returns the zero value of the argument type, so the position of the
matcher among the arguments is not known from the values alone. If only some of the
arguments are matchers, the positions are found from the source of the test, which is
therefore required to be available at the path it was compiled from. If the source is
not available, use matchers either for all arguments or for none.

Matching invocations are kept per goroutine, a defining operation and the call on its
proxy must be made from the same goroutine, in the same function.

# Behaviors

Once-behaviors ([Mock.OnceReturns], [Mock.OnceRaises], ...) are used before always-behaviors,
the best matching one wins: a literal argument matches better than a matcher. Invocations
without a matching behavior return zero values (empty slices and maps) or, for mocks
created with [NewPartial], call the real implementation.

# Reporting

All mocks of a test share a [Scenario]. When the test fails, the scenario with all
invocations, the behaviors used and suggested assert statements is logged.
*/
package mock
