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
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrNotInvoked         = errors.New("expected invocation didn't occur")
	ErrInvokedOutOfOrder  = errors.New("invocation occurred out of sequence")
	ErrUnexpectedInvoked  = errors.New("unexpected invocation occurred")
	ErrUnverifiedInvoked  = errors.New("unverified invocation occurred")
	ErrExpectationsNotMet = errors.New("mock expectations were not met")
)

/*
Scenario is the ordered log of actual invocations against all mocks of a test. It
is used to verify invocations and to report the mismatches.

All mocks created for the same [TestingT] share a scenario, see [ScenarioFor].
When the test fails, the full scenario report is logged at the end of the test.
*/
type Scenario struct {
	mu          sync.Mutex
	t           TestingT
	log         *zap.Logger
	invocations []*Invocation
	lastInSeq   *Invocation
}

var scenarios sync.Map // TestingT -> *Scenario

// ScenarioFor returns the scenario of the test, creating it on first use.
func ScenarioFor(t TestingT) *Scenario {
	if s, ok := scenarios.Load(t); ok {
		return s.(*Scenario)
	}
	s, loaded := scenarios.LoadOrStore(t, NewScenario(t))
	if !loaded {
		t.Cleanup(func() {
			scenarios.Delete(t)
			s.(*Scenario).finish()
		})
	}
	return s.(*Scenario)
}

// NewScenario creates a standalone scenario, not bound to the test cleanup.
func NewScenario(t TestingT) *Scenario {
	return &Scenario{t: t, log: zap.NewNop()}
}

// SetLogger sets the logger for invocation tracing.
func (s *Scenario) SetLogger(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	s.mu.Lock()
	s.log = log
	s.mu.Unlock()
}

// Invocations returns a copy of observed invocations in order of occurrence.
func (s *Scenario) Invocations() []*Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Invocation(nil), s.invocations...)
}

func (s *Scenario) add(inv *Invocation) {
	s.mu.Lock()
	inv.seq = len(s.invocations)
	s.invocations = append(s.invocations, inv)
	log := s.log
	s.mu.Unlock()

	log.Debug("mock invoked",
		zap.String("invocation", inv.String()),
		zap.String("behavior", inv.used),
		zap.String("at", inv.callSite().String()))
}

// verify marks the first unverified invocation matching mi as verified
func (s *Scenario) verify(mi *matchingInvocation, inSequence bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inv := range s.invocations {
		if inv.verified || mi.score(inv) < 0 {
			continue
		}
		if inSequence {
			if s.lastInSeq != nil && inv.seq < s.lastInSeq.seq {
				return fmt.Errorf("%w: invocation of %s was expected to be performed after %s but actually occurred before it\nasserted at %s",
					ErrInvokedOutOfOrder, mi, s.lastInSeq, mi.site)
			}
			s.lastInSeq = inv
		}
		inv.verified = true
		return nil
	}
	return fmt.Errorf("%w: expected invocation of %s, but it didn't occur\nasserted at %s", ErrNotInvoked, mi, mi.site)
}

func (s *Scenario) verifyNotInvoked(mi *matchingInvocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inv := range s.invocations {
		if mi.score(inv) >= 0 {
			return fmt.Errorf("%w: expected no invocation of %s, but it did occur at %s\nasserted at %s",
				ErrUnexpectedInvoked, mi, inv.callSite(), mi.site)
		}
	}
	return nil
}

// verifyNoMoreInvocations fails on any unverified invocation of owner, or of any mock if owner is nil
func (s *Scenario) verifyNoMoreInvocations(owner any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for _, inv := range s.invocations {
		if inv.verified || (owner != nil && inv.owner != owner) {
			continue
		}
		err = errors.Join(err, fmt.Errorf("%w: no more invocations expected, yet observed %s at %s",
			ErrUnverifiedInvoked, inv, inv.callSite()))
	}
	return err
}

// AssertNoMoreInvocations fails the test if any invocation of any mock wasn't verified.
func (s *Scenario) AssertNoMoreInvocations() {
	s.t.Helper()
	if err := s.verifyNoMoreInvocations(nil); err != nil {
		s.fail(err)
	}
}

// ExpectationsWereMet returns an error wrapping [ErrExpectationsNotMet] if some invocation wasn't verified.
func (s *Scenario) ExpectationsWereMet() error {
	if err := s.verifyNoMoreInvocations(nil); err != nil {
		return errors.Join(ErrExpectationsNotMet, err)
	}
	return nil
}

func (s *Scenario) fail(err error) {
	s.t.Helper()
	s.t.Errorf("%v\n\n%s", err, s.Report())
}

/*
Report renders the scenario in three parts: observed invocations, suggested assert
statements for the invocations that weren't verified, and a detailed scenario with
the behavior used for every invocation.
*/
func (s *Scenario) Report() string {
	var b strings.Builder
	b.WriteString(s.ObservedReport())
	if suggested := s.SuggestedAsserts(); suggested != "" {
		b.WriteString("\n")
		b.WriteString(suggested)
	}
	b.WriteString("\n")
	b.WriteString(s.DetailedReport())
	return b.String()
}

// ObservedReport lists the invocations with their results.
func (s *Scenario) ObservedReport() string {
	invocations := s.Invocations()

	var b strings.Builder
	b.WriteString("Observed scenario:\n\n")
	if len(invocations) == 0 {
		b.WriteString("  no invocations\n")
		return b.String()
	}
	for _, inv := range invocations {
		line := fmt.Sprintf("%d. %s", inv.seq+1, inv)
		if res := inv.resultString(); res != "" {
			line += " -> " + res
		}
		fmt.Fprintf(&b, "  %-60s .....at %s\n", line, inv.callSite())
	}
	return b.String()
}

// SuggestedAsserts returns assert statements for invocations that weren't verified, empty if there are none.
func (s *Scenario) SuggestedAsserts() string {
	var b strings.Builder
	for _, inv := range s.Invocations() {
		if inv.verified {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("Suggested assert statements:\n\n")
		}
		args := make([]string, len(inv.Args))
		for i, a := range inv.Args {
			args[i] = formatValue(a)
		}
		if inv.Method == "" {
			fmt.Fprintf(&b, "  %s.AssertInvoked()(%s)\n", inv.MockName, strings.Join(args, ", "))
		} else {
			fmt.Fprintf(&b, "  %s.AssertInvoked().%s(%s)\n", inv.MockName, inv.Method, strings.Join(args, ", "))
		}
	}
	return b.String()
}

// DetailedReport lists every invocation with the behavior used and its definition site.
func (s *Scenario) DetailedReport() string {
	var b strings.Builder
	b.WriteString("Detailed scenario:\n\n")
	for _, inv := range s.Invocations() {
		fmt.Fprintf(&b, "%d. %s\n", inv.seq+1, inv)
		fmt.Fprintf(&b, "  - observed at %s\n", inv.callSite())
		if inv.behavior != nil {
			fmt.Fprintf(&b, "  - behavior: %s\n", inv.used)
			fmt.Fprintf(&b, "  - behavior defined at %s\n", inv.behavior.site)
		} else {
			fmt.Fprintf(&b, "  - no behavior defined, %s\n", inv.used)
		}
		if inv.verified {
			b.WriteString("  - verified\n")
		}
	}
	return b.String()
}

// finish runs at the end of the test
func (s *Scenario) finish() {
	if state := repository.pending(); state != nil {
		repository.end()
		s.t.Errorf("%s", state.syntaxError())
	}
	if s.t.Failed() {
		s.t.Logf("%s", s.Report())
	}
}
