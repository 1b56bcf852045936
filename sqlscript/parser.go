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
Package sqlscript splits SQL scripts into executable statements.

Statements end with ';' or with '/' on a line of its own. Terminators have no effect
inside line comments (--), block comments and quoted literals. Text consisting of
comments only is not executable and is skipped. A script ending with an executable
statement without terminator is an error.
*/
package sqlscript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrUnterminated = errors.New("last statement in script was not ended correctly, each statement should end with ';' or '/'")

type state int

const (
	normal state = iota
	lineComment
	blockComment
	singleQuotes
	doubleQuotes
)

// Options of the parser.
type Options struct {
	// BackslashEscaping makes '\' escape the next character, e.g. \' inside literals
	BackslashEscaping bool
}

// Scanner reads statements one by one.
type Scanner struct {
	r    *bufio.Reader
	opts Options
	line int
}

func NewScanner(r io.Reader, opts Options) *Scanner {
	return &Scanner{r: bufio.NewReader(r), opts: opts, line: 1}
}

// Split returns all statements of the script.
func Split(r io.Reader, opts Options) ([]string, error) {
	s := NewScanner(r, opts)
	var statements []string
	for {
		stmt, err := s.Next()
		if errors.Is(err, io.EOF) {
			return statements, nil
		}
		if err != nil {
			return statements, err
		}
		statements = append(statements, stmt)
	}
}

// SplitString is [Split] for a script held in memory.
func SplitString(script string, opts Options) ([]string, error) {
	return Split(strings.NewReader(script), opts)
}

func (s *Scanner) read() (rune, bool, error) {
	c, _, err := s.r.ReadRune()
	if errors.Is(err, io.EOF) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cannot read script: %w", err)
	}
	return c, true, nil
}

func (s *Scanner) peek() rune {
	c, _, err := s.r.ReadRune()
	if err != nil {
		return 0
	}
	_ = s.r.UnreadRune()
	return c
}

/*
Next returns the next executable statement without its terminator, or io.EOF if
there are no more statements. Leading and trailing whitespace is removed, comments
inside the statement are kept.
*/
func (s *Scanner) Next() (string, error) {
	var b strings.Builder
	executable := false
	st := normal
	var prev rune
	startLine := s.line

	for {
		c, ok, err := s.read()
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		if c == '\n' {
			s.line++
		}
		if b.Len() == 0 {
			// skip leading whitespace
			if c <= ' ' {
				continue
			}
			startLine = s.line
		}
		next := s.peek()

		switch st {
		case normal:
			switch {
			case c == '-' && next == '-', c == '/' && next == '*':
				// opening sequence is consumed at once so /*/ doesn't close the comment
				st = lineComment
				if c == '/' {
					st = blockComment
				}
				b.WriteRune(c)
				c, _, _ = s.read()
				b.WriteRune(c)
				prev = 0
				continue
			case c == '\'':
				st = singleQuotes
				executable = true
			case c == '"':
				st = doubleQuotes
				executable = true
			case c == ';':
				if stmt := finish(&b, executable); stmt != "" {
					return stmt, nil
				}
				b.Reset()
				executable, prev = false, 0
				continue
			case c == '/' && (prev == 0 || prev == '\n') && (next == 0 || next == '\n' || next == '\r'):
				if stmt := finish(&b, executable); stmt != "" {
					return stmt, nil
				}
				b.Reset()
				executable, prev = false, 0
				continue
			case c == '\\' && s.opts.BackslashEscaping:
				esc, err := s.escaped(&b)
				if err != nil {
					return "", err
				}
				c = esc
				executable = true
			case c > ' ':
				executable = true
			}
		case lineComment:
			if c == '\n' {
				st = normal
			}
		case blockComment:
			if c == '/' && prev == '*' {
				st = normal
			}
		case singleQuotes, doubleQuotes:
			quote := '\''
			if st == doubleQuotes {
				quote = '"'
			}
			if c == '\\' && s.opts.BackslashEscaping {
				esc, err := s.escaped(&b)
				if err != nil {
					return "", err
				}
				c = esc
			} else if c == quote {
				st = normal
			}
		}
		if c != 0 {
			b.WriteRune(c)
		}
		prev = c
	}

	if stmt := finish(&b, executable); stmt != "" {
		return "", fmt.Errorf("%w: statement starting at line %d", ErrUnterminated, startLine)
	}
	return "", io.EOF
}

// escaped writes the backslash and returns the escaped character, 0 at the end of script
func (s *Scanner) escaped(b *strings.Builder) (rune, error) {
	b.WriteRune('\\')
	c, ok, err := s.read()
	if err != nil || !ok {
		return 0, err
	}
	if c == '\n' {
		s.line++
	}
	return c, nil
}

func finish(b *strings.Builder, executable bool) string {
	if !executable {
		return ""
	}
	return strings.TrimSpace(b.String())
}
