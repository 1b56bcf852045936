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
	"go/ast"
	"go/parser"
	"go/token"
	"sync"

	"golang.org/x/tools/go/ast/inspector"
)

var errCallNotFound = errors.New("matching invocation not found in source")

type parsedFile struct {
	inspector *inspector.Inspector
	err       error
}

// sourceCache keeps parsed test sources, a file is parsed once per test binary
type sourceCache struct {
	mu    sync.Mutex
	fset  *token.FileSet
	files map[string]*parsedFile
}

var sources = &sourceCache{fset: token.NewFileSet(), files: make(map[string]*parsedFile)}

func (c *sourceCache) inspector(file string) (*inspector.Inspector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pf, ok := c.files[file]; ok {
		return pf.inspector, pf.err
	}
	pf := &parsedFile{}
	f, err := parser.ParseFile(c.fset, file, nil, parser.SkipObjectResolution)
	if err != nil {
		pf.err = fmt.Errorf("cannot parse %s: %w", file, err)
	} else {
		pf.inspector = inspector.New([]*ast.File{f})
	}
	c.files[file] = pf
	return pf.inspector, pf.err
}

// window is the part of the source between the start of a matching invocation
// and the call of the matching proxy
type window struct {
	start     callSite
	end       callSite
	operation string // Returns, AssertInvoked, ...
}

/*
matcherPositions locates the matching proxy call in the source and reports, for every
(expanded) argument, whether the argument expression is a call of one of helpers.

The call is identified by the method name, or the name of the delegating method it
was made through (for func contracts, by being the call of the operation result), by containing the line the proxy was called from and by
the argument count. If there are several candidates, the innermost one is taken.
*/
func (c *sourceCache) matcherPositions(w window, m *method, argCount int, helpers map[string]bool) ([]bool, error) {
	if w.end.file == "" || w.end.line < 0 {
		return nil, errCallNotFound
	}
	if w.start.file != w.end.file {
		return nil, fmt.Errorf("matching invocation started in %s but the proxy was called from %s", w.start.file, w.end.file)
	}
	in, err := c.inspector(w.end.file)
	if err != nil {
		return nil, err
	}

	numIn := m.typ.NumIn()
	var found *ast.CallExpr
	var foundSpan token.Pos

	in.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call := n.(*ast.CallExpr)
		if !c.isProxyCall(call, m, w) {
			return
		}
		from, to := c.fset.Position(call.Pos()).Line, c.fset.Position(call.End()).Line
		if from < w.start.line || from > w.end.line || to < w.end.line {
			return
		}
		if call.Ellipsis.IsValid() {
			if len(call.Args) != numIn {
				return
			}
		} else if len(call.Args) != argCount {
			return
		}
		if span := call.End() - call.Pos(); found == nil || span < foundSpan {
			found, foundSpan = call, span
		}
	})
	if found == nil {
		return nil, errCallNotFound
	}

	positions := make([]bool, argCount)
	if found.Ellipsis.IsValid() {
		for i := 0; i < numIn-1; i++ {
			positions[i] = isHelperCall(found.Args[i], helpers)
		}
		if isHelperCall(found.Args[numIn-1], helpers) {
			return nil, fmt.Errorf("argument matchers cannot be used for a variadic argument passed with ...")
		}
		return positions, nil
	}
	for i, arg := range found.Args {
		positions[i] = isHelperCall(arg, helpers)
	}
	return positions, nil
}

func (c *sourceCache) isProxyCall(call *ast.CallExpr, m *method, w window) bool {
	if m.name != "" {
		name := calleeName(call.Fun)
		return name == m.name || (w.end.via != "" && name == w.end.via)
	}
	// func contracts are called either right on the operation result or via a variable
	switch fun := ast.Unparen(call.Fun).(type) {
	case *ast.CallExpr:
		return calleeName(fun.Fun) == w.operation
	case *ast.Ident:
		return true
	}
	return false
}

func isHelperCall(arg ast.Expr, helpers map[string]bool) bool {
	call, ok := ast.Unparen(arg).(*ast.CallExpr)
	if !ok {
		return false
	}
	return helpers[calleeName(call.Fun)]
}

// calleeName returns the name of called function, stripping package qualifiers and
// type parameters, e.g. "Any" for mock.Any[int]
func calleeName(fun ast.Expr) string {
	switch f := ast.Unparen(fun).(type) {
	case *ast.Ident:
		return f.Name
	case *ast.SelectorExpr:
		return f.Sel.Name
	case *ast.IndexExpr:
		return calleeName(f.X)
	case *ast.IndexListExpr:
		return calleeName(f.X)
	}
	return ""
}
