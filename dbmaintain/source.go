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

package dbmaintain

import (
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	DefaultPattern           = "**/*.sql"
	DefaultPostprocessingDir = "postprocessing"
)

/*
Source discovers scripts in FS. Every location is a directory in FS, script file
names are relative to their location. Pattern and Ignore are doublestar patterns
matched against these relative names, an ignored directory excludes everything
below it.
*/
type Source struct {
	FS        fs.FS
	Locations []string // "." if empty
	Patterns  []string // DefaultPattern if empty
	Ignore    []string
	// PostprocessingDir holds scripts run after every update, relative to location
	PostprocessingDir string
}

// Scripts returns the scripts but postprocessing ones, ordered for execution.
func (s Source) Scripts() ([]Script, error) {
	return s.load(false)
}

// PostprocessingScripts returns the postprocessing scripts ordered by name.
func (s Source) PostprocessingScripts() ([]Script, error) {
	return s.load(true)
}

func (s Source) load(postprocessing bool) ([]Script, error) {
	locations := s.Locations
	if len(locations) == 0 {
		locations = []string{"."}
	}
	patterns := s.Patterns
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}
	ppDir := s.PostprocessingDir
	if ppDir == "" {
		ppDir = DefaultPostprocessingDir
	}

	seen := make(map[string]bool)
	var scripts []Script
	for _, loc := range locations {
		root, err := fs.Sub(s.FS, path.Clean(loc))
		if err != nil {
			return nil, fmt.Errorf("invalid script location %s: %w", loc, err)
		}
		for _, pattern := range patterns {
			names, err := doublestar.Glob(root, pattern, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("cannot find scripts in %s: %w", loc, err)
			}
			for _, name := range names {
				if seen[name] || s.ignored(name) || inDir(name, ppDir) != postprocessing {
					continue
				}
				seen[name] = true
				script, err := readScript(root, name)
				if err != nil {
					return nil, err
				}
				scripts = append(scripts, script)
			}
		}
	}

	if postprocessing {
		slices.SortFunc(scripts, func(a, b Script) int { return strings.Compare(a.FileName, b.FileName) })
	} else {
		slices.SortFunc(scripts, compareScripts)
	}
	return scripts, nil
}

func (s Source) ignored(name string) bool {
	for _, pattern := range s.Ignore {
		pattern = strings.Trim(pattern, "/")
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern+"/**", name); ok {
			return true
		}
	}
	return false
}

func inDir(name, dir string) bool {
	return strings.HasPrefix(name, strings.Trim(dir, "/")+"/")
}

func readScript(fsys fs.FS, name string) (Script, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return Script{}, fmt.Errorf("cannot read script %s: %w", name, err)
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return Script{}, fmt.Errorf("cannot read script %s: %w", name, err)
	}
	return newScript(name, content, info.ModTime()), nil
}
