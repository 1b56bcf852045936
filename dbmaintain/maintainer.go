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
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qrdl/testkit/dbsupport"
	"github.com/qrdl/testkit/sqlscript"
)

var (
	ErrScriptModified   = errors.New("executed incremental script was modified")
	ErrScriptDeleted    = errors.New("executed incremental script was deleted")
	ErrScriptOutOfOrder = errors.New("incremental script added with lower version than executed ones")
	ErrPreviousFailure  = errors.New("script failed during previous update")
)

/*
Maintainer brings the database up to date with the scripts of Source.

Changes to already executed incremental scripts can't be applied incrementally.
With FromScratch enabled, all tables are dropped and every script is run again,
otherwise Update fails.
*/
type Maintainer struct {
	DB       dbsupport.Querier
	Dialect  dbsupport.Dialect
	Source   Source
	Registry *Registry
	Log      *zap.Logger

	FromScratch        bool
	DisableConstraints bool
	ParserOptions      sqlscript.Options
	// now is replaced in tests
	now func() time.Time
}

// Update runs the scripts that are due and returns their file names.
func (m *Maintainer) Update(ctx context.Context) ([]string, error) {
	log := m.Log
	if log == nil {
		log = zap.NewNop()
	}
	scripts, err := m.Source.Scripts()
	if err != nil {
		return nil, err
	}
	executed, err := m.Registry.Executed(ctx)
	if err != nil {
		return nil, err
	}

	fromScratch, err := m.Registry.FromScratchRecommended(ctx)
	if err != nil {
		return nil, err
	}
	fromScratch = fromScratch && m.FromScratch && len(scripts) > 0
	if !fromScratch {
		if reason := incompatibleChange(scripts, executed); reason != nil {
			if !m.FromScratch {
				return nil, reason
			}
			log.Info("updating database from scratch", zap.Error(reason))
			fromScratch = true
		}
	}

	due := scripts
	if fromScratch {
		disabler := dbsupport.ConstraintsDisabler{Dialect: m.Dialect, Log: log, Exclude: []string{m.Registry.table()}}
		if err := disabler.DropAll(ctx, m.DB); err != nil {
			return nil, err
		}
		if err := m.Registry.Clear(ctx); err != nil {
			return nil, err
		}
		executed = nil
	} else {
		due = dueScripts(scripts, executed)
	}

	registered := make(map[string]bool, len(executed))
	for _, es := range executed {
		registered[es.FileName] = true
	}
	var names []string
	for _, s := range due {
		if err := m.run(ctx, log, s, registered[s.FileName]); err != nil {
			return names, err
		}
		names = append(names, s.FileName)
	}
	if len(names) == 0 {
		log.Debug("database is up to date")
		return nil, nil
	}

	post, err := m.Source.PostprocessingScripts()
	if err != nil {
		return names, err
	}
	for _, s := range post {
		if err := m.execute(ctx, s); err != nil {
			return names, fmt.Errorf("postprocessing script %s failed: %w", s.FileName, err)
		}
		log.Debug("postprocessing script executed", zap.String("script", s.FileName))
	}

	if m.DisableConstraints {
		disabler := dbsupport.ConstraintsDisabler{Dialect: m.Dialect, Log: log, Exclude: []string{m.Registry.table()}}
		if err := disabler.Disable(ctx, m.DB); err != nil {
			log.Warn("some constraints were not disabled", zap.Error(err))
		}
	}
	return names, nil
}

// run executes the script and keeps the registry in sync, a failed script stays registered as failed
func (m *Maintainer) run(ctx context.Context, log *zap.Logger, s Script, registered bool) error {
	es := ExecutedScript{Script: s, ExecutedAt: m.timeNow()}
	var err error
	if registered {
		err = m.Registry.Update(ctx, es)
	} else {
		err = m.Registry.Register(ctx, es)
	}
	if err != nil {
		return err
	}

	if err := m.execute(ctx, s); err != nil {
		log.Error("script failed", zap.String("script", s.FileName), zap.Error(err))
		return fmt.Errorf("script %s failed: %w", s.FileName, err)
	}
	es.Succeeded = true
	if err := m.Registry.Update(ctx, es); err != nil {
		return err
	}
	log.Info("script executed", zap.String("script", s.FileName), zap.Stringer("version", s.Version))
	return nil
}

func (m *Maintainer) execute(ctx context.Context, s Script) error {
	statements, err := sqlscript.Split(bytes.NewReader(s.Content), m.ParserOptions)
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := m.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

func (m *Maintainer) timeNow() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

// incompatibleChange returns why the executed incremental scripts can't be continued, nil if they can
func incompatibleChange(scripts []Script, executed []ExecutedScript) error {
	byName := make(map[string]Script, len(scripts))
	for _, s := range scripts {
		byName[s.FileName] = s
	}

	var highest Version
	for _, es := range executed {
		if !es.Incremental {
			continue
		}
		if !es.Succeeded {
			return fmt.Errorf("%w: %s", ErrPreviousFailure, es.FileName)
		}
		s, ok := byName[es.FileName]
		if !ok {
			return fmt.Errorf("%w: %s", ErrScriptDeleted, es.FileName)
		}
		if s.Checksum != es.Checksum {
			return fmt.Errorf("%w: %s", ErrScriptModified, es.FileName)
		}
		if highest == nil || es.Version.Compare(highest) > 0 {
			highest = es.Version
		}
	}

	done := make(map[string]bool, len(executed))
	for _, es := range executed {
		done[es.FileName] = true
	}
	for _, s := range scripts {
		if s.Incremental && !done[s.FileName] && highest != nil && s.Version.Compare(highest) < 0 {
			return fmt.Errorf("%w: %s", ErrScriptOutOfOrder, s)
		}
	}
	return nil
}

// dueScripts returns new scripts and repeatable scripts that changed or failed
func dueScripts(scripts []Script, executed []ExecutedScript) []Script {
	byName := make(map[string]ExecutedScript, len(executed))
	for _, es := range executed {
		byName[es.FileName] = es
	}
	var due []Script
	for _, s := range scripts {
		es, ok := byName[s.FileName]
		switch {
		case !ok:
			due = append(due, s)
		case !s.Incremental && (es.Checksum != s.Checksum || !es.Succeeded):
			due = append(due, s)
		}
	}
	return due
}
