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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// TxMode tells how the transaction of a test ends.
type TxMode int

const (
	TxDisabled TxMode = iota
	TxCommit
	TxRollback
)

var txModeNames = []string{"disabled", "commit", "rollback"}

func (m TxMode) String() string {
	if m >= 0 && int(m) < len(txModeNames) {
		return txModeNames[m]
	}
	return fmt.Sprintf("TxMode(%d)", int(m))
}

// ParseTxMode parses the mode name, empty is [TxDisabled].
func ParseTxMode(s string) (TxMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TxDisabled, nil
	}
	for i, n := range txModeNames {
		if n == s {
			return TxMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown transaction mode %q, supported are %s", s, strings.Join(txModeNames, ", "))
}

// UnmarshalText makes TxMode usable in configuration.
func (m *TxMode) UnmarshalText(text []byte) error {
	mode, err := ParseTxMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ErrorfT reports errors, [testing.T] implements it.
type ErrorfT interface {
	Helper()
	Errorf(format string, args ...any)
	Cleanup(func())
}

/*
BeginTest starts the transaction of the test, ended at the test cleanup with a
commit or a rollback as mode says. It returns nil for [TxDisabled].
*/
func (db *DB) BeginTest(t ErrorfT, mode TxMode) (*sql.Tx, error) {
	if mode == TxDisabled {
		return nil, nil
	}
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, fmt.Errorf("cannot begin transaction: %w", err)
	}
	t.Cleanup(func() {
		t.Helper()
		if err := End(tx, mode); err != nil {
			t.Errorf("%v", err)
		}
	})
	return tx, nil
}

// End commits or rolls back tx as mode says.
func End(tx *sql.Tx, mode TxMode) error {
	var err error
	switch mode {
	case TxCommit:
		err = tx.Commit()
	case TxRollback:
		err = tx.Rollback()
	default:
		return nil
	}
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("cannot %s test transaction: %w", mode, err)
	}
	return nil
}
