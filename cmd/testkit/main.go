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

// Command testkit maintains the test database the way tests do, from the same configuration.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qrdl/testkit"
	"github.com/qrdl/testkit/config"
	"github.com/qrdl/testkit/database"
	"github.com/qrdl/testkit/dataset"
	"github.com/qrdl/testkit/dbmaintain"
	"github.com/qrdl/testkit/dbsupport"
	"github.com/qrdl/testkit/sqlscript"
)

// options are the global flags
type options struct {
	dir      string
	driver   string
	dsn      string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "testkit",
		Short:         "Maintain test databases",
		Long:          `testkit updates, migrates and inspects the test database configured in testkit.yaml, the way the tests set it up.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dir, "dir", "", "Directory to look up testkit.yaml from (default is the working directory)")
	root.PersistentFlags().StringVar(&opts.driver, "driver", "", "Database driver, overrides the configuration")
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "Database DSN, overrides the configuration")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level, overrides the configuration")

	root.AddCommand(newMaintainCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newDisableConstraintsCmd(opts))
	root.AddCommand(newClearCmd(opts))
	root.AddCommand(newDTDCmd(opts))
	root.AddCommand(newSplitCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *options) config() (*config.Config, error) {
	cfg, err := config.Loader{Dir: o.dir}.Load()
	if err != nil {
		return nil, err
	}
	if o.driver != "" {
		cfg.Database.Driver = o.driver
	}
	if o.dsn != "" {
		cfg.Database.DSN = o.dsn
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

// env is what database commands work with
type env struct {
	cfg *config.Config
	log *zap.Logger
	db  *database.DB
}

func (o *options) open() (*env, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	log, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.Database.Config, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

func (e *env) close() {
	if err := e.db.Close(); err != nil {
		e.log.Warn("failed to close database", zap.Error(err))
	}
	_ = e.log.Sync()
}

// withEnv runs fn with an open database
func withEnv(opts *options, fn func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := opts.open()
		if err != nil {
			return err
		}
		defer e.close()
		return fn(cmd, e, args)
	}
}

func newMaintainCmd(opts *options) *cobra.Command {
	var fromScratch bool
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run the database scripts that are due",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(cmd *cobra.Command, e *env, _ []string) error {
			if fromScratch {
				e.cfg.Maintain.FromScratch = true
			}
			m := testkit.NewMaintainer(e.cfg, e.db, os.DirFS(e.cfg.BaseDir()), e.log)
			executed, err := m.Update(cmd.Context())
			for _, name := range executed {
				fmt.Fprintf(cmd.OutOrStdout(), "executed %s\n", name)
			}
			if err != nil {
				return err
			}
			if len(executed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&fromScratch, "from-scratch", false, "Allow recreating the database when scripts were modified")
	return cmd
}

func newMigrateCmd(opts *options) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply golang-migrate migrations",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(cmd *cobra.Command, e *env, _ []string) error {
			m, err := dbmaintain.NewMigrator(e.db.DB, e.db.Dialect, os.DirFS(e.cfg.BaseDir()), testkit.MigrateConfig(e.cfg))
			if err != nil {
				return err
			}
			defer m.Close()

			if down {
				err = m.Down()
			} else {
				err = m.Up()
			}
			if err != nil {
				return err
			}
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&down, "down", false, "Revert all migrations instead")
	return cmd
}

func newDisableConstraintsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "disable-constraints",
		Short: "Disable foreign key and not null constraints",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(cmd *cobra.Command, e *env, _ []string) error {
			return e.disabler().Disable(cmd.Context(), e.db)
		}),
	}
}

func newClearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop all tables but the script registry",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(cmd *cobra.Command, e *env, _ []string) error {
			return e.disabler().DropAll(cmd.Context(), e.db)
		}),
	}
}

func (e *env) disabler() dbsupport.ConstraintsDisabler {
	registry := e.cfg.Maintain.RegistryTable
	if registry == "" {
		registry = dbmaintain.DefaultRegistryTable
	}
	return dbsupport.ConstraintsDisabler{
		Dialect: e.db.Dialect,
		Log:     e.log,
		Exclude: []string{registry, e.cfg.Migrate.Table},
	}
}

func newDTDCmd(opts *options) *cobra.Command {
	var (
		output  string
		exclude []string
	)
	cmd := &cobra.Command{
		Use:   "dtd",
		Short: "Write the DTD of flat XML data sets for the database",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(cmd *cobra.Command, e *env, _ []string) error {
			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return dataset.WriteDTD(cmd.Context(), w, e.db, e.db.Dialect, exclude...)
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default is stdout)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", []string{dbmaintain.DefaultRegistryTable}, "Tables to leave out")
	return cmd
}

func newSplitCmd(opts *options) *cobra.Command {
	var backslash bool
	cmd := &cobra.Command{
		Use:   "split <script>",
		Short: "Print the statements of a SQL script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			statements, err := sqlscript.Split(r, sqlscript.Options{
				BackslashEscaping: backslash || cfg.Maintain.BackslashEscaping,
			})
			if err != nil {
				return err
			}
			for i, stmt := range statements {
				fmt.Fprintf(cmd.OutOrStdout(), "-- %d\n%s;\n", i+1, stmt)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&backslash, "backslash-escaping", false, "Treat backslash as escape character in literals")
	return cmd
}
