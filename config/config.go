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
Package config loads the testkit configuration. Layers are applied in order, each
overriding keys of the previous ones:

  - built-in defaults,
  - testkit.yaml, looked up from the working directory upwards,
  - .testkit-local.yaml in the user home directory,
  - environment variables TESTKIT_<SECTION>_<KEY>, e.g. TESTKIT_DATABASE_DSN.
*/
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/qrdl/testkit/database"
)

const (
	ProjectFile = "testkit.yaml"
	LocalFile   = ".testkit-local.yaml"
	EnvPrefix   = "TESTKIT"
)

//go:embed defaults.yaml
var defaults []byte

type Config struct {
	Log      LogConfig      `yaml:"log" env:"LOG"`
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
	DataSet  DataSetConfig  `yaml:"dataset" env:"DATASET"`
	Maintain MaintainConfig `yaml:"maintain" env:"MAINTAIN"`
	Migrate  MigrateConfig  `yaml:"migrate" env:"MIGRATE"`
	// Files lists the configuration files applied, for diagnostics
	Files []string `yaml:"-"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	// Format is console or json
	Format string `yaml:"format" env:"FORMAT"`
}

type DatabaseConfig struct {
	database.Config `yaml:",inline"`
	// Transaction is disabled, commit or rollback
	Transaction string `yaml:"transaction" env:"TRANSACTION"`
}

type DataSetConfig struct {
	Dir          string `yaml:"dir" env:"DIR"`
	NullToken    string `yaml:"null_token" env:"NULL_TOKEN"`
	LoadStrategy string `yaml:"load_strategy" env:"LOAD_STRATEGY"`
}

type MaintainConfig struct {
	Enabled            bool     `yaml:"enabled" env:"ENABLED"`
	Locations          []string `yaml:"locations" env:"LOCATIONS"`
	Patterns           []string `yaml:"patterns" env:"PATTERNS"`
	Ignore             []string `yaml:"ignore" env:"IGNORE"`
	PostprocessingDir  string   `yaml:"postprocessing_dir" env:"POSTPROCESSING_DIR"`
	FromScratch        bool     `yaml:"from_scratch" env:"FROM_SCRATCH"`
	AutoCreateRegistry bool     `yaml:"auto_create_registry" env:"AUTO_CREATE_REGISTRY"`
	RegistryTable      string   `yaml:"registry_table" env:"REGISTRY_TABLE"`
	DisableConstraints bool     `yaml:"disable_constraints" env:"DISABLE_CONSTRAINTS"`
	BackslashEscaping  bool     `yaml:"backslash_escaping" env:"BACKSLASH_ESCAPING"`
}

type MigrateConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Dir     string `yaml:"dir" env:"DIR"`
	Table   string `yaml:"table" env:"TABLE"`
}

// Loader loads the configuration, zero value uses the working directory, the user home and the process environment.
type Loader struct {
	Dir    string
	Home   string
	Lookup func(key string) (string, bool)
}

// Load loads the configuration with the default [Loader].
func Load() (*Config, error) {
	return Loader{}.Load()
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaults, cfg); err != nil {
		panic(fmt.Sprintf("invalid built-in configuration: %v", err))
	}
	return cfg
}

func (l Loader) Load() (*Config, error) {
	cfg := Default()

	dir := l.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	if path, ok := findUpwards(dir, ProjectFile); ok {
		if err := cfg.apply(path); err != nil {
			return nil, err
		}
	}

	home := l.Home
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	if home != "" {
		if err := cfg.apply(filepath.Join(home, LocalFile)); err != nil {
			return nil, err
		}
	}

	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), EnvPrefix, lookup); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	return cfg, nil
}

// apply overrides cfg with the file, a missing file is skipped
func (cfg *Config) apply(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.Files = append(cfg.Files, path)
	return nil
}

// BaseDir returns the directory of the project configuration file, relative paths are resolved against it.
func (cfg *Config) BaseDir() string {
	for _, f := range cfg.Files {
		if filepath.Base(f) == ProjectFile {
			return filepath.Dir(f)
		}
	}
	return "."
}

func findUpwards(dir, name string) (string, bool) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func setFieldsFromEnv(v reflect.Value, prefix string, lookup func(string) (string, bool)) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if fieldType.Anonymous && field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, prefix, lookup); err != nil {
				return err
			}
			continue
		}
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey, lookup); err != nil {
				return err
			}
			continue
		}
		envValue, ok := lookup(envKey)
		if !ok {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeFor[time.Duration]() {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			var parts []string
			for _, p := range strings.Split(value, ",") {
				if p = strings.TrimSpace(p); p != "" {
					parts = append(parts, p)
				}
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// Logger builds the logger from the log section.
func (cfg *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := cfg.Log.Format
	if encoding == "json" {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapConfig.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}
