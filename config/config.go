/***************************************************************
 *
 * Copyright (C) 2024, Pelican Project, Morgridge Institute for Research
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

// Package config loads the daemon's JSON configuration document and
// exposes it as a typed, validated Config value.
package config

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// DaemonConfig holds the `file_operations.daemon` configuration block.
type DaemonConfig struct {
	MaxParallelLinks int           `mapstructure:"max_parallel_links" json:"max_parallel_links"`
	Checksum         string        `mapstructure:"checksum" json:"checksum"`
	TransferTimeout  time.Duration `mapstructure:"transfer_timeout" json:"transfer_timeout"`
	Overwrite        bool          `mapstructure:"overwrite" json:"overwrite"`
	Gfal2Verbosity   string        `mapstructure:"gfal2_verbosity" json:"gfal2_verbosity"`
}

// LoggingConfig holds the `logging` configuration block.
type LoggingConfig struct {
	Level string `mapstructure:"level" json:"level"`
	Path  string `mapstructure:"path" json:"path"`
}

// Config is the complete, validated daemon configuration.
type Config struct {
	User string `mapstructure:"user" json:"user"`

	FileOperations struct {
		Daemon DaemonConfig `mapstructure:"daemon" json:"daemon"`
	} `mapstructure:"file_operations" json:"file_operations"`

	Logging LoggingConfig `mapstructure:"logging" json:"logging"`

	// DBPath is not a JSON configuration key; it is threaded in by the CLI
	// layer from the --db flag, since the spec's schema is
	// silent on where the SQLite file lives.
	DBPath string `mapstructure:"-" json:"db_path"`
}

var validChecksumAlgorithms = map[string]bool{
	"":        true,
	"crc32":   true,
	"adler32": true,
	"md5":     true,
}

// Load reads the JSON configuration document at path and returns a
// validated Config. Unrecognized keys are ignored, per spec.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault("file_operations.daemon.max_parallel_links", 2)
	v.SetDefault("file_operations.daemon.overwrite", false)
	v.SetDefault("file_operations.daemon.transfer_timeout", "0s")
	v.SetDefault("logging.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration file %s", path)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration document")
	}

	cfg.FileOperations.Daemon.TransferTimeout = compatToDuration(
		cfg.FileOperations.Daemon.TransferTimeout, "file_operations.daemon.transfer_timeout")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// compatToDuration corrects for viper's WeaklyTypedInput decoding of a bare
// JSON number straight into a time.Duration as nanoseconds: transfer_timeout
// is documented as seconds, so any decoded value under a microsecond is
// assumed to have meant seconds rather than nanoseconds.
func compatToDuration(dur time.Duration, paramName string) time.Duration {
	if dur > 0 && dur < time.Microsecond {
		log.Warnf("%s must be given as a duration string (e.g. \"30s\"); interpreting bare number %d as seconds", paramName, dur.Nanoseconds())
		return time.Duration(dur.Nanoseconds()) * time.Second
	}
	return dur
}

// Validate enforces the constraints spec.md §6 implies on the recognized keys.
func (c *Config) Validate() error {
	if c.FileOperations.Daemon.MaxParallelLinks <= 0 {
		return errors.Errorf("file_operations.daemon.max_parallel_links must be positive, got %d", c.FileOperations.Daemon.MaxParallelLinks)
	}
	if !validChecksumAlgorithms[c.FileOperations.Daemon.Checksum] {
		return errors.Errorf("file_operations.daemon.checksum %q is not one of crc32|adler32|md5", c.FileOperations.Daemon.Checksum)
	}
	return nil
}
