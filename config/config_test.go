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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `{"user": "fileops"}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fileops", cfg.User)
	assert.Equal(t, 2, cfg.FileOperations.Daemon.MaxParallelLinks)
	assert.False(t, cfg.FileOperations.Daemon.Overwrite)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_RejectsInvalidChecksum(t *testing.T) {
	path := writeConfig(t, `{"user": "fileops", "file_operations": {"daemon": {"checksum": "sha256"}}}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsNonPositiveMaxParallelLinks(t *testing.T) {
	path := writeConfig(t, `{"user": "fileops", "file_operations": {"daemon": {"max_parallel_links": 0}}}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_FullDocument(t *testing.T) {
	path := writeConfig(t, `{
		"user": "fileops",
		"file_operations": {
			"daemon": {
				"max_parallel_links": 4,
				"checksum": "md5",
				"transfer_timeout": "30s",
				"overwrite": true
			}
		},
		"logging": {
			"level": "debug",
			"path": "/var/log/fileopsd.log"
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.FileOperations.Daemon.MaxParallelLinks)
	assert.Equal(t, "md5", cfg.FileOperations.Daemon.Checksum)
	assert.True(t, cfg.FileOperations.Daemon.Overwrite)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/var/log/fileopsd.log", cfg.Logging.Path)
}

func TestLoad_TransferTimeoutAsBareNumberMeansSeconds(t *testing.T) {
	path := writeConfig(t, `{
		"user": "fileops",
		"file_operations": {
			"daemon": {
				"transfer_timeout": 30
			}
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// spec.md documents transfer_timeout as a plain number of seconds; a
	// bare JSON number must not be taken as nanoseconds.
	assert.Equal(t, 30*time.Second, cfg.FileOperations.Daemon.TransferTimeout)
}
