/***************************************************************
 *
 * Copyright (C) 2025, Pelican Project, Morgridge Institute for Research
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

package logging

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynamo-ddm/fileopsd/config"
)

func TestFlush_WritesBufferedEntriesToFile(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()
	defer Close()

	SetupLogBuffering()
	log.Warn("buffered before destination is known")

	path := filepath.Join(t.TempDir(), "fileopsd.log")
	require.NoError(t, Flush(config.LoggingConfig{Level: "info", Path: path}))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "buffered before destination is known")
}

func TestFlush_OnlyAppliesOnce(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()
	defer Close()

	SetupLogBuffering()
	path := filepath.Join(t.TempDir(), "fileopsd.log")
	require.NoError(t, Flush(config.LoggingConfig{Level: "info", Path: path}))

	// A second Flush call with a different path must be a no-op: the
	// daemon only resolves logging configuration once at startup.
	otherPath := filepath.Join(t.TempDir(), "other.log")
	require.NoError(t, Flush(config.LoggingConfig{Level: "info", Path: otherPath}))

	_, err := os.Stat(otherPath)
	assert.True(t, os.IsNotExist(err))
}

func TestReopen_NoopWhenLoggingToStderr(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()
	defer Close()

	SetupLogBuffering()
	require.NoError(t, Flush(config.LoggingConfig{Level: "info"}))
	assert.NoError(t, Reopen())
}
