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

package launchers

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dynamo-ddm/fileopsd/config"
)

func TestLaunchDaemon_WiresSubsystems(t *testing.T) {
	cfg := &config.Config{}
	cfg.FileOperations.Daemon.MaxParallelLinks = 2
	cfg.DBPath = filepath.Join(t.TempDir(), "fileopsd.sqlite")

	d, err := LaunchDaemon(cfg, WebDAVCredentials{BaseURL: "https://storage.example.org/"})
	require.NoError(t, err)
	defer d.Close()

	require.NotNil(t, d.Store)
	require.NotNil(t, d.Gateway)
	require.NotNil(t, d.Scheduler)
	require.NotNil(t, d.Supervisor)
}
