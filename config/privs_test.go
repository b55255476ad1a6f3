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
	"os/user"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUser_CurrentAccount(t *testing.T) {
	current, err := user.Current()
	require.NoError(t, err)

	resolved, err := ResolveUser(current.Username)
	require.NoError(t, err)
	assert.Equal(t, current.Username, resolved.Username)
}

func TestResolveUser_UnknownAccount(t *testing.T) {
	_, err := ResolveUser("no-such-fileopsd-account-xyz")
	assert.Error(t, err)
}

func TestResolveUser_EmptyNameAsRootIsAnError(t *testing.T) {
	if !IsRootExecution() {
		t.Skip("only meaningful when running as root")
	}
	_, err := ResolveUser("")
	assert.Error(t, err)
}
