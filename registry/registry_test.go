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

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_AddRemove(t *testing.T) {
	r := New()
	defer r.Stop()

	r.Add(1)
	assert.True(t, r.Contains(1))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Remove(1))
	assert.False(t, r.Contains(1))
	assert.False(t, r.Remove(1))
}

func TestRegistry_CancellationBeforeDispatch(t *testing.T) {
	r := New()
	defer r.Stop()

	r.Replace(map[int64]struct{}{1: {}, 2: {}})

	// FOM cancels task 2 out of band; the scheduler's next Replace call
	// drops it, so a worker that reaches Remove after that refresh finds
	// it gone and must not run it.
	r.Replace(map[int64]struct{}{1: {}})

	assert.True(t, r.Remove(1))
	assert.False(t, r.Remove(2))
}

func TestRegistry_Replace(t *testing.T) {
	r := New()
	defer r.Stop()

	r.Replace(map[int64]struct{}{1: {}, 2: {}, 3: {}})
	assert.Equal(t, 3, r.Len())

	r.Replace(map[int64]struct{}{3: {}})
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Contains(3))
	assert.False(t, r.Contains(1))
}
