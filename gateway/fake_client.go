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

package gateway

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// FakeNativeClient is an in-memory NativeClient for tests, standing in for
// a real storage backend the way the teacher's tests construct a fake
// Task Record Store rather than hitting a live database.
type FakeNativeClient struct {
	mu sync.Mutex

	// Files maps a path to its contents. Absence means the path does not
	// exist.
	Files map[string][]byte

	// BindFailuresRemaining, when non-zero, makes the next that many Copy
	// calls fail with errPortBindFailure before succeeding, to exercise the
	// gateway's retry loop.
	BindFailuresRemaining int

	// UnlinkBindFailure, when true, makes the next Unlink call fail with
	// errPortBindFailure, to exercise the deletion path's code-70 handling.
	UnlinkBindFailure bool

	Copies  []string
	Unlinks []string
}

func NewFakeNativeClient() *FakeNativeClient {
	return &FakeNativeClient{Files: make(map[string][]byte)}
}

func (f *FakeNativeClient) Stat(path string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contents, ok := f.Files[path]
	if !ok {
		return 0, false, nil
	}
	return int64(len(contents)), true, nil
}

func (f *FakeNativeClient) Copy(ctx context.Context, sourcePFN, destPFN string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Copies = append(f.Copies, sourcePFN+"->"+destPFN)

	if f.BindFailuresRemaining > 0 {
		f.BindFailuresRemaining--
		return errors.Wrap(errPortBindFailure, "fake ephemeral port bind failure")
	}

	contents, ok := f.Files[sourcePFN]
	if !ok {
		return errors.Errorf("source %s does not exist", sourcePFN)
	}
	f.Files[destPFN] = contents
	return nil
}

func (f *FakeNativeClient) Unlink(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.UnlinkBindFailure {
		f.UnlinkBindFailure = false
		return errors.Wrap(errPortBindFailure, "fake ephemeral port bind failure")
	}

	f.Unlinks = append(f.Unlinks, path)
	delete(f.Files, path)
	return nil
}

func (f *FakeNativeClient) Checksum(path, algorithm string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contents, ok := f.Files[path]
	if !ok {
		return "", errors.Errorf("%s does not exist", path)
	}
	return algorithm + ":" + string(contents), nil
}

var _ NativeClient = (*FakeNativeClient)(nil)
