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

// Package gateway is the Storage Gateway Adapter: the only component that
// talks to the underlying storage system. It wraps a NativeClient so that
// the transfer and deletion code paths never depend on a specific storage
// protocol, and it is the sole place result codes, retries, and checksums
// are decided.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dynamo-ddm/fileopsd"
)

// Result is the outcome of a single gateway invocation, ready to be folded
// into a fileopsd.Outcome by the Pool Manager that owns the task.
type Result struct {
	ExitCode int
	Message  string
	Log      string
}

// retryableExitCode is the transfer-side code for a failed bind to an
// ephemeral port, the one failure mode the spec asks the gateway to retry
// transparently rather than surface to the caller.
const retryableExitCode = 70

const maxPortBindRetries = 5

// NativeClient is the minimal storage operation set the gateway drives.
// The production implementation is backed by gowebdav.Client; tests supply
// FakeNativeClient.
type NativeClient interface {
	Stat(path string) (size int64, exists bool, err error)
	Copy(ctx context.Context, sourcePFN, destPFN string) error
	Unlink(ctx context.Context, path string) error
	Checksum(path, algorithm string) (string, error)
}

// Gateway is the Storage Gateway Adapter.
type Gateway struct {
	client    NativeClient
	overwrite bool
	checksum  string
	timeout   time.Duration
}

// New builds a Gateway around client using the daemon's file_operations
// configuration (overwrite policy, checksum algorithm, per-task timeout).
func New(client NativeClient, overwrite bool, checksum string, timeout time.Duration) *Gateway {
	return &Gateway{client: client, overwrite: overwrite, checksum: checksum, timeout: timeout}
}

// Transfer copies params.SourcePFN to params.DestinationPFN, honoring the
// overwrite policy and the configured checksum algorithm, and making up to
// maxPortBindRetries attempts in total while the copy fails with an
// ephemeral-port bind failure.
func (g *Gateway) Transfer(ctx context.Context, params fileopsd.TransferParams) (result Result) {
	defer recoverIntoResult(&result)

	invocationID := uuid.NewString()
	logBuf := &bytes.Buffer{}
	capture := log.New()
	capture.SetOutput(logBuf)
	entry := capture.WithField("invocation_id", invocationID)

	if !g.overwrite {
		if size, exists, err := g.client.Stat(params.DestinationPFN); err == nil && exists {
			entry.Infof("destination %s already exists (size %d) and overwrite is disabled", params.DestinationPFN, size)
			// Code 17 is a non-error result: the spec requires it be
			// translated to success rather than surfaced as a failure.
			return Result{ExitCode: 0, Message: "destination exists, overwrite disabled", Log: logBuf.String()}
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if g.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var err error
	for attempt := 0; attempt < maxPortBindRetries; attempt++ {
		err = g.client.Copy(runCtx, params.SourcePFN, params.DestinationPFN)
		if err == nil {
			break
		}
		if !isPortBindFailure(err) {
			break
		}
		entry.Debugf("retrying transfer after ephemeral port bind failure (attempt %d/%d): %v", attempt+1, maxPortBindRetries, err)
	}
	if err != nil {
		if isPortBindFailure(err) {
			entry.Warnf("transfer failed after %d attempts: %v", maxPortBindRetries, err)
			return Result{ExitCode: retryableExitCode, Message: err.Error(), Log: logBuf.String()}
		}
		entry.Errorf("transfer failed: %v", err)
		return Result{ExitCode: 1, Message: err.Error(), Log: logBuf.String()}
	}

	if g.checksum != "" {
		srcSum, serr := g.client.Checksum(params.SourcePFN, g.checksum)
		dstSum, derr := g.client.Checksum(params.DestinationPFN, g.checksum)
		if serr != nil || derr != nil {
			entry.Warnf("checksum verification skipped: source error=%v destination error=%v", serr, derr)
		} else if srcSum != dstSum {
			entry.Errorf("checksum mismatch: source=%s destination=%s", srcSum, dstSum)
			return Result{ExitCode: 1, Message: "checksum mismatch", Log: logBuf.String()}
		}
	}

	entry.Infof("transfer of %s to %s complete", params.SourcePFN, params.DestinationPFN)
	return Result{ExitCode: 0, Log: logBuf.String()}
}

// Delete removes params.TargetPFN, translating a not-found condition to
// the spec's non-error deletion code rather than treating it as a failure.
func (g *Gateway) Delete(ctx context.Context, params fileopsd.DeletionParams) (result Result) {
	defer recoverIntoResult(&result)

	invocationID := uuid.NewString()
	logBuf := &bytes.Buffer{}
	capture := log.New()
	capture.SetOutput(logBuf)
	entry := capture.WithField("invocation_id", invocationID)

	runCtx := ctx
	var cancel context.CancelFunc
	if g.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if _, exists, err := g.client.Stat(params.TargetPFN); err == nil && !exists {
		entry.Infof("%s does not exist, nothing to delete", params.TargetPFN)
		// Code 2 is a non-error result: a target already absent is the
		// deletion's intended end state, not a failure.
		return Result{ExitCode: 0, Message: "target does not exist", Log: logBuf.String()}
	}

	if err := g.client.Unlink(runCtx, params.TargetPFN); err != nil {
		if isPortBindFailure(err) {
			entry.Infof("%s reported not-found on unlink: %v", params.TargetPFN, err)
			// On the deletion path, code 70 is the same non-error result as
			// code 2: the target is already gone. Unlike Transfer, Delete
			// has nothing left to retry for this condition.
			return Result{ExitCode: 0, Message: "target does not exist", Log: logBuf.String()}
		}
		entry.Errorf("delete failed: %v", err)
		return Result{ExitCode: 1, Message: err.Error(), Log: logBuf.String()}
	}

	entry.Infof("deleted %s", params.TargetPFN)
	return Result{ExitCode: 0, Log: logBuf.String()}
}

func recoverIntoResult(result *Result) {
	if r := recover(); r != nil {
		log.Errorf("gateway invocation panicked: %v", r)
		*result = Result{ExitCode: -1, Message: fmt.Sprintf("panic: %v", r)}
	}
}

// isPortBindFailure reports whether err looks like the transient
// "failed to bind ephemeral port" condition the spec singles out for
// transparent retry. Grounded on the teacher's isRetryableWebDavError
// classification in client/handle_http.go.
func isPortBindFailure(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, errPortBindFailure) || os.IsTimeout(err)
}

var errPortBindFailure = errors.New("failed to bind ephemeral port")
