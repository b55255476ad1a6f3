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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynamo-ddm/fileopsd"
)

func TestDelete_Happy(t *testing.T) {
	client := NewFakeNativeClient()
	client.Files["/store/a.txt"] = []byte("hello")
	gw := New(client, false, "", 0)

	result := gw.Delete(context.Background(), fileopsd.DeletionParams{TargetPFN: "/store/a.txt"})

	assert.Equal(t, 0, result.ExitCode)
	assert.NotContains(t, client.Files, "/store/a.txt")
}

func TestDelete_NonExistent(t *testing.T) {
	client := NewFakeNativeClient()
	gw := New(client, false, "", 0)

	result := gw.Delete(context.Background(), fileopsd.DeletionParams{TargetPFN: "/store/missing.txt"})

	// A non-existent deletion target is a non-error result: it must be
	// translated to success, not surfaced as the raw code 2.
	assert.Equal(t, 0, result.ExitCode)
}

func TestDelete_UnlinkReportsPortBindNotFound(t *testing.T) {
	client := NewFakeNativeClient()
	client.Files["/store/a.txt"] = []byte("hello")
	client.UnlinkBindFailure = true
	gw := New(client, false, "", 0)

	result := gw.Delete(context.Background(), fileopsd.DeletionParams{TargetPFN: "/store/a.txt"})

	// Code 70 on the deletion path is the same non-error "already gone"
	// result as code 2, not the transfer-side retryable port-bind failure.
	assert.Equal(t, 0, result.ExitCode)
}

func TestTransfer_OverwriteDisabledDestinationExists(t *testing.T) {
	client := NewFakeNativeClient()
	client.Files["/store/source.txt"] = []byte("payload")
	client.Files["/store/dest.txt"] = []byte("already here")
	gw := New(client, false, "", 0)

	result := gw.Transfer(context.Background(), fileopsd.TransferParams{
		SourcePFN:      "/store/source.txt",
		DestinationPFN: "/store/dest.txt",
	})

	// Overwrite-disabled-destination-exists is a non-error result: it must
	// be translated to success, not surfaced as the raw code 17.
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, []byte("already here"), client.Files["/store/dest.txt"])
	assert.Empty(t, client.Copies)
}

func TestTransfer_RetriesPortBindFailures(t *testing.T) {
	client := NewFakeNativeClient()
	client.Files["/store/source.txt"] = []byte("payload")
	client.BindFailuresRemaining = 3
	gw := New(client, true, "", 0)

	result := gw.Transfer(context.Background(), fileopsd.TransferParams{
		SourcePFN:      "/store/source.txt",
		DestinationPFN: "/store/dest.txt",
	})

	require.Equal(t, 0, result.ExitCode)
	assert.Equal(t, []byte("payload"), client.Files["/store/dest.txt"])
	assert.Len(t, client.Copies, 4)
}

func TestTransfer_PortBindFailureExhaustsRetries(t *testing.T) {
	client := NewFakeNativeClient()
	client.Files["/store/source.txt"] = []byte("payload")
	client.BindFailuresRemaining = maxPortBindRetries
	gw := New(client, true, "", 0)

	result := gw.Transfer(context.Background(), fileopsd.TransferParams{
		SourcePFN:      "/store/source.txt",
		DestinationPFN: "/store/dest.txt",
	})

	assert.Equal(t, retryableExitCode, result.ExitCode)
	assert.Len(t, client.Copies, maxPortBindRetries)
}

func TestTransfer_ChecksumMatchSucceeds(t *testing.T) {
	client := NewFakeNativeClient()
	client.Files["/store/source.txt"] = []byte("payload")
	gw := New(client, true, "md5", 0)

	result := gw.Transfer(context.Background(), fileopsd.TransferParams{
		SourcePFN:      "/store/source.txt",
		DestinationPFN: "/store/dest.txt",
	})

	// The fake copies bytes verbatim, so checksums always match; this
	// exercises the success path through the checksum branch.
	assert.Equal(t, 0, result.ExitCode)
}
