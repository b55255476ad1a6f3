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

package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynamo-ddm/fileopsd"
	"github.com/dynamo-ddm/fileopsd/database"
	"github.com/dynamo-ddm/fileopsd/gateway"
	"github.com/dynamo-ddm/fileopsd/registry"
	"github.com/dynamo-ddm/fileopsd/scheduler"
)

func TestSupervisor_RecoversOrphansOnStartup(t *testing.T) {
	store := database.NewFakeStore()

	link := fileopsd.LinkKey{Kind: fileopsd.KindTransfer, SourceSite: "a", DestSite: "b"}
	active := fileopsd.Task{ID: 1, Kind: fileopsd.KindTransfer, Link: link, Transfer: &fileopsd.TransferParams{SourcePFN: "x", DestinationPFN: "y"}}
	queued := fileopsd.Task{ID: 2, Kind: fileopsd.KindTransfer, Link: link, Transfer: &fileopsd.TransferParams{SourcePFN: "x", DestinationPFN: "z"}}
	store.SeedStatus(active, fileopsd.StatusActive)
	store.SeedStatus(queued, fileopsd.StatusQueued)

	client := gateway.NewFakeNativeClient()
	gw := gateway.New(client, true, "", 0)
	regs := registry.NewSet()
	defer regs.Stop()
	sched := scheduler.New(store, gw, regs, 2)

	s := New(store, sched)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	status1, _ := store.StatusOf(fileopsd.KindTransfer, 1)
	status2, _ := store.StatusOf(fileopsd.KindTransfer, 2)
	assert.Equal(t, fileopsd.StatusNew, status1)
	assert.Equal(t, fileopsd.StatusNew, status2)
}

func TestSupervisor_RecoversOrphansOnShutdown(t *testing.T) {
	store := database.NewFakeStore()

	client := gateway.NewFakeNativeClient()
	gw := gateway.New(client, true, "", 0)
	regs := registry.NewSet()
	defer regs.Stop()
	sched := scheduler.New(store, gw, regs, 2)

	s := New(store, sched)

	// Simulate a task still active past the drain deadline (its Pool
	// Manager's worker never returned in time): the shutdown path must
	// still reset it to new, not just the startup path.
	link := fileopsd.LinkKey{Kind: fileopsd.KindTransfer, SourceSite: "a", DestSite: "b"}
	stuck := fileopsd.Task{ID: 5, Kind: fileopsd.KindTransfer, Link: link, Transfer: &fileopsd.TransferParams{SourcePFN: "x", DestinationPFN: "y"}}
	store.SeedStatus(stuck, fileopsd.StatusActive)

	require.NoError(t, s.drain())

	status, _ := store.StatusOf(fileopsd.KindTransfer, 5)
	assert.Equal(t, fileopsd.StatusNew, status)
}
