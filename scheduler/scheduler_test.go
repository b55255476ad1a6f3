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

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dynamo-ddm/fileopsd"
	"github.com/dynamo-ddm/fileopsd/database"
	"github.com/dynamo-ddm/fileopsd/gateway"
	"github.com/dynamo-ddm/fileopsd/registry"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "condition never became true")
}

func TestScheduler_DispatchesGroupedByLink(t *testing.T) {
	store := database.NewFakeStore()
	client := gateway.NewFakeNativeClient()
	client.Files["/store/a.txt"] = []byte("data")
	client.Files["/store/b.txt"] = []byte("data")
	gw := gateway.New(client, true, "", 0)
	regs := registry.NewSet()
	defer regs.Stop()

	sched := New(store, gw, regs, 2)

	link := fileopsd.LinkKey{Kind: fileopsd.KindTransfer, SourceSite: "site-a", DestSite: "site-b"}
	t1 := fileopsd.Task{ID: 1, Kind: fileopsd.KindTransfer, Link: link, Transfer: &fileopsd.TransferParams{SourcePFN: "/store/a.txt", DestinationPFN: "/store/a-copy.txt"}}
	t2 := fileopsd.Task{ID: 2, Kind: fileopsd.KindTransfer, Link: link, Transfer: &fileopsd.TransferParams{SourcePFN: "/store/b.txt", DestinationPFN: "/store/b-copy.txt"}}
	store.Seed(t1)
	store.Seed(t2)

	sched.runCycle(context.Background())

	require.Len(t, sched.Pools(), 1)

	waitUntil(t, time.Second, func() bool {
		s1, _ := store.StatusOf(fileopsd.KindTransfer, 1)
		s2, _ := store.StatusOf(fileopsd.KindTransfer, 2)
		return s1 == fileopsd.StatusDone && s2 == fileopsd.StatusDone
	})
}

func TestScheduler_RecyclesIdlePools(t *testing.T) {
	store := database.NewFakeStore()
	client := gateway.NewFakeNativeClient()
	client.Files["/store/a.txt"] = []byte("data")
	gw := gateway.New(client, true, "", 0)
	regs := registry.NewSet()
	defer regs.Stop()

	sched := New(store, gw, regs, 2)

	link := fileopsd.LinkKey{Kind: fileopsd.KindDeletion, Site: "site-a"}
	task := fileopsd.Task{ID: 1, Kind: fileopsd.KindDeletion, Link: link, Deletion: &fileopsd.DeletionParams{TargetPFN: "/store/a.txt"}}
	store.Seed(task)

	sched.runCycle(context.Background())
	require.Len(t, sched.Pools(), 1)

	waitUntil(t, time.Second, func() bool {
		s, _ := store.StatusOf(fileopsd.KindDeletion, 1)
		return s == fileopsd.StatusDone
	})

	sched.recycleIdlePools()
	require.Empty(t, sched.Pools())
}
