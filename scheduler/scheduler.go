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

// Package scheduler is the Scheduler Loop: a periodic poll of the Task
// Record Store that groups new work by link, dispatches it to lazily
// created Pool Managers, and sweeps idle pools for recycling.
package scheduler

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dynamo-ddm/fileopsd"
	"github.com/dynamo-ddm/fileopsd/database"
	"github.com/dynamo-ddm/fileopsd/gateway"
	"github.com/dynamo-ddm/fileopsd/metrics"
	"github.com/dynamo-ddm/fileopsd/pool"
	"github.com/dynamo-ddm/fileopsd/registry"
)

// pollInterval is the spec's fixed 30-second cycle; the Design Notes treat
// the unconditional sleep between cycles as intentional rather than a
// tunable, so unlike the teacher's param-driven intervals this one has no
// override.
const pollInterval = 30 * time.Second

// kindOrder drains deletions before transfers every cycle, per the spec.
var kindOrder = []fileopsd.Kind{fileopsd.KindDeletion, fileopsd.KindTransfer}

// Loop is the Scheduler Loop. It owns the map of live Pool Managers, keyed
// by link, and the per-kind Cancellation Registries it keeps fresh.
type Loop struct {
	store       database.Store
	gw          *gateway.Gateway
	registries  *registry.Set
	maxParallel int

	mu    sync.Mutex
	pools map[string]*pool.Manager
}

// New constructs a Scheduler Loop around the given Task Record Store,
// Storage Gateway Adapter, and Cancellation Registry set.
func New(store database.Store, gw *gateway.Gateway, registries *registry.Set, maxParallelLinks int) *Loop {
	return &Loop{
		store:       store,
		gw:          gw,
		registries:  registries,
		maxParallel: maxParallelLinks,
		pools:       make(map[string]*pool.Manager),
	}
}

// Run blocks, running one scheduling cycle every pollInterval, until ctx is
// cancelled. It is intended to be launched in its own goroutine by the
// daemon's startup sequence.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	l.runCycle(ctx)
	for {
		select {
		case <-ticker.C:
			l.runCycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) runCycle(ctx context.Context) {
	for _, kind := range kindOrder {
		l.rebuildRegistry(ctx, kind)
		l.dispatchNew(ctx, kind)
	}
	l.recycleIdlePools()
}

func (l *Loop) rebuildRegistry(ctx context.Context, kind fileopsd.Kind) {
	queued, err := l.store.ListQueued(ctx, kind)
	if err != nil {
		log.WithError(err).Errorf("failed to list queued %s tasks", kind)
		return
	}
	l.registries.For(kind).Replace(queued)
}

func (l *Loop) dispatchNew(ctx context.Context, kind fileopsd.Kind) {
	tasks, err := l.store.FetchNew(ctx, kind)
	if err != nil {
		log.WithError(err).Errorf("failed to fetch new %s tasks", kind)
		return
	}
	if len(tasks) == 0 {
		return
	}
	log.Infof("dispatching %d new %s task(s)", len(tasks), kind)

	for _, task := range tasks {
		manager := l.managerFor(task.Link)
		if err := manager.AddTask(ctx, task); err != nil {
			log.WithError(err).Errorf("failed to dispatch %s task %d on link %s", kind, task.ID, task.Link)
			continue
		}
		metrics.TasksDispatched.WithLabelValues(string(kind)).Inc()
	}
}

func (l *Loop) managerFor(link fileopsd.LinkKey) *pool.Manager {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := link.String()
	if m, ok := l.pools[key]; ok {
		return m
	}
	m := pool.New(link, l.store, l.gw, l.registries.For(link.Kind), l.maxParallel)
	l.pools[key] = m
	metrics.ActivePools.WithLabelValues(string(link.Kind)).Set(float64(l.countByKind(link.Kind)))
	return m
}

func (l *Loop) countByKind(kind fileopsd.Kind) int {
	n := 0
	for _, m := range l.pools {
		if m.Link().Kind == kind {
			n++
		}
	}
	return n
}

func (l *Loop) recycleIdlePools() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, m := range l.pools {
		if m.ReadyForRecycle() {
			delete(l.pools, key)
			metrics.ActivePools.WithLabelValues(string(m.Link().Kind)).Set(float64(l.countByKind(m.Link().Kind)))
		}
	}
}

// Pools returns a snapshot of the currently live Pool Managers, used by the
// Signal & Shutdown Supervisor to wait for in-flight work to finish.
func (l *Loop) Pools() []*pool.Manager {
	l.mu.Lock()
	defer l.mu.Unlock()
	result := make([]*pool.Manager, 0, len(l.pools))
	for _, m := range l.pools {
		result = append(result, m)
	}
	return result
}
