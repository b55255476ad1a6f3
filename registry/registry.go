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

// Package registry is the Cancellation Registry: a mutex-guarded set of
// task ids that is a member iff the corresponding database row is in
// `queued` status. Workers consult it immediately before starting a task
// so an out-of-band FOM cancellation can still take effect after the row
// has been fetched but before work begins.
package registry

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/dynamo-ddm/fileopsd"
)

// visibilityTTL bounds how long a queued task id is kept in the
// non-load-bearing visibility index below; it exists purely for
// introspection (how long has this task been sitting queued) and is never
// consulted to decide whether a task is cancellable.
const visibilityTTL = 30 * time.Minute

// Registry tracks queued task ids for a single kind (transfer or deletion).
// The Scheduler Loop rebuilds it from the database every cycle via Replace;
// Pool Manager workers call Remove immediately before executing a task.
type Registry struct {
	mu  sync.Mutex
	ids map[int64]struct{}

	// visibility is a secondary, TTL-bounded index of the same ids, kept
	// only so operators/tests can ask "when was this queued" without
	// affecting cancellation semantics.
	visibility *ttlcache.Cache[int64, time.Time]
}

// New constructs an empty Registry for one kind.
func New() *Registry {
	v := ttlcache.New[int64, time.Time](ttlcache.WithTTL[int64, time.Time](visibilityTTL))
	go v.Start()
	return &Registry{
		ids:        make(map[int64]struct{}),
		visibility: v,
	}
}

// Replace atomically swaps the registry's contents for ids, the set
// returned by Store.ListQueued at the start of a scheduler cycle.
func (r *Registry) Replace(ids map[int64]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.ids {
		if _, kept := ids[id]; !kept {
			r.visibility.Delete(id)
		}
	}
	r.ids = ids
	for id := range ids {
		if !r.visibility.Has(id) {
			r.visibility.Set(id, time.Now(), ttlcache.DefaultTTL)
		}
	}
}

// Add marks id as queued. Called by the Pool Manager in the same
// transition that writes the `queued` status to the database.
func (r *Registry) Add(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[id] = struct{}{}
	r.visibility.Set(id, time.Now(), ttlcache.DefaultTTL)
}

// Remove drops id from the registry and reports whether it was present.
// A worker that finds false here has been cancelled out from under it and
// must not execute the task.
func (r *Registry) Remove(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, present := r.ids[id]
	delete(r.ids, id)
	r.visibility.Delete(id)
	return present
}

// Contains reports whether id is currently queued.
func (r *Registry) Contains(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, present := r.ids[id]
	return present
}

// Len reports how many task ids are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// OldestQueued returns how long the oldest still-queued task (as of the
// last Replace/Add) has been waiting, purely for operational visibility.
func (r *Registry) OldestQueued() (time.Duration, bool) {
	var oldest time.Time
	found := false
	for _, item := range r.visibility.Items() {
		ts := item.Value()
		if !found || ts.Before(oldest) {
			oldest = ts
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return time.Since(oldest), true
}

// Stop tears down the visibility index's background eviction goroutine.
func (r *Registry) Stop() {
	r.visibility.Stop()
}

// Set is a convenience registry-of-registries keyed by kind, giving the
// Scheduler Loop and Pool Manager a single handle to pass around instead of
// two globals.
type Set struct {
	registries map[fileopsd.Kind]*Registry
}

// NewSet builds a Set with one Registry per kind the daemon drains.
func NewSet() *Set {
	return &Set{registries: map[fileopsd.Kind]*Registry{
		fileopsd.KindTransfer: New(),
		fileopsd.KindDeletion: New(),
	}}
}

// For returns the Registry for kind.
func (s *Set) For(kind fileopsd.Kind) *Registry {
	return s.registries[kind]
}

// Stop tears down every registry's visibility index.
func (s *Set) Stop() {
	for _, r := range s.registries {
		r.Stop()
	}
}
