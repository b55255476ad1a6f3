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

package database

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/dynamo-ddm/fileopsd"
)

// FakeStore is an in-memory Store, letting the Pool Manager, Scheduler
// Loop, and Supervisor tests construct their own daemon wiring against a
// fake Task Record Store instead of a real database, per the Design Notes.
type FakeStore struct {
	mu    sync.Mutex
	tasks map[fileopsd.Kind]map[int64]*entry
}

type entry struct {
	task    fileopsd.Task
	outcome fileopsd.Outcome
}

// NewFakeStore builds an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{tasks: map[fileopsd.Kind]map[int64]*entry{
		fileopsd.KindTransfer: {},
		fileopsd.KindDeletion: {},
	}}
}

// Seed inserts task in `new` status, as if the FOM had just written it.
func (f *FakeStore) Seed(task fileopsd.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.Kind][task.ID] = &entry{task: task, outcome: fileopsd.Outcome{Status: fileopsd.StatusNew}}
}

// SeedStatus inserts task already in the given status, used to set up
// orphan-recovery scenarios (queued/active rows left over from a crash).
func (f *FakeStore) SeedStatus(task fileopsd.Task, status fileopsd.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.Kind][task.ID] = &entry{task: task, outcome: fileopsd.Outcome{Status: status}}
}

func (f *FakeStore) FetchNew(ctx context.Context, kind fileopsd.Kind) ([]fileopsd.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []fileopsd.Task
	for _, e := range f.tasks[kind] {
		if e.outcome.Status == fileopsd.StatusNew {
			result = append(result, e.task)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		li, lj := result[i].Link.String(), result[j].Link.String()
		if li != lj {
			return li < lj
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (f *FakeStore) SetStatus(ctx context.Context, kind fileopsd.Kind, id int64, outcome fileopsd.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.tasks[kind][id]
	if !ok {
		return errors.Errorf("%s task %d does not exist", kind, id)
	}
	e.outcome = outcome
	return nil
}

func (f *FakeStore) ListQueued(ctx context.Context, kind fileopsd.Kind) (map[int64]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make(map[int64]struct{})
	for id, e := range f.tasks[kind] {
		if e.outcome.Status == fileopsd.StatusQueued {
			result[id] = struct{}{}
		}
	}
	return result, nil
}

func (f *FakeStore) RecoverOrphans(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, byID := range f.tasks {
		for _, e := range byID {
			if e.outcome.Status == fileopsd.StatusQueued || e.outcome.Status == fileopsd.StatusActive {
				e.outcome = fileopsd.Outcome{Status: fileopsd.StatusNew}
				total++
			}
		}
	}
	return total, nil
}

func (f *FakeStore) Close() error { return nil }

// StatusOf returns the current status of a task, for test assertions.
func (f *FakeStore) StatusOf(kind fileopsd.Kind, id int64) (fileopsd.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.tasks[kind][id]
	if !ok {
		return "", false
	}
	return e.outcome.Status, true
}

// OutcomeOf returns the full recorded outcome of a task, for test
// assertions that need the exit code alongside the status.
func (f *FakeStore) OutcomeOf(kind fileopsd.Kind, id int64) (fileopsd.Outcome, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.tasks[kind][id]
	if !ok {
		return fileopsd.Outcome{}, false
	}
	return e.outcome, true
}

var _ Store = (*FakeStore)(nil)
