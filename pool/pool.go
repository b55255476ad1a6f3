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

// Package pool is the Pool Manager: one bounded-concurrency worker pool per
// link (source/destination site pair for a transfer, bare site for a
// deletion), following the Scheduler Loop's lazy-create/drain/recycle
// lifecycle.
package pool

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dynamo-ddm/fileopsd"
	"github.com/dynamo-ddm/fileopsd/database"
	"github.com/dynamo-ddm/fileopsd/gateway"
	"github.com/dynamo-ddm/fileopsd/metrics"
	"github.com/dynamo-ddm/fileopsd/registry"
)

// maxCapturedLogBytes bounds the storage-library log line emitted on a
// successful task; a failure's log is always emitted in full so operators
// have everything the storage library said about the failure.
const maxCapturedLogBytes = 4096

func truncateLog(s string) string {
	if len(s) <= maxCapturedLogBytes {
		return s
	}
	return s[:maxCapturedLogBytes] + "...(truncated)"
}

// State is where a Manager sits in its open/draining/closed lifecycle.
type State int

const (
	StateOpen State = iota
	StateDraining
	StateClosed
)

// Manager is the Pool Manager for a single link. It owns an errgroup of
// worker goroutines bounded by maxParallel, and is lazily created,
// drained, and recycled by the Scheduler Loop.
type Manager struct {
	link        fileopsd.LinkKey
	store       database.Store
	gw          *gateway.Gateway
	reg         *registry.Registry
	maxParallel int

	mu       sync.Mutex
	state    State
	grp      *errgroup.Group
	grpCtx   context.Context
	inFlight int
}

// New constructs a Manager for link, bound to store for status writes, gw
// for the actual storage operation, and reg for last-moment cancellation
// checks. The registry handle is passed in explicitly rather than reached
// through a back-reference to a shared Daemon struct, per the Design
// Notes' preference for explicit wiring over package-level globals.
func New(link fileopsd.LinkKey, store database.Store, gw *gateway.Gateway, reg *registry.Registry, maxParallel int) *Manager {
	return &Manager{
		link:        link,
		store:       store,
		gw:          gw,
		reg:         reg,
		maxParallel: maxParallel,
		state:       StateOpen,
	}
}

// AddTask transitions task from new to queued (writing the status change
// to the database and adding it to the Cancellation Registry under the
// same logical step) and dispatches a worker goroutine to run it, blocking
// only long enough to respect maxParallel via the errgroup's semaphore-like
// SetLimit behavior.
func (m *Manager) AddTask(ctx context.Context, task fileopsd.Task) error {
	m.mu.Lock()
	if m.state != StateOpen {
		m.mu.Unlock()
		return nil
	}
	if m.grp == nil {
		m.grp, m.grpCtx = errgroup.WithContext(ctx)
		m.grp.SetLimit(m.maxParallel)
	}
	grp := m.grp
	grpCtx := m.grpCtx
	m.mu.Unlock()

	queuedOutcome := fileopsd.Outcome{Status: fileopsd.StatusQueued}
	if err := m.store.SetStatus(ctx, task.Kind, task.ID, queuedOutcome); err != nil {
		return err
	}
	m.reg.Add(task.ID)

	m.mu.Lock()
	m.inFlight++
	m.mu.Unlock()

	grp.Go(func() error {
		defer func() {
			m.mu.Lock()
			m.inFlight--
			m.mu.Unlock()
		}()
		m.runTask(grpCtx, task)
		return nil
	})
	return nil
}

// runTask is the worker protocol: it removes the task from the
// Cancellation Registry (the single authoritative point at which "did this
// get cancelled out from under us" is decided), marks it active, invokes
// the gateway, and writes back the terminal outcome.
func (m *Manager) runTask(ctx context.Context, task fileopsd.Task) {
	if !m.reg.Remove(task.ID) {
		if err := m.store.SetStatus(ctx, task.Kind, task.ID, fileopsd.Outcome{
			Status:     fileopsd.StatusCancelled,
			FinishTime: time.Now(),
		}); err != nil {
			log.WithError(err).Errorf("failed to record cancellation of %s task %d", task.Kind, task.ID)
			return
		}
		metrics.TasksCompleted.WithLabelValues(string(task.Kind), string(fileopsd.StatusCancelled)).Inc()
		return
	}

	start := time.Now()
	if err := m.store.SetStatus(ctx, task.Kind, task.ID, fileopsd.Outcome{
		Status:    fileopsd.StatusActive,
		StartTime: start,
	}); err != nil {
		log.WithError(err).Errorf("failed to mark %s task %d active", task.Kind, task.ID)
		return
	}

	var result gateway.Result
	switch task.Kind {
	case fileopsd.KindDeletion:
		result = m.gw.Delete(ctx, *task.Deletion)
	default:
		result = m.gw.Transfer(ctx, *task.Transfer)
	}

	outcome := fileopsd.Outcome{
		ExitCode:   result.ExitCode,
		Message:    result.Message,
		StartTime:  start,
		FinishTime: time.Now(),
	}
	switch result.ExitCode {
	case -1:
		outcome.Status = fileopsd.StatusCancelled
	case 0:
		outcome.Status = fileopsd.StatusDone
	default:
		outcome.Status = fileopsd.StatusFailed
	}

	logEntry := log.WithFields(log.Fields{
		"kind":      task.Kind,
		"task_id":   task.ID,
		"status":    outcome.Status,
		"exit_code": outcome.ExitCode,
	})
	if outcome.Status == fileopsd.StatusFailed {
		logEntry.WithField("storage_log", result.Log).Error("task finished")
	} else {
		logEntry.WithField("storage_log", truncateLog(result.Log)).Info("task finished")
	}

	if err := m.store.SetStatus(ctx, task.Kind, task.ID, outcome); err != nil {
		log.WithError(err).Errorf("failed to record terminal outcome of %s task %d", task.Kind, task.ID)
		return
	}
	metrics.TasksCompleted.WithLabelValues(string(task.Kind), string(outcome.Status)).Inc()
}

// Drain stops the Manager from accepting new tasks; in-flight workers run
// to completion.
func (m *Manager) Drain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateOpen {
		m.state = StateDraining
	}
}

// ReadyForRecycle reports whether the Manager has no in-flight workers and
// can be safely dropped by the Scheduler Loop, closing it in the process.
func (m *Manager) ReadyForRecycle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight > 0 {
		return false
	}
	m.state = StateClosed
	return true
}

// Link reports the link this Manager was constructed for.
func (m *Manager) Link() fileopsd.LinkKey {
	return m.link
}

// State reports the Manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Wait blocks until every dispatched worker has returned or ctx is
// cancelled, used by the Signal & Shutdown Supervisor during a graceful
// stop.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	grp := m.grp
	m.mu.Unlock()
	if grp == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- grp.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
