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

// Package supervisor is the Signal & Shutdown Supervisor: it turns OS
// signals into cooperative context cancellation, runs orphan recovery on
// startup, and waits for in-flight Pool Manager workers to drain before
// the process exits.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dynamo-ddm/fileopsd/daemon"
	"github.com/dynamo-ddm/fileopsd/database"
	"github.com/dynamo-ddm/fileopsd/logging"
	"github.com/dynamo-ddm/fileopsd/metrics"
	"github.com/dynamo-ddm/fileopsd/scheduler"
)

// drainTimeout bounds how long the supervisor waits for in-flight Pool
// Manager workers to finish during a graceful shutdown before giving up and
// exiting anyway.
const drainTimeout = 5 * time.Minute

// Supervisor owns the daemon's top-level lifecycle: startup orphan
// recovery, signal handling, and graceful shutdown.
type Supervisor struct {
	store database.Store
	sched *scheduler.Loop
}

// New constructs a Supervisor around the Task Record Store (for orphan
// recovery) and Scheduler Loop (for its live Pool Managers).
func New(store database.Store, sched *scheduler.Loop) *Supervisor {
	return &Supervisor{store: store, sched: sched}
}

// Run performs startup orphan recovery, launches the Scheduler Loop, and
// blocks until a terminating signal arrives or parentCtx is cancelled,
// then drains in-flight work before returning.
func (s *Supervisor) Run(parentCtx context.Context) error {
	n, err := s.store.RecoverOrphans(parentCtx)
	if err != nil {
		log.WithError(err).Error("failed to recover orphaned tasks on startup")
	} else if n > 0 {
		log.Infof("recovered %d orphaned task(s) left over from a previous run", n)
		metrics.OrphansRecovered.Add(float64(n))
	}

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	go s.sched.Run(ctx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		if sig == syscall.SIGHUP {
			log.Warn("received SIGHUP; restarting")
			daemon.SetExpectedRestart(true)
			if err := logging.Reopen(); err != nil {
				log.WithError(err).Error("failed to reopen log file on SIGHUP")
			}
		} else {
			log.Warnf("received signal %v; shutting down", sig)
		}
	case <-parentCtx.Done():
		log.Debug("parent context cancelled; shutting down")
	}

	cancel()
	return s.drain()
}

// drain waits for every currently live Pool Manager to finish its
// in-flight workers, logging whether the shutdown completed cleanly or was
// cut short by drainTimeout.
func (s *Supervisor) drain() error {
	deadline := time.Now().Add(drainTimeout)
	drainCtx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	for _, m := range s.sched.Pools() {
		m.Drain()
		if err := m.Wait(drainCtx); err != nil {
			log.WithError(err).Warnf("link %s did not drain before the shutdown deadline", m.Link())
		}
	}

	// Data Model Invariant 3: on clean exit, every row left in queued or
	// active (anything that missed the drain deadline, or was created in a
	// pool after the Pools() snapshot above) is reset to new, exactly as
	// at startup.
	n, err := s.store.RecoverOrphans(context.Background())
	if err != nil {
		log.WithError(err).Error("failed to recover orphaned tasks on shutdown")
	} else if n > 0 {
		log.Infof("recovered %d orphaned task(s) on shutdown", n)
		metrics.OrphansRecovered.Add(float64(n))
	}

	if daemon.IsExpectedRestart() {
		log.Info("shutdown complete; restart was expected")
	} else {
		log.Info("shutdown complete")
	}
	return nil
}
