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

// Package metrics exposes the daemon's Prometheus instrumentation, the way
// the teacher's own metrics package declares its gauges and counters with
// promauto at package scope.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TasksDispatched counts tasks handed from the Scheduler Loop to a Pool
// Manager, labeled by kind.
var TasksDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fileopsd_tasks_dispatched_total",
	Help: "Total number of tasks dispatched to a Pool Manager, by kind.",
}, []string{"kind"})

// TasksCompleted counts tasks that reached a terminal status, labeled by
// kind and the terminal status itself.
var TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fileopsd_tasks_completed_total",
	Help: "Total number of tasks that reached a terminal status, by kind and status.",
}, []string{"kind", "status"})

// ActivePools reports how many Pool Managers are currently live, labeled by
// kind.
var ActivePools = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "fileopsd_active_pools",
	Help: "Number of live Pool Managers, by kind.",
}, []string{"kind"})

// OrphansRecovered counts rows reset from queued/active back to new by the
// Signal & Shutdown Supervisor's startup and shutdown orphan recovery.
var OrphansRecovered = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fileopsd_orphans_recovered_total",
	Help: "Total number of task rows reset to new by startup or shutdown orphan recovery.",
})
