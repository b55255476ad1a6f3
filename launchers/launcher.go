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

// Package launchers wires the daemon's subsystems together and starts
// them, the way the teacher's own launchers package assembles servers from
// their constituent pieces in LaunchModules.
package launchers

import (
	"context"

	"github.com/grafana/regexp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dynamo-ddm/fileopsd/config"
	"github.com/dynamo-ddm/fileopsd/database"
	"github.com/dynamo-ddm/fileopsd/gateway"
	"github.com/dynamo-ddm/fileopsd/registry"
	"github.com/dynamo-ddm/fileopsd/scheduler"
	"github.com/dynamo-ddm/fileopsd/supervisor"
)

// portBindRetryFilterName identifies the log filter registered below so it
// can be individually removed (e.g. by an operator command) without
// disturbing any other filters.
const portBindRetryFilterName = "port-bind-retry-chatter"

// Daemon holds every subsystem's constructed dependencies so they can be
// passed explicitly rather than reached through package-level globals.
type Daemon struct {
	Config     *config.Config
	Store      database.Store
	Gateway    *gateway.Gateway
	Registries *registry.Set
	Scheduler  *scheduler.Loop
	Supervisor *supervisor.Supervisor
}

// WebDAVCredentials carries the storage gateway's native credential, kept
// out of config.Config because the spec's JSON schema does not name a
// storage endpoint or credential key.
type WebDAVCredentials struct {
	BaseURL  string
	Username string
	Password string
}

// LaunchDaemon opens the Task Record Store, builds the Storage Gateway
// Adapter, and wires the Cancellation Registry, Pool Manager, Scheduler
// Loop, and Signal & Shutdown Supervisor around them.
func LaunchDaemon(cfg *config.Config, creds WebDAVCredentials) (*Daemon, error) {
	config.InitFilterLogging()
	config.AddFilter(&config.RegexpFilter{
		Name:   portBindRetryFilterName,
		Regexp: regexp.MustCompile(`retrying (transfer|delete) after ephemeral port bind failure`),
		Levels: []log.Level{log.DebugLevel},
		Fire: func(entry *log.Entry) error {
			entry.Level = log.DebugLevel
			return nil
		},
	})

	store, err := database.OpenSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open the task record store")
	}

	client := gateway.NewWebDAVClient(creds.BaseURL, creds.Username, creds.Password)
	gw := gateway.New(client, cfg.FileOperations.Daemon.Overwrite, cfg.FileOperations.Daemon.Checksum, cfg.FileOperations.Daemon.TransferTimeout)

	registries := registry.NewSet()
	sched := scheduler.New(store, gw, registries, cfg.FileOperations.Daemon.MaxParallelLinks)

	return &Daemon{
		Config:     cfg,
		Store:      store,
		Gateway:    gw,
		Registries: registries,
		Scheduler:  sched,
		Supervisor: supervisor.New(store, sched),
	}, nil
}

// Run blocks until ctx is cancelled or a terminating signal arrives.
func (d *Daemon) Run(ctx context.Context) error {
	log.Info("file-operations daemon starting")
	return d.Supervisor.Run(ctx)
}

// Close releases the Daemon's held resources.
func (d *Daemon) Close() error {
	d.Registries.Stop()
	return d.Store.Close()
}
