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

package main

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dynamo-ddm/fileopsd/config"
	"github.com/dynamo-ddm/fileopsd/launchers"
	"github.com/dynamo-ddm/fileopsd/logging"
	"github.com/dynamo-ddm/fileopsd/metrics"
)

var (
	cfgFile     string
	dbPath      string
	webDAVURL   string
	webDAVUser  string
	webDAVPass  string
	metricsAddr string

	rootCmd = &cobra.Command{
		Use:   "fileopsd",
		Short: "Drain the transfer and deletion queues against a storage gateway",
		Long: `fileopsd polls a database for transfer and deletion tasks authored by
the file-operations manager, executes them against a storage gateway with
bounded per-link concurrency, and honors out-of-band cancellations.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the file-operations daemon",
		RunE:  runServe,
	}

	configDumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Print the resolved configuration document and exit",
		RunE:  runConfigDump,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect the daemon's configuration",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "/etc/fileopsd/config.json", "path to the JSON configuration document")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "/var/lib/fileopsd/fileopsd.sqlite", "path to the SQLite task database")
	rootCmd.PersistentFlags().StringVar(&webDAVURL, "webdav-url", "", "base URL of the storage gateway's WebDAV endpoint")
	rootCmd.PersistentFlags().StringVar(&webDAVUser, "webdav-user", "", "username for the storage gateway")
	rootCmd.PersistentFlags().StringVar(&webDAVPass, "webdav-password", "", "password for the storage gateway")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9618", "address the Prometheus scrape endpoint listens on")

	configCmd.AddCommand(configDumpCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	logging.SetupLogBuffering()
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.DBPath = dbPath
	return cfg, nil
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logging.Flush(cfg.Logging); err != nil {
		return err
	}

	daemon, err := launchers.LaunchDaemon(cfg, launchers.WebDAVCredentials{
		BaseURL:  webDAVURL,
		Username: webDAVUser,
		Password: webDAVPass,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := daemon.Close(); err != nil {
			log.WithError(err).Error("error closing daemon resources")
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	metricsCtx, cancelMetrics := context.WithCancel(ctx)
	defer cancelMetrics()
	go func() {
		if err := metrics.Serve(metricsCtx, metricsAddr); err != nil {
			log.WithError(err).Error("metrics server exited with an error")
		}
	}()

	// Only now that the database handle and the metrics listener are both
	// open do we give up root: DropPrivileges requires every listening
	// socket and database handle already be open.
	if config.IsRootExecution() {
		user, err := config.ResolveUser(cfg.User)
		if err != nil {
			return err
		}
		if err := config.DropPrivileges(user); err != nil {
			return err
		}
	}

	return daemon.Run(ctx)
}
