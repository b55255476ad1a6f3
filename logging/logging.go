/***************************************************************
 *
 * Copyright (C) 2025, Pelican Project, Morgridge Institute for Research
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

// Package logging sets up the daemon's structured logging: a buffered
// startup phase (so that configuration errors discovered before the
// logging destination is known are not lost), followed by a flush to
// either stderr or a rotating log file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-kit/log/term"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dynamo-ddm/fileopsd/config"
)

// BufferedLogHook buffers log entries emitted before the log destination
// (stderr or a file under logging.path) is known.
type BufferedLogHook struct {
	mu      sync.Mutex
	entries []*log.Entry
	flushed atomic.Bool
}

var (
	bufferedHook atomic.Pointer[BufferedLogHook]
	flushOnce    sync.Once

	logFMu     sync.Mutex
	logFHandle *os.File
	logFPath   string
)

func NewBufferedLogHook() *BufferedLogHook {
	return &BufferedLogHook{entries: make([]*log.Entry, 0)}
}

func (hook *BufferedLogHook) Fire(entry *log.Entry) error {
	if hook.flushed.Load() {
		return nil
	}
	hook.mu.Lock()
	defer hook.mu.Unlock()
	hook.entries = append(hook.entries, entry)
	return nil
}

func (hook *BufferedLogHook) Levels() []log.Level {
	return log.AllLevels
}

func removeBufferedHook() {
	log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
}

// SetupLogBuffering writes every entry to stderr and also buffers it until
// Flush is called, once the configuration has been loaded; Flush then
// replays the buffer to the resolved destination.
func SetupLogBuffering() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableColors: true})

	hook := NewBufferedLogHook()
	if bufferedHook.CompareAndSwap(nil, hook) {
		log.AddHook(hook)
	}
}

// Flush applies the resolved logging.level and logging.path configuration,
// writes out anything buffered during startup, and switches to direct
// logging from that point on.
func Flush(cfg config.LoggingConfig) error {
	var outerErr error
	flushOnce.Do(func() {
		level, err := log.ParseLevel(cfg.Level)
		if err != nil {
			level = log.InfoLevel
		}
		log.SetLevel(level)

		hook := bufferedHook.Load()

		if cfg.Path != "" {
			if err := openLogFile(cfg.Path); err != nil {
				outerErr = err
				return
			}
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableColors: true, DisableLevelTruncation: true})
		} else {
			log.SetOutput(os.Stderr)
			log.SetFormatter(&log.TextFormatter{
				FullTimestamp:          true,
				ForceColors:            term.IsTerminal(log.StandardLogger().Out),
				DisableLevelTruncation: true,
			})
		}

		if hook != nil {
			hook.flushed.Store(true)
			hook.mu.Lock()
			for _, entry := range hook.entries {
				if formatted, err := entry.String(); err == nil {
					_, _ = log.StandardLogger().Out.Write([]byte(formatted))
				}
			}
			hook.entries = nil
			hook.mu.Unlock()
			removeBufferedHook()
		}
	})
	return outerErr
}

func openLogFile(path string) error {
	logFMu.Lock()
	defer logFMu.Unlock()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return errors.Wrapf(err, "failed to create logging.path directory %s", dir)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
	if err != nil {
		return errors.Wrapf(err, "failed to open log file %s", path)
	}
	if logFHandle != nil {
		_ = logFHandle.Close()
	}
	logFHandle = f
	logFPath = path
	log.SetOutput(f)
	fmt.Fprintf(os.Stderr, "logging.path is set to %s; redirecting logs to file\n", path)
	return nil
}

// Reopen closes and reopens the current log file. Called on SIGHUP so that
// external log rotation (logrotate copytruncate, or a rename-and-recreate)
// is picked up without a daemon restart. A no-op when logging to stderr.
func Reopen() error {
	logFMu.Lock()
	path := logFPath
	logFMu.Unlock()
	if path == "" {
		return nil
	}
	return openLogFile(path)
}

// Close releases the log file handle; used by tests to allow cleanup.
func Close() {
	logFMu.Lock()
	defer logFMu.Unlock()
	if logFHandle != nil {
		_ = logFHandle.Close()
		logFHandle = nil
	}
}

// ResetForTesting resets the one-shot flush state.
func ResetForTesting() {
	flushOnce = sync.Once{}
	bufferedHook.Store(nil)
	logFPath = ""
}
