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

// Package database is the Task Record Store: a typed access layer over the
// transfer_tasks/deletion_tasks tables and their batch-join views.
package database

import (
	"context"
	"time"

	"github.com/dynamo-ddm/fileopsd"
)

// Store is the Task Record Store contract. It is implemented by SQLiteStore
// in production and by a fake in tests, per the teacher's Design Notes
// ("construct their own Daemon against a fake Task Record Store").
type Store interface {
	// FetchNew returns all `new` tasks of the given kind, ordered so that
	// rows sharing a link are contiguous and ascending by task id within
	// a link.
	FetchNew(ctx context.Context, kind fileopsd.Kind) ([]fileopsd.Task, error)

	// SetStatus performs a single-row atomic update of a task's status and,
	// for terminal/active transitions, its exit code and timestamps.
	SetStatus(ctx context.Context, kind fileopsd.Kind, id int64, outcome fileopsd.Outcome) error

	// ListQueued returns the set of task ids currently in `queued` status.
	ListQueued(ctx context.Context, kind fileopsd.Kind) (map[int64]struct{}, error)

	// RecoverOrphans resets every row in `queued` or `active`, across both
	// kinds, back to `new`. Returns the number of rows touched.
	RecoverOrphans(ctx context.Context) (int64, error)

	Close() error
}

func unixOrZero(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
