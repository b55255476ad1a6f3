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

// Package fileopsd holds the data model shared by every subsystem of the
// file-operations daemon: the task and link types, and the status state
// machine tasks advance through.
package fileopsd

import "time"

// Kind distinguishes the two queues the daemon drains.
type Kind string

const (
	KindTransfer Kind = "transfer"
	KindDeletion Kind = "deletion"
)

// Status is a task's position in the state machine. Transitions only ever
// move forward along New -> Queued -> Active -> {Done, Failed, Cancelled}.
type Status string

const (
	StatusNew       Status = "new"
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// LinkKey is the derived identity a Pool Manager is keyed on: a
// (source, destination) site pair for a transfer, or a bare site for a
// deletion.
type LinkKey struct {
	Kind       Kind
	SourceSite string
	DestSite   string
	Site       string
}

func (l LinkKey) String() string {
	if l.Kind == KindDeletion {
		return "deletion:" + l.Site
	}
	return "transfer:" + l.SourceSite + "->" + l.DestSite
}

// TransferParams is the operation_params payload for a transfer task.
type TransferParams struct {
	SourcePFN      string
	DestinationPFN string
}

// DeletionParams is the operation_params payload for a deletion task.
type DeletionParams struct {
	TargetPFN string
}

// Task is one row of either the transfer_tasks or deletion_tasks table,
// joined against its batch to discover its Link.
type Task struct {
	ID   int64
	Kind Kind
	Link LinkKey

	Transfer *TransferParams
	Deletion *DeletionParams
}

// Outcome is the terminal (or active-transition) state a task is written
// back to the database with.
type Outcome struct {
	Status     Status
	ExitCode   int
	StartTime  time.Time
	FinishTime time.Time
	Message    string
}
