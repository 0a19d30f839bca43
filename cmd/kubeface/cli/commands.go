/*
Copyright 2018 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cli

import "gopkg.in/alecthomas/kingpin.v2"

// Application represents the command-line "kubeface" application and
// contains definitions of all its flags, arguments and subcommands.
type Application struct {
	*kingpin.Application

	// Debug enables verbose (debug-level) logging.
	Debug *bool

	// Storage is the blob store location, shared by every subcommand:
	// a local directory path or a gs://bucket/prefix URL.
	Storage *string
	// Backend selects the worker launcher: local-process,
	// local-container or cluster-pod.
	Backend *string
	// CacheKeyPrefix seeds the cache key; left empty, the kubeface
	// Client built from these flags generates a fresh one.
	CacheKeyPrefix *string
	// MaxSimultaneousTasks caps outstanding, unfinished tasks.
	MaxSimultaneousTasks *int
	// PollSeconds is the delay between dispatcher poll iterations.
	PollSeconds *float64
	// NeverCleanup disables end-of-job blob and status-page cleanup.
	NeverCleanup *bool
	// WaitToRaiseTaskException defers a task exception until Results
	// reaches it instead of aborting Wait immediately.
	WaitToRaiseTaskException *bool
	// SpeculationPercent, SpeculationRuntimePercentile and
	// SpeculationMaxReruns tune speculative re-execution.
	SpeculationPercent           *float64
	SpeculationRuntimePercentile *float64
	SpeculationMaxReruns         *int

	// WorkerImage, WorkerBinaryPath and WorkerExtraArgs configure the
	// non-local backends.
	WorkerImage      *string
	WorkerBinaryPath *string
	WorkerExtraArgs  *[]string

	// LocalContainerHostStorageDir is bind-mounted into local-container
	// workers.
	LocalContainerHostStorageDir *string
	// ClusterPodNamespace selects the namespace cluster-pod Jobs run in.
	ClusterPodNamespace *string

	MapCmd     MapCmd
	JobInfoCmd JobInfoCmd
	CopyCmd    CopyCmd
	RunTaskCmd RunTaskCmd
}

// MapCmd drives Client.Map against a registered task function, printing
// each result value as a JSON line.
type MapCmd struct {
	*kingpin.CmdClause
	// FuncName names a task function already registered via
	// task.Register in the calling binary.
	FuncName *string
	// ItemsFile is a newline-delimited JSON file of input items; "-"
	// reads stdin.
	ItemsFile *string
	// ItemsPerTask is the chunk size used to group items into tasks.
	ItemsPerTask *int
}

// JobInfoCmd prints the JSON status page of one job from Storage,
// trying the active page first and then the done page. It reads the
// page from the store, not from an in-process Client's bookkeeping.
type JobInfoCmd struct {
	*kingpin.CmdClause
	// JobName is the job whose status page is printed.
	JobName *string
}

// CopyCmd copies one blob from Storage to a local file, or the reverse,
// wrapping blobstore.Store.Get/Put directly.
type CopyCmd struct {
	*kingpin.CmdClause
	// Source is "storage:<blob-name>" or a local file path.
	Source *string
	// Dest is "storage:<blob-name>" or a local file path.
	Dest *string
}

// RunTaskCmd is the worker entry point of spec.md §4.9. Every backend
// invokes `kubeface run-task` with these flags, except
// DeleteInputOnSuccess, which no backend passes — see
// internal/backend/workerconfig.Config.Args and
// internal/backend/localprocess.Backend.SubmitTask for the argv every
// backend actually constructs.
type RunTaskCmd struct {
	*kingpin.CmdClause
	// TaskName identifies the task (and, via its cache key, the job).
	TaskName *string
	// InputBlob is the blob name the worker reads the encoded Task from.
	InputBlob *string
	// AttemptNum and QueueTime fill in the worker's result blob template
	// alongside TaskName.
	AttemptNum *int
	QueueTime  *int64
	// DeleteInputOnSuccess removes the input blob after a successful run.
	DeleteInputOnSuccess *bool
}
