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

import (
	"github.com/gravitational/kubeface/internal/defaults"

	"gopkg.in/alecthomas/kingpin.v2"
)

// RegisterCommands registers all kubeface flags, arguments and
// subcommands on app.
func RegisterCommands(app *kingpin.Application) *Application {
	g := &Application{Application: app}

	g.Debug = g.Flag("debug", "Enable debug-level logging").Bool()
	g.Storage = g.Flag("kubeface-storage", "Blob store location: a local directory or gs://bucket/prefix").
		Envar(defaults.StorageEnvar).String()
	g.Backend = g.Flag("kubeface-backend", "Worker launcher: local-process, local-container or cluster-pod").
		Default("local-process").String()
	g.CacheKeyPrefix = g.Flag("kubeface-cache-key-prefix", "Cache key prefix; generated when empty").String()
	g.MaxSimultaneousTasks = g.Flag("kubeface-max-simultaneous-tasks", "Admission cap on outstanding tasks").
		Default(itoa(defaults.MaxSimultaneousTasks)).Int()
	g.PollSeconds = g.Flag("kubeface-poll-seconds", "Delay between dispatcher poll iterations").
		Default(ftoa(defaults.PollInterval.Seconds())).Float64()
	g.NeverCleanup = g.Flag("kubeface-never-cleanup", "Never delete job blobs or status pages on completion").Bool()
	g.WaitToRaiseTaskException = g.Flag("kubeface-wait-to-raise-task-exception",
		"Defer a task exception until Results reaches it instead of aborting immediately").Bool()
	g.SpeculationPercent = g.Flag("kubeface-speculation-percent",
		"Fraction (0-100) of outstanding tasks below which speculative re-execution begins").
		Default(ftoa(defaults.SpeculationPercent)).Float64()
	g.SpeculationRuntimePercentile = g.Flag("kubeface-speculation-runtime-percentile",
		"Percentile of observed runtimes used as the speculation threshold").
		Default(ftoa(defaults.SpeculationRuntimePercentile)).Float64()
	g.SpeculationMaxReruns = g.Flag("kubeface-speculation-max-reruns",
		"Cap on additional attempts per task contributed by speculation").
		Default(itoa(defaults.SpeculationMaxReruns)).Int()

	g.WorkerImage = g.Flag("kubeface-worker-image", "Container image for local-container and cluster-pod backends").String()
	g.WorkerBinaryPath = g.Flag("kubeface-worker-binary-path", "Path to the kubeface binary inside the worker environment").String()
	g.WorkerExtraArgs = g.Flag("kubeface-worker-extra-arg", "Extra argument appended to every run-task invocation (repeatable)").Strings()
	g.LocalContainerHostStorageDir = g.Flag("kubeface-local-container-host-storage-dir",
		"Host directory bind-mounted into local-container workers").String()
	g.ClusterPodNamespace = g.Flag("kubeface-cluster-pod-namespace", "Kubernetes namespace cluster-pod Jobs run in").
		Default("default").String()

	g.MapCmd.CmdClause = g.Command("map", "Map a registered task function over a list of items")
	g.MapCmd.FuncName = g.MapCmd.Arg("func-name", "Name the task function was registered under").Required().String()
	g.MapCmd.ItemsFile = g.MapCmd.Flag("items-file", "Newline-delimited JSON file of input items; - reads stdin").
		Default("-").String()
	g.MapCmd.ItemsPerTask = g.MapCmd.Flag("items-per-task", "Number of items grouped into each task").Default("1").Int()

	g.JobInfoCmd.CmdClause = g.Command("job-info", "Print a job's status page")
	g.JobInfoCmd.JobName = g.JobInfoCmd.Arg("job-name", "Job name to look up").Required().String()

	g.CopyCmd.CmdClause = g.Command("copy", "Copy a blob between storage and the local filesystem")
	g.CopyCmd.Source = g.CopyCmd.Arg("source", `"storage:<blob-name>" or a local file path`).Required().String()
	g.CopyCmd.Dest = g.CopyCmd.Arg("dest", `"storage:<blob-name>" or a local file path`).Required().String()

	g.RunTaskCmd.CmdClause = g.Command("run-task", "Worker entry point: run one task and write its result blob")
	g.RunTaskCmd.TaskName = g.RunTaskCmd.Flag("task-name", "Task to run").Required().String()
	g.RunTaskCmd.InputBlob = g.RunTaskCmd.Flag("input", "Input blob name").Required().String()
	g.RunTaskCmd.AttemptNum = g.RunTaskCmd.Flag("attempt-num", "Attempt number of this run").Required().Int()
	g.RunTaskCmd.QueueTime = g.RunTaskCmd.Flag("queue-time", "Unix time the task was submitted").Required().Int64()
	g.RunTaskCmd.DeleteInputOnSuccess = g.RunTaskCmd.Flag("delete-input-on-success", "Delete the input blob once a value result is written").Bool()

	return g
}
