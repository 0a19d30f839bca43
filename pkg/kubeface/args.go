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

package kubeface

// Args is the flag-library-agnostic shape of the `--kubeface-*` CLI
// surface (spec.md §6). cmd/kubeface binds these fields to kingpin
// flags; FromArgs turns them into a Client the same way the teacher's
// tool/gravity/cli builds a *localenv.LocalEnvironment from parsed
// flags before handing it to a command function.
type Args struct {
	// Storage is the blob store location: a local directory path or a
	// gs://bucket/prefix URL. Required (directly, or via KUBEFACE_STORAGE).
	Storage string
	// Backend selects which of "local-process", "local-container" or
	// "cluster-pod" submits tasks.
	Backend string
	// CacheKeyPrefix seeds the cache key; left empty, a fresh one is
	// generated per spec.md §3.
	CacheKeyPrefix string

	MaxSimultaneousTasks         int
	PollSeconds                  float64
	NeverCleanup                 bool
	WaitToRaiseTaskException     bool
	SpeculationPercent           float64
	SpeculationRuntimePercentile float64
	SpeculationMaxReruns         int

	// WorkerImage, WorkerBinaryPath and WorkerExtraArgs configure the
	// non-local backends (local-container, cluster-pod); see
	// internal/backend/workerconfig.
	WorkerImage      string
	WorkerBinaryPath string
	WorkerExtraArgs  []string

	// LocalContainerHostStorageDir is bind-mounted into local-container
	// workers when Storage is a local path, so the container can reach
	// the same blobs the driver wrote.
	LocalContainerHostStorageDir string

	// ClusterPodNamespace selects the Kubernetes namespace cluster-pod
	// Jobs are created in.
	ClusterPodNamespace string
}
