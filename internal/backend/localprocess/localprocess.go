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

// Package localprocess is the simplest backend: it spawns the worker
// binary as a local subprocess, the same binary and filesystem as the
// driver. Grounded on the teacher's exec.Command + captured-output
// idiom (lib/docker/docker.go) for launching helper processes.
package localprocess

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"

	"github.com/gravitational/kubeface/internal/naming"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// Backend spawns `self-path run-task ...` as a detached local process
// per task.
type Backend struct {
	// BinaryPath is the kubeface executable to re-invoke. Defaults to
	// the current process's own executable when empty.
	BinaryPath string
	// Storage is the --kubeface-storage value passed to every worker.
	Storage string
	// ExtraArgs are appended to every run-task invocation.
	ExtraArgs []string
}

// New returns a localprocess Backend.
func New(binaryPath, storage string, extraArgs []string) *Backend {
	return &Backend{BinaryPath: binaryPath, Storage: storage, ExtraArgs: extraArgs}
}

// String implements backend.Backend.
func (b *Backend) String() string {
	return "local-process"
}

// SupportsStorage implements backend.Backend: a local subprocess shares
// the driver's filesystem and can reach any storage the driver can.
func (b *Backend) SupportsStorage(_ string) bool {
	return true
}

// SubmitTask implements backend.Backend. It launches the worker and
// does not wait for it: errors returned are only process-launch
// failures (binary missing, fork failure), never task-level failures —
// those are reported via the result blob, not the process exit code,
// per spec.md §4.6's fire-and-forget contract.
func (b *Backend) SubmitTask(ctx context.Context, taskName, inputBlobName string, resultTemplate naming.ResultBlobTemplate) error {
	args := append([]string{
		"run-task",
		"--kubeface-storage", b.Storage,
		"--task-name", taskName,
		"--input", inputBlobName,
		"--attempt-num", strconv.Itoa(resultTemplate.AttemptNum),
		"--queue-time", strconv.FormatInt(resultTemplate.QueueTime, 10),
	}, b.ExtraArgs...)

	cmd := exec.Command(b.binaryPath(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return trace.Wrap(err, "spawning worker for task %q", taskName)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			log.WithError(err).WithField("task_name", taskName).
				Warn("local worker process exited with error, check its result blob")
			if stderr.Len() > 0 {
				log.WithField("task_name", taskName).Debug(stderr.String())
			}
		}
	}()
	return nil
}

func (b *Backend) binaryPath() string {
	if b.BinaryPath != "" {
		return b.BinaryPath
	}
	self, err := os.Executable()
	if err != nil {
		return "kubeface"
	}
	return self
}
