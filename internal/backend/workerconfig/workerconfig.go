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

// Package workerconfig holds the flags shared by every non-local
// backend (local container, cluster pod): what image to run the worker
// binary in, and what extra arguments to pass it. This is the Go
// counterpart of the original Python client's WorkerConfiguration —
// there the worker had to pip-install kubeface itself on first run,
// a concern that does not exist for a statically-linked Go binary, so
// the install-policy/install-command fields have no analogue here.
package workerconfig

import (
	"strconv"

	"github.com/gravitational/trace"
)

// Config is the shared non-local-backend worker configuration.
type Config struct {
	// Image is the container image the worker runs in. The image must
	// already contain the kubeface binary at BinaryPath.
	Image string
	// BinaryPath is the path to the kubeface binary inside the worker
	// environment (container or pod).
	BinaryPath string
	// ExtraArgs are appended verbatim to every `run-task` invocation,
	// e.g. additional --kubeface-* flags the worker needs to reach the
	// same blob store as the driver.
	ExtraArgs []string
}

// DefaultBinaryPath is used when Config.BinaryPath is empty.
const DefaultBinaryPath = "/usr/local/bin/kubeface"

// CheckAndSetDefaults validates c and fills in defaults, mirroring the
// teacher's Params.CheckAndSetDefaults construction-time validation
// idiom (lib/app/hooks/hooks.go).
func (c *Config) CheckAndSetDefaults() error {
	if c.Image == "" {
		return trace.BadParameter("missing parameter Image")
	}
	if c.BinaryPath == "" {
		c.BinaryPath = DefaultBinaryPath
	}
	return nil
}

// Args returns the full argv for a run-task invocation, as plain
// argument tokens — the caller (localcontainer or clusterpod) is
// responsible for embedding them in a container or pod spec rather
// than a shell string, so no quoting step is needed.
func (c *Config) Args(storage, taskName, inputBlobName string, attemptNum int, queueTime int64) []string {
	args := []string{
		"run-task",
		"--kubeface-storage", storage,
		"--task-name", taskName,
		"--input", inputBlobName,
		"--attempt-num", strconv.Itoa(attemptNum),
		"--queue-time", strconv.FormatInt(queueTime, 10),
	}
	return append(args, c.ExtraArgs...)
}
