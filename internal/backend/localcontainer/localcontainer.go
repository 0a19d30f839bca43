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

// Package localcontainer spawns one Docker container per task, bind
// mounting the shared storage directory when the blob store is local.
// Grounded on the teacher's lib/docker/docker.go exec.Command idiom and
// lib/app/hooks container/volume construction conventions.
package localcontainer

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/gravitational/kubeface/internal/backend/workerconfig"
	"github.com/gravitational/kubeface/internal/naming"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// Backend spawns `docker run <image> kubeface run-task ...` per task.
type Backend struct {
	Config workerconfig.Config

	// HostStorageDir, if non-empty, is bind mounted read-write into the
	// container at the same path, for the fsstore backend.
	HostStorageDir string
	// Storage is the --kubeface-storage value passed to the worker.
	Storage string
}

// New returns a localcontainer Backend.
func New(cfg workerconfig.Config, hostStorageDir, storage string) (*Backend, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Backend{Config: cfg, HostStorageDir: hostStorageDir, Storage: storage}, nil
}

// String implements backend.Backend.
func (b *Backend) String() string {
	return "local-container:" + b.Config.Image
}

// SupportsStorage implements backend.Backend: with no HostStorageDir
// every prefix is accepted; otherwise only local storage prefixes under
// HostStorageDir are supported. gs:// object-storage URLs are always
// accepted, as they are reachable from inside the container given
// network access.
func (b *Backend) SupportsStorage(storagePrefix string) bool {
	if b.HostStorageDir == "" || strings.HasPrefix(storagePrefix, "gs://") {
		return true
	}
	return storagePrefix == b.HostStorageDir || len(storagePrefix) >= len(b.HostStorageDir) && storagePrefix[:len(b.HostStorageDir)] == b.HostStorageDir
}

// SubmitTask implements backend.Backend.
func (b *Backend) SubmitTask(ctx context.Context, taskName, inputBlobName string, resultTemplate naming.ResultBlobTemplate) error {
	dockerArgs := []string{"run", "--rm", "-d"}
	if b.HostStorageDir != "" {
		dockerArgs = append(dockerArgs, "-v", b.HostStorageDir+":"+b.HostStorageDir)
	}
	dockerArgs = append(dockerArgs, b.Config.Image, b.Config.BinaryPath)
	dockerArgs = append(dockerArgs, b.Config.Args(b.Storage, taskName, inputBlobName, resultTemplate.AttemptNum, resultTemplate.QueueTime)...)

	cmd := exec.CommandContext(ctx, "docker", dockerArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return trace.Wrap(err, "docker run failed for task %q: %s", taskName, stderr.String())
	}
	log.WithField("task_name", taskName).WithField("container_id", stdout.String()).
		Debug("launched worker container")
	return nil
}
