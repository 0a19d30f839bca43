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

// Package backend defines the contract a worker launcher implements, per
// spec.md §4.6: fire-and-forget task submission, with no completion
// signal back to the driver — the driver learns of completion only by
// polling the blob store.
package backend

import (
	"context"

	"github.com/gravitational/kubeface/internal/naming"
)

// Backend launches workers. It never waits for a worker to finish and
// never reports success or failure; the caller (internal/job) discovers
// completion by listing result blobs.
type Backend interface {
	// SubmitTask launches a worker that will read inputBlobName,
	// execute the task named taskName, and write its result blob at the
	// name produced by filling in resultTemplate.
	SubmitTask(ctx context.Context, taskName, inputBlobName string, resultTemplate naming.ResultBlobTemplate) error
	// SupportsStorage reports whether this backend can read/write blobs
	// named under storagePrefix — e.g. a cluster-pod backend rejects a
	// local filesystem root it cannot mount.
	SupportsStorage(storagePrefix string) bool
	// String names the backend for status pages and logs.
	String() string
}
