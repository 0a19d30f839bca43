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

// Package blobstore defines the contract every storage backend (local
// filesystem, object storage) implements: name-addressed blobs with
// get/put/list/delete/move, the only channel the driver and the worker
// communicate through.
package blobstore

import (
	"context"
	"io"
)

// Store is a flat, name-addressed blob namespace. Names are opaque
// strings produced by the naming package; implementations never inspect
// their structure beyond treating "/" as a path separator when backed by
// a filesystem.
type Store interface {
	// Put uploads data under name, overwriting any existing blob.
	Put(ctx context.Context, name string, data io.Reader, mimeType string) error
	// Get streams the blob named name. Returns a NotFound trace error if
	// it does not exist.
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	// List returns every blob name beginning with prefix, in
	// lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes the blob named name. Deleting a name that does not
	// exist is not an error.
	Delete(ctx context.Context, name string) error
	// Move renames src to dst within the store. fsstore renames
	// atomically; gcsstore copies src to dst and then deletes src, so a
	// reader can briefly see both names.
	Move(ctx context.Context, src, dst string) error
	// AccessInfo returns a best-effort human-readable description of
	// where name lives, for inclusion in logs and status pages.
	AccessInfo(name string) string
}
