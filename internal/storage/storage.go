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

// Package storage resolves the single --kubeface-storage string every
// process in the system is started with (driver, CLI, and the run-task
// worker binary) into a concrete blobstore.Store, dispatching on prefix
// the way the backend SupportsStorage checks already do (gs:// versus a
// local filesystem path).
package storage

import (
	"context"
	"strings"

	"github.com/gravitational/kubeface/internal/blobstore"
	"github.com/gravitational/kubeface/internal/blobstore/fsstore"
	"github.com/gravitational/kubeface/internal/blobstore/gcsstore"

	gcs "cloud.google.com/go/storage"
	"github.com/gravitational/trace"
)

const gcsPrefix = "gs://"

// Open resolves storagePrefix to a blobstore.Store: a gs://bucket/key
// prefix opens a Google Cloud Storage backend, anything else is treated
// as a local directory path.
func Open(ctx context.Context, storagePrefix string) (blobstore.Store, error) {
	if storagePrefix == "" {
		return nil, trace.BadParameter("missing storage prefix")
	}
	if strings.HasPrefix(storagePrefix, gcsPrefix) {
		bucket, keyPrefix := splitGCS(storagePrefix)
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, trace.Wrap(err, "creating Google Cloud Storage client")
		}
		return gcsstore.New(ctx, client, bucket, keyPrefix)
	}
	return fsstore.New(storagePrefix)
}

// splitGCS splits "gs://bucket/a/b" into bucket="bucket", keyPrefix="a/b/".
func splitGCS(storagePrefix string) (bucket, keyPrefix string) {
	rest := strings.TrimPrefix(storagePrefix, gcsPrefix)
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 && parts[1] != "" {
		keyPrefix = strings.TrimSuffix(parts[1], "/") + "/"
	}
	return bucket, keyPrefix
}
