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

// Package broadcast shards a large collection across several
// internal/remoteobject handles so that a task closure capturing one
// shard only pulls that shard's bytes out of the blob store, instead of
// every task reading the whole collection to use a fraction of it.
// Grounded on original_source/kubeface/broadcast.py and
// broadcast_example.py/remote_object_example.py, reworked as a thin
// helper over internal/remoteobject rather than a second write-once
// type, since the two share the identical wire contract.
package broadcast

import (
	"encoding/gob"

	"github.com/gravitational/kubeface/internal/remoteobject"

	"github.com/gravitational/trace"
)

func init() {
	// Each shard is carried as a []interface{} inside a RemoteObject's
	// interface{}-typed value, so gob needs the slice type registered
	// to transmit it as an interface — the individual elements remain
	// the caller's responsibility, per internal/task.New's contract.
	gob.Register([]interface{}(nil))
}

// Shard splits values into at most shards roughly-equal contiguous
// groups and wraps each group in its own remoteobject.RemoteObject, so
// a task that only needs one shard never pays to deserialize the rest
// of the collection. shards <= 0 or shards > len(values) is clamped to
// len(values) (one value per shard, the degenerate case of an
// unsharded broadcast per original_source/kubeface/broadcast.py).
func Shard(cacheKeyPrefix, nodeID string, values []interface{}, shards int) ([]*remoteobject.RemoteObject, error) {
	if len(values) == 0 {
		return nil, trace.BadParameter("broadcast: no values given")
	}
	if shards <= 0 || shards > len(values) {
		shards = len(values)
	}

	base := len(values) / shards
	extra := len(values) % shards

	objects := make([]*remoteobject.RemoteObject, 0, shards)
	start := 0
	for i := 0; i < shards; i++ {
		size := base
		if i < extra {
			size++
		}
		shard := append([]interface{}(nil), values[start:start+size]...)
		objects = append(objects, remoteobject.New(cacheKeyPrefix, nodeID, shard))
		start += size
	}
	return objects, nil
}
