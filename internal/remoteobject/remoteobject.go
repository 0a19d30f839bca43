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

// Package remoteobject implements the write-once, read-lazy handle
// described in spec.md §4.4: a large value captured by a closure is
// written to the blob store exactly once, and every task that captures
// the handle reads it back lazily, instead of each task's serialized
// input carrying its own copy.
package remoteobject

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/gravitational/kubeface/internal/blobstore"

	"github.com/gravitational/trace"
)

// store is the blob store remote objects read and write through. gob's
// GobEncoder/GobDecoder hooks take no side parameters, so — grounded on
// the teacher's lib/blob/client package-level client wiring used by
// call sites that cannot thread a handle through every call — the
// driver and the worker each call SetStore once at startup before any
// task touches a RemoteObject.
var (
	storeMu sync.RWMutex
	store   blobstore.Store
)

// SetStore installs the blob store used to persist and load remote
// object values. Must be called once before any RemoteObject is
// serialized or dereferenced.
func SetStore(s blobstore.Store) {
	storeMu.Lock()
	defer storeMu.Unlock()
	store = s
}

func currentStore() (blobstore.Store, error) {
	storeMu.RLock()
	defer storeMu.RUnlock()
	if store == nil {
		return nil, trace.BadParameter("remoteobject: SetStore was never called")
	}
	return store, nil
}

// counter is the per-driver monotone suffix combined with a node
// identifier to keep remote-object blob paths from colliding, per
// spec.md §4.4's failure-mode note.
var counter struct {
	mu sync.Mutex
	n  int
}

func nextCounter() int {
	counter.mu.Lock()
	defer counter.mu.Unlock()
	counter.n++
	return counter.n
}

// RemoteObject is the ownership-transfer handle created in the driver
// and captured (by reference to the handle, not the value) in tasks.
type RemoteObject struct {
	mu sync.Mutex

	filePath string
	value    interface{}
	written  bool
	loaded   bool
}

// New allocates a fresh blob path for value, derived from cacheKeyPrefix,
// nodeID and a monotone counter, and returns a handle that owns it. The
// blob is not written until the handle is first serialized.
func New(cacheKeyPrefix, nodeID string, value interface{}) *RemoteObject {
	path := fmt.Sprintf("remote-object::%s::%s::%d", cacheKeyPrefix, nodeID, nextCounter())
	return &RemoteObject{filePath: path, value: value, written: false, loaded: true}
}

// FilePath returns the blob name this handle is bound to.
func (r *RemoteObject) FilePath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filePath
}

// Loaded reports whether the in-process value has been populated, either
// because this handle was created with one or because Value has already
// read it back from the blob store.
func (r *RemoteObject) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// Value returns the wrapped value, reading it from the blob store on
// first access if this handle was deserialized rather than created
// in-process.
func (r *RemoteObject) Value(ctx context.Context) (interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return r.value, nil
	}
	s, err := currentStore()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	reader, err := s.Get(ctx, r.filePath)
	if err != nil {
		return nil, trace.Wrap(err, "remote object %q", r.filePath)
	}
	defer reader.Close()
	var value interface{}
	if err := gob.NewDecoder(reader).Decode(&value); err != nil {
		return nil, trace.Wrap(err, "decoding remote object %q", r.filePath)
	}
	r.value = value
	r.loaded = true
	return r.value, nil
}

// ensureWritten writes value to the blob store exactly once. The blob at
// filePath, once it exists, is immutable for the life of the handle —
// callers never rewrite it.
func (r *RemoteObject) ensureWritten(ctx context.Context) error {
	if r.written {
		return nil
	}
	s, err := currentStore()
	if err != nil {
		return trace.Wrap(err)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&r.value); err != nil {
		return trace.Wrap(err, "encoding remote object %q", r.filePath)
	}
	if err := s.Put(ctx, r.filePath, &buf, ""); err != nil {
		return trace.Wrap(err, "writing remote object %q", r.filePath)
	}
	r.written = true
	return nil
}

// GobEncode implements gob.GobEncoder: the first time a handle is
// serialized for inclusion in a task, it writes its value to the blob
// store and is encoded as just its file path, per spec.md §4.4.
func (r *RemoteObject) GobEncode() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureWritten(context.Background()); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r.filePath); err != nil {
		return nil, trace.Wrap(err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder: on the worker side a handle
// decodes to (file_path, value=nil, written=true, loaded=false).
func (r *RemoteObject) GobDecode(data []byte) error {
	var path string
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&path); err != nil {
		return trace.Wrap(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filePath = path
	r.value = nil
	r.written = true
	r.loaded = false
	return nil
}
