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

// Package task is the Go re-architecture of spec.md §9's "closure
// serialization" problem. Rather than shipping a serialized closure (an
// artifact of an expressive dynamic runtime, per spec.md §9), a Task
// names a function registered ahead of time with Register; the worker
// binary resolves the name from its own copy of the same registry. This
// is option (a) from spec.md §9: a registry of named task entry points
// the worker binary knows about.
package task

import (
	"context"
	"sync"

	"github.com/gravitational/trace"
)

// Func is a registered task entry point: given one decoded input item,
// it returns one result or an error.
type Func func(ctx context.Context, item interface{}) (interface{}, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Func{}
)

// Register associates name with fn so that both the driver process (for
// validation) and the worker binary (to actually run it) can resolve it
// by name. Register is meant to be called from package init functions,
// mirroring the teacher's convention of registering plugins/backends at
// package load time (e.g. lib/ops/opsservice registering handlers).
func Register(name string, fn Func) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic("task: function " + name + " already registered")
	}
	registry[name] = fn
}

// Lookup resolves a registered function by name.
func Lookup(name string) (Func, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	if !ok {
		return nil, trace.NotFound("task: no function registered as %q", name)
	}
	return fn, nil
}
