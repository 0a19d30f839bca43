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

package task

import (
	"bytes"
	"context"
	"encoding/gob"

	"github.com/gravitational/trace"
)

// Task is the immutable unit of work the driver ships to a worker: a
// registered function name plus the batch of items it should be run
// over, per spec.md §3's "Immutable triple (function, positional_args,
// keyword_args)" — here the positional/keyword split collapses into a
// single per-item value, since the registry substitutes for a captured
// closure and per-call keyword arguments are modeled as part of that
// value.
type Task struct {
	// FuncName is the registered entry point this task invokes.
	FuncName string
	// Items holds the gob-encoded input values, one per element of the
	// chunk this task was built from (see Client.Map's items_per_task).
	Items [][]byte
}

// New builds a Task over a chunk of items by encoding each with gob. The
// caller is responsible for ensuring any concrete types nested in items
// (other than built-ins) are gob.Register-ed, exactly as the teacher's
// serialization boundaries require for interface-typed payloads.
func New(funcName string, items []interface{}) (*Task, error) {
	encoded := make([][]byte, len(items))
	for i, item := range items {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(&item); err != nil {
			return nil, trace.Wrap(err, "encoding item %d for task %q", i, funcName)
		}
		encoded[i] = buf.Bytes()
	}
	return &Task{FuncName: funcName, Items: encoded}, nil
}

// Encode serializes the task to the bytes written as its input blob.
func Encode(t *Task) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t); err != nil {
		return nil, trace.Wrap(err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a task previously produced by Encode.
func Decode(data []byte) (*Task, error) {
	var t Task
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&t); err != nil {
		return nil, trace.Wrap(err)
	}
	return &t, nil
}

// Item decodes the i'th item of the task into an interface{} value.
func (t *Task) Item(i int) (interface{}, error) {
	var item interface{}
	if err := gob.NewDecoder(bytes.NewReader(t.Items[i])).Decode(&item); err != nil {
		return nil, trace.Wrap(err, "decoding item %d of task %q", i, t.FuncName)
	}
	return item, nil
}

// Run executes the task: it resolves FuncName from the registry and
// calls it once per item, collecting results in order. It stops at the
// first error, matching spec.md §4.9's "catches any thrown error"
// worker contract — one task produces one result envelope, successful or
// not, not a partial list of per-item outcomes.
func Run(ctx context.Context, t *Task) ([]interface{}, error) {
	fn, err := Lookup(t.FuncName)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	results := make([]interface{}, len(t.Items))
	for i := range t.Items {
		item, err := t.Item(i)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		out, err := fn(ctx, item)
		if err != nil {
			return nil, trace.Wrap(err, "item %d", i)
		}
		results[i] = out
	}
	return results, nil
}
