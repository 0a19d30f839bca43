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

import "github.com/gravitational/trace"

// Source is a pull-based, possibly-infinite sequence of tasks, per
// spec.md §9's "lazy task iterable": the submission loop must be able to
// consume it under admission control without ever materializing the
// full list.
type Source interface {
	// Next returns the next task, or ok=false if the source is
	// exhausted.
	Next() (t *Task, ok bool, err error)
}

// ChunkSource partitions a slice of items into fixed-size groups and
// wraps each group in a Task calling funcName, grounded on spec.md
// §4.8's Client.map(items_per_task=1) contract.
type ChunkSource struct {
	funcName     string
	items        []interface{}
	itemsPerTask int
	nextIndex    int
}

// NewChunkSource builds a Source over items, itemsPerTask elements per
// task.
func NewChunkSource(funcName string, items []interface{}, itemsPerTask int) (*ChunkSource, error) {
	if itemsPerTask <= 0 {
		return nil, trace.BadParameter("items_per_task must be positive, got %d", itemsPerTask)
	}
	return &ChunkSource{funcName: funcName, items: items, itemsPerTask: itemsPerTask}, nil
}

// NumTasks reports how many tasks this source will yield in total,
// ⌈len(items)/itemsPerTask⌉ per spec.md §8 invariant 4.
func (c *ChunkSource) NumTasks() int {
	if len(c.items) == 0 {
		return 0
	}
	return (len(c.items) + c.itemsPerTask - 1) / c.itemsPerTask
}

// Next implements Source.
func (c *ChunkSource) Next() (*Task, bool, error) {
	if c.nextIndex >= len(c.items) {
		return nil, false, nil
	}
	end := c.nextIndex + c.itemsPerTask
	if end > len(c.items) {
		end = len(c.items)
	}
	chunk := c.items[c.nextIndex:end]
	c.nextIndex = end
	t, err := New(c.funcName, chunk)
	if err != nil {
		return nil, false, trace.Wrap(err)
	}
	return t, true, nil
}

// SliceFunc adapts Source to a plain callback-based pull function that
// does not expose task.Source's concrete chunking strategy.
type SliceFunc func() (*Task, bool, error)

// AsFunc adapts a Source to a SliceFunc.
func AsFunc(s Source) SliceFunc {
	return s.Next
}
