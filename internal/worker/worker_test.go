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

package worker

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io/ioutil"
	"testing"
	"time"

	"github.com/gravitational/kubeface/internal/blobstore/fsstore"
	"github.com/gravitational/kubeface/internal/naming"
	"github.com/gravitational/kubeface/internal/result"
	"github.com/gravitational/kubeface/internal/task"

	"github.com/stretchr/testify/require"
)

func init() {
	task.Register("worker_test.double", func(_ context.Context, item interface{}) (interface{}, error) {
		n := item.(int)
		return n * 2, nil
	})
	task.Register("worker_test.explode", func(_ context.Context, item interface{}) (interface{}, error) {
		return nil, fmt.Errorf("boom: %v", item)
	})
	task.Register("worker_test.panics", func(_ context.Context, item interface{}) (interface{}, error) {
		panic("unexpected")
	})
}

func putTask(t *testing.T, store *fsstore.Store, taskName string, funcName string, items []interface{}) string {
	tk, err := task.New(funcName, items)
	require.NoError(t, err)
	encoded, err := task.Encode(tk)
	require.NoError(t, err)
	inputBlob, err := naming.MakeInputBlobName(taskName)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), inputBlob, bytes.NewReader(encoded), ""))
	return inputBlob
}

func TestRunWritesValueEnvelope(t *testing.T) {
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	inputBlob := putTask(t, store, "ck::0", "worker_test.double", []interface{}{1, 2, 3})

	tmpl := naming.ResultBlobTemplate{TaskName: "ck::0", AttemptNum: 0, QueueTime: time.Now().Unix()}
	err = Run(context.Background(), Config{Store: store, TaskName: "ck::0", InputBlob: inputBlob, ResultTmpl: tmpl})
	require.NoError(t, err)

	names, err := store.List(context.Background(), naming.ResultPrefixForTaskName("ck::0"))
	require.NoError(t, err)
	require.Len(t, names, 1)

	r, err := store.Get(context.Background(), names[0])
	require.NoError(t, err)
	data, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	r.Close()

	env, err := result.Decode(data)
	require.NoError(t, err)
	require.Equal(t, naming.ResultValue, env.ResultType)

	var values []interface{}
	require.NoError(t, gob.NewDecoder(bytes.NewReader(env.ReturnValue)).Decode(&values))
	require.Equal(t, []int{2, 4, 6}, []int{values[0].(int), values[1].(int), values[2].(int)})
}

func TestRunWritesExceptionEnvelope(t *testing.T) {
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	inputBlob := putTask(t, store, "ck::1", "worker_test.explode", []interface{}{42})

	tmpl := naming.ResultBlobTemplate{TaskName: "ck::1", AttemptNum: 0, QueueTime: time.Now().Unix()}
	err = Run(context.Background(), Config{Store: store, TaskName: "ck::1", InputBlob: inputBlob, ResultTmpl: tmpl})
	require.NoError(t, err)

	names, err := store.List(context.Background(), naming.ResultPrefixForTaskName("ck::1"))
	require.NoError(t, err)
	require.Len(t, names, 1)

	parsed, err := naming.ParseResultBlobName(names[0])
	require.NoError(t, err)
	require.Equal(t, naming.ResultException, parsed.ResultType)

	r, err := store.Get(context.Background(), names[0])
	require.NoError(t, err)
	data, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	r.Close()
	env, err := result.Decode(data)
	require.NoError(t, err)
	require.Contains(t, env.Err.Message, "boom")
}

func TestRunRecoversPanic(t *testing.T) {
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	inputBlob := putTask(t, store, "ck::2", "worker_test.panics", []interface{}{1})

	tmpl := naming.ResultBlobTemplate{TaskName: "ck::2", AttemptNum: 0, QueueTime: time.Now().Unix()}
	err = Run(context.Background(), Config{Store: store, TaskName: "ck::2", InputBlob: inputBlob, ResultTmpl: tmpl})
	require.NoError(t, err)

	names, err := store.List(context.Background(), naming.ResultPrefixForTaskName("ck::2"))
	require.NoError(t, err)
	require.Len(t, names, 1)
	parsed, err := naming.ParseResultBlobName(names[0])
	require.NoError(t, err)
	require.Equal(t, naming.ResultException, parsed.ResultType)
}

func TestRunDeletesInputOnSuccessWhenConfigured(t *testing.T) {
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	inputBlob := putTask(t, store, "ck::3", "worker_test.double", []interface{}{1})

	tmpl := naming.ResultBlobTemplate{TaskName: "ck::3", AttemptNum: 0, QueueTime: time.Now().Unix()}
	err = Run(context.Background(), Config{
		Store: store, TaskName: "ck::3", InputBlob: inputBlob, ResultTmpl: tmpl,
		DeleteInputOnSuccess: true,
	})
	require.NoError(t, err)

	_, err = store.Get(context.Background(), inputBlob)
	require.Error(t, err)
}
