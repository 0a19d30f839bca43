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

package kubeface

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/gravitational/kubeface/internal/blobstore"
	"github.com/gravitational/kubeface/internal/blobstore/fsstore"
	"github.com/gravitational/kubeface/internal/naming"
	"github.com/gravitational/kubeface/internal/result"
	"github.com/gravitational/kubeface/internal/task"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"
)

func init() {
	task.Register("kubeface_test.double", func(_ context.Context, item interface{}) (interface{}, error) {
		n := item.(int)
		if n < 0 {
			return nil, fmt.Errorf("negative input: %d", n)
		}
		return n * 2, nil
	})
}

// fakeBackend simulates a worker in-process, the same way
// internal/job's tests do, so Client.Map can be exercised without
// spawning a real subprocess or container.
type fakeBackend struct {
	store blobstore.Store
}

func (b *fakeBackend) String() string             { return "fake" }
func (b *fakeBackend) SupportsStorage(string) bool { return true }

func (b *fakeBackend) SubmitTask(ctx context.Context, taskName, inputBlobName string, tmpl naming.ResultBlobTemplate) error {
	go func() {
		r, err := b.store.Get(ctx, inputBlobName)
		if err != nil {
			return
		}
		data, err := ioutil.ReadAll(r)
		r.Close()
		if err != nil {
			return
		}
		t, err := task.Decode(data)
		if err != nil {
			return
		}
		start := time.Now().Unix()
		values, runErr := task.Run(ctx, t)
		end := time.Now().Unix()

		env := &result.Envelope{StartTime: start, EndTime: end, ProcessInfo: "fake-worker"}
		resultType := naming.ResultValue
		if runErr != nil {
			resultType = naming.ResultException
			env.ResultType = resultType
			env.Err = &result.DriverError{Kind: "error", Message: runErr.Error()}
		} else {
			env.ResultType = resultType
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(values); err != nil {
				return
			}
			env.ReturnValue = buf.Bytes()
		}

		encoded, err := result.Encode(env)
		if err != nil {
			return
		}
		name, err := tmpl.Fill(resultType, time.Now().Unix())
		if err != nil {
			return
		}
		b.store.Put(ctx, name, bytes.NewReader(encoded), "application/octet-stream")
	}()
	return nil
}

func newTestClient(t *testing.T) *Client {
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	c, err := New(Config{
		Backend:        &fakeBackend{store: store},
		Store:          store,
		CacheKeyPrefix: "client-test",
		PollInterval:   10 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestMapReturnsFlattenedResultsInOrder(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	values, err := c.Map(ctx, "kubeface_test.double", []interface{}{0, 1, 2, 3, 4}, 2)
	require.NoError(t, err)

	got := make([]int, len(values))
	for i, v := range values {
		got[i] = v.(int)
	}
	require.Equal(t, []int{0, 2, 4, 6, 8}, got)

	requireJobMarkedDone(t, ctx, c)
}

func TestMapPropagatesTaskException(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.Map(ctx, "kubeface_test.double", []interface{}{1, -1}, 1)
	require.Error(t, err)

	require.Len(t, c.JobSummaries(), 1)
	requireJobMarkedDone(t, ctx, c)
}

// requireJobMarkedDone asserts the most recently submitted job's status
// pages were moved from active to done, per spec.md's unconditional
// mark_jobs_done-on-exit requirement.
func requireJobMarkedDone(t *testing.T, ctx context.Context, c *Client) {
	t.Helper()
	summaries := c.JobSummaries()
	require.NotEmpty(t, summaries)
	jobName := summaries[len(summaries)-1].JobName

	doneName, err := naming.MakeStatusPageName(naming.StatusDone, naming.StatusJSON, jobName)
	require.NoError(t, err)
	r, err := c.cfg.Store.Get(ctx, doneName)
	require.NoError(t, err, "expected done status page %q to exist", doneName)
	r.Close()

	activeName, err := naming.MakeStatusPageName(naming.StatusActive, naming.StatusJSON, jobName)
	require.NoError(t, err)
	_, err = c.cfg.Store.Get(ctx, activeName)
	require.True(t, trace.IsNotFound(err), "expected active status page %q to be gone", activeName)
}

func TestMapRecordsJobSummary(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.Map(ctx, "kubeface_test.double", []interface{}{1, 2}, 1)
	require.NoError(t, err)

	summaries := c.JobSummaries()
	require.Len(t, summaries, 1)
	require.Equal(t, "client-test-000", summaries[0].CacheKey)
}

func TestNewRequiresBackendAndStore(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	_, err = New(Config{Store: store})
	require.Error(t, err)
}

func TestNewGeneratesCacheKeyPrefixWhenUnset(t *testing.T) {
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	c, err := New(Config{Backend: &fakeBackend{store: store}, Store: store})
	require.NoError(t, err)
	require.NotEmpty(t, c.CacheKeyPrefix())
}

func TestFromArgsRequiresStorage(t *testing.T) {
	old, hadOld := os.LookupEnv("KUBEFACE_STORAGE")
	os.Unsetenv("KUBEFACE_STORAGE")
	defer func() {
		if hadOld {
			os.Setenv("KUBEFACE_STORAGE", old)
		}
	}()

	_, err := FromArgs(context.Background(), &Args{})
	require.Error(t, err)
}

func TestFromArgsRejectsUnknownBackend(t *testing.T) {
	_, err := FromArgs(context.Background(), &Args{
		Storage: t.TempDir(),
		Backend: "not-a-real-backend",
	})
	require.Error(t, err)
}

func TestFromArgsDefaultsToLocalProcessBackend(t *testing.T) {
	c, err := FromArgs(context.Background(), &Args{Storage: t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, "local-process", c.cfg.Backend.String())
}

func TestBroadcastShardsAcrossRemoteObjects(t *testing.T) {
	c := newTestClient(t)
	objects, err := c.Broadcast([]interface{}{1, 2, 3, 4}, 2)
	require.NoError(t, err)
	require.Len(t, objects, 2)
}

func TestCleanupRemovesJobBlobs(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.Map(ctx, "kubeface_test.double", []interface{}{1, 2}, 1)
	require.NoError(t, err)
	require.NoError(t, c.Cleanup(ctx))

	cacheKey := c.JobSummaries()[0].CacheKey
	results, err := c.cfg.Store.List(ctx, naming.ResultPrefixForCacheKey(cacheKey))
	require.NoError(t, err)
	require.Empty(t, results)
	inputs, err := c.cfg.Store.List(ctx, naming.InputPrefixForCacheKey(cacheKey))
	require.NoError(t, err)
	require.Empty(t, inputs)
}
