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

package statuswriter

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"testing"
	"time"

	"github.com/gravitational/kubeface/internal/blobstore/fsstore"
	"github.com/gravitational/kubeface/internal/naming"

	"github.com/stretchr/testify/require"
)

func TestPublishSyncWritesBothPages(t *testing.T) {
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)

	w := New(store, "job-1")
	snap := &Snapshot{
		Backend:              "localprocess",
		JobName:              "job-1",
		CacheKey:              "ck-1",
		MaxSimultaneousTasks:  10,
		StartTime:             time.Unix(0, 0).UTC(),
		SubmittedTasks:        []string{"ck-1::0"},
		RunningTasks:          []string{"ck-1::0"},
	}
	require.NoError(t, w.PublishSync(context.Background(), snap))

	jsonName, err := naming.MakeStatusPageName(naming.StatusActive, naming.StatusJSON, "job-1")
	require.NoError(t, err)
	r, err := store.Get(context.Background(), jsonName)
	require.NoError(t, err)
	data, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	r.Close()

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "ck-1", decoded.CacheKey)

	htmlName, err := naming.MakeStatusPageName(naming.StatusActive, naming.StatusHTML, "job-1")
	require.NoError(t, err)
	_, err = store.Get(context.Background(), htmlName)
	require.NoError(t, err)
}

func TestMarkDoneRenamesBothPages(t *testing.T) {
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)

	w := New(store, "job-2")
	require.NoError(t, w.PublishSync(context.Background(), &Snapshot{JobName: "job-2"}))
	require.NoError(t, MarkDone(context.Background(), store, "job-2"))

	doneName, err := naming.MakeStatusPageName(naming.StatusDone, naming.StatusJSON, "job-2")
	require.NoError(t, err)
	_, err = store.Get(context.Background(), doneName)
	require.NoError(t, err)

	activeName, err := naming.MakeStatusPageName(naming.StatusActive, naming.StatusJSON, "job-2")
	require.NoError(t, err)
	_, err = store.Get(context.Background(), activeName)
	require.Error(t, err)
}

func TestMarkDoneIsIdempotent(t *testing.T) {
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, MarkDone(context.Background(), store, "job-never-existed"))
}
