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

package localprocess

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gravitational/kubeface/internal/naming"

	"github.com/stretchr/testify/require"
)

// TestSubmitTaskLaunchesProcess uses the `touch`-like behavior of a tiny
// shell script standing in for the kubeface binary: it writes its
// arguments to a file so the test can assert on what was passed.
func TestSubmitTaskLaunchesProcess(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "args.txt")
	script := filepath.Join(dir, "fake-kubeface")
	require.NoError(t, ioutil.WriteFile(script, []byte("#!/bin/sh\necho \"$@\" > "+outFile+"\n"), 0o755))

	b := New(script, "file:///tmp/store", nil)
	err := b.SubmitTask(context.Background(), "ck::0", "input::ck::0", naming.ResultBlobTemplate{
		TaskName:   "ck::0",
		AttemptNum: 0,
		QueueTime:  1234,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := os.Stat(outFile)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	data, err := ioutil.ReadFile(outFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "run-task")
	require.Contains(t, string(data), "ck::0")
}

func TestSupportsStorageAlwaysTrue(t *testing.T) {
	b := New("kubeface", "", nil)
	require.True(t, b.SupportsStorage("anything"))
}
