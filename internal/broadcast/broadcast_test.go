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

package broadcast

import (
	"context"
	"testing"

	"github.com/gravitational/kubeface/internal/blobstore/fsstore"
	"github.com/gravitational/kubeface/internal/remoteobject"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *fsstore.Store {
	s, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	return s
}

func asInterfaces(values ...int) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func TestShardSplitsEvenly(t *testing.T) {
	remoteobject.SetStore(newTestStore(t))

	objects, err := Shard("prefix", "node-0", asInterfaces(1, 2, 3, 4, 5, 6), 3)
	require.NoError(t, err)
	require.Len(t, objects, 3)

	var got []int
	for _, obj := range objects {
		value, err := obj.Value(context.Background())
		require.NoError(t, err)
		shard := value.([]interface{})
		for _, v := range shard {
			got = append(got, v.(int))
		}
	}
	require.Equal(t, []int{1, 2, 3, 4, 5, 6}, got)
}

func TestShardRemainderGoesToEarlyShards(t *testing.T) {
	remoteobject.SetStore(newTestStore(t))

	objects, err := Shard("prefix", "node-0", asInterfaces(1, 2, 3, 4, 5), 2)
	require.NoError(t, err)
	require.Len(t, objects, 2)

	first, err := objects[0].Value(context.Background())
	require.NoError(t, err)
	require.Len(t, first.([]interface{}), 3)

	second, err := objects[1].Value(context.Background())
	require.NoError(t, err)
	require.Len(t, second.([]interface{}), 2)
}

func TestShardClampsToLenValues(t *testing.T) {
	remoteobject.SetStore(newTestStore(t))

	objects, err := Shard("prefix", "node-0", asInterfaces(1, 2), 10)
	require.NoError(t, err)
	require.Len(t, objects, 2)
}

func TestShardRejectsEmptyInput(t *testing.T) {
	_, err := Shard("prefix", "node-0", nil, 1)
	require.Error(t, err)
}
