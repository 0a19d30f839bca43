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
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func init() {
	Register("task_test.double", func(_ context.Context, item interface{}) (interface{}, error) {
		return item.(int) * 2, nil
	})
}

func TestEncodeDecodeRunRoundTrip(t *testing.T) {
	tk, err := New("task_test.double", []interface{}{1, 2, 3})
	require.NoError(t, err)

	data, err := Encode(tk)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, "task_test.double", decoded.FuncName)

	results, err := Run(context.Background(), decoded)
	require.NoError(t, err)
	require.Equal(t, []interface{}{2, 4, 6}, results)
}

func TestChunkSourceGroupsByItemsPerTask(t *testing.T) {
	items := make([]interface{}, 9)
	for i := range items {
		items[i] = i
	}
	source, err := NewChunkSource("task_test.double", items, 2)
	require.NoError(t, err)
	require.Equal(t, 5, source.NumTasks())

	var chunks [][]interface{}
	for {
		tk, ok, err := source.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		var chunk []interface{}
		for i := range tk.Items {
			v, err := tk.Item(i)
			require.NoError(t, err)
			chunk = append(chunk, v)
		}
		chunks = append(chunks, chunk)
	}
	require.Len(t, chunks, 5)
	require.Equal(t, []interface{}{0, 1}, chunks[0])
	require.Equal(t, []interface{}{8}, chunks[4])
}

func TestRunUnknownFunction(t *testing.T) {
	tk, err := New("task_test.does-not-exist", []interface{}{1})
	require.NoError(t, err)
	_, err = Run(context.Background(), tk)
	require.Error(t, err)
}
