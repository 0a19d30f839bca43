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

package localcontainer

import (
	"testing"

	"github.com/gravitational/kubeface/internal/backend/workerconfig"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsMissingImage(t *testing.T) {
	_, err := New(workerconfig.Config{}, "", "")
	require.Error(t, err)
}

func TestSupportsStorageWithBindMount(t *testing.T) {
	b, err := New(workerconfig.Config{Image: "anaconda3"}, "/data/kubeface", "/data/kubeface")
	require.NoError(t, err)
	require.True(t, b.SupportsStorage("/data/kubeface"))
	require.False(t, b.SupportsStorage("/other/path"))
}

func TestSupportsStorageWithoutBindMount(t *testing.T) {
	b, err := New(workerconfig.Config{Image: "anaconda3"}, "", "gs://bucket/prefix")
	require.NoError(t, err)
	require.True(t, b.SupportsStorage("gs://bucket/prefix"))
}

func TestStringIncludesImage(t *testing.T) {
	b, err := New(workerconfig.Config{Image: "anaconda3"}, "", "")
	require.NoError(t, err)
	require.Contains(t, b.String(), "anaconda3")
}
