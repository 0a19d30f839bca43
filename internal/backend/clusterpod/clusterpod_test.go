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

package clusterpod

import (
	"context"
	"testing"

	"github.com/gravitational/kubeface/internal/backend/workerconfig"
	"github.com/gravitational/kubeface/internal/naming"

	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestSubmitTaskCreatesJob(t *testing.T) {
	client := fake.NewSimpleClientset()
	b, err := New(client, "kubeface", workerconfig.Config{Image: "anaconda3"}, "gs://bucket/prefix")
	require.NoError(t, err)

	err = b.SubmitTask(context.Background(), "ck::0", "input::ck::0", naming.ResultBlobTemplate{
		TaskName:   "ck::0",
		AttemptNum: 0,
		QueueTime:  10,
	})
	require.NoError(t, err)

	jobs, err := client.BatchV1().Jobs("kubeface").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, jobs.Items, 1)
	require.Equal(t, "anaconda3", jobs.Items[0].Spec.Template.Spec.Containers[0].Image)
}

func TestSupportsStorageRejectsLocalPaths(t *testing.T) {
	client := fake.NewSimpleClientset()
	b, err := New(client, "kubeface", workerconfig.Config{Image: "anaconda3"}, "")
	require.NoError(t, err)
	require.False(t, b.SupportsStorage("/var/kubeface"))
	require.True(t, b.SupportsStorage("gs://bucket/prefix"))
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil, "kubeface", workerconfig.Config{Image: "anaconda3"}, "")
	require.Error(t, err)
}
