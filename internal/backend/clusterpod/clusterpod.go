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

// Package clusterpod submits one Kubernetes batch/v1 Job per task, one
// container, RestartPolicyNever. Grounded directly on the teacher's
// lib/app/hooks/hooks.go (Runner.Start: namespace-then-job creation,
// rigging.ConvertError) and lib/kubernetes/jobs.go (MakeJobName).
package clusterpod

import (
	"context"
	"fmt"
	"time"

	"github.com/gravitational/kubeface/internal/backend/workerconfig"
	"github.com/gravitational/kubeface/internal/naming"

	"github.com/cenkalti/backoff"
	"github.com/gravitational/rigging"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
	batchv1 "k8s.io/api/batch/v1"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Backend submits a Kubernetes Job per task.
type Backend struct {
	Client    kubernetes.Interface
	Namespace string
	Config    workerconfig.Config
	Storage   string

	// MaxSubmitAttempts bounds the exponential backoff retry loop on
	// control-plane submission errors, per spec.md §7's transport error
	// policy.
	MaxSubmitAttempts int
}

// New returns a clusterpod Backend.
func New(client kubernetes.Interface, namespace string, cfg workerconfig.Config, storage string) (*Backend, error) {
	if client == nil {
		return nil, trace.BadParameter("missing parameter Client")
	}
	if namespace == "" {
		namespace = "default"
	}
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Backend{
		Client:            client,
		Namespace:         namespace,
		Config:            cfg,
		Storage:           storage,
		MaxSubmitAttempts: 12,
	}, nil
}

// String implements backend.Backend.
func (b *Backend) String() string {
	return "cluster-pod:" + b.Config.Image
}

// SupportsStorage implements backend.Backend: a pod cannot mount a
// driver-local directory, so any local filesystem storage prefix is
// rejected — only remote object-storage URLs (e.g. gs://...) work.
func (b *Backend) SupportsStorage(storagePrefix string) bool {
	return len(storagePrefix) >= 5 && storagePrefix[:5] == "gs://"
}

// jobName derives a Kubernetes-legal Job name from taskName, grounded on
// lib/kubernetes/jobs.go's MakeJobName (prefix + truncated name + short
// random hex suffix, kept under the 63-character Kubernetes name limit).
func jobName(taskName string) (string, error) {
	name := taskName
	const maxNameLen = 40
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	sanitized := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			sanitized = append(sanitized, c)
		case c >= 'A' && c <= 'Z':
			sanitized = append(sanitized, c-'A'+'a')
		default:
			sanitized = append(sanitized, '-')
		}
	}
	suffix, err := naming.RandomHex(7)
	if err != nil {
		return "", trace.Wrap(err)
	}
	return fmt.Sprintf("kf-%s-%s", string(sanitized), suffix[:13]), nil
}

// SubmitTask implements backend.Backend.
func (b *Backend) SubmitTask(ctx context.Context, taskName, inputBlobName string, resultTemplate naming.ResultBlobTemplate) error {
	args := b.Config.Args(b.Storage, taskName, inputBlobName, resultTemplate.AttemptNum, resultTemplate.QueueTime)
	name, err := jobName(taskName)
	if err != nil {
		return trace.Wrap(err)
	}
	deadline := int64(0)
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: b.Namespace,
			Labels: map[string]string{
				"kubeface-task": sanitizeLabel(taskName),
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: int32Ptr(0),
			Template: v1.PodTemplateSpec{
				Spec: v1.PodSpec{
					RestartPolicy: v1.RestartPolicyNever,
					Containers: []v1.Container{
						{
							Name:    "kubeface-worker",
							Image:   b.Config.Image,
							Command: append([]string{b.Config.BinaryPath}, args...),
						},
					},
				},
			},
		},
	}
	if deadline > 0 {
		job.Spec.ActiveDeadlineSeconds = &deadline
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 2 * time.Second
	attempts := 0
	operation := func() error {
		attempts++
		_, err := b.Client.BatchV1().Jobs(b.Namespace).Create(ctx, job, metav1.CreateOptions{})
		err = rigging.ConvertError(err)
		if err == nil {
			return nil
		}
		if attempts >= b.MaxSubmitAttempts {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("task_name", taskName).
			Warnf("job submission failed, retrying in %s", wait)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(backOff, ctx), notify); err != nil {
		return trace.Wrap(err, "submitting pod for task %q", taskName)
	}
	return nil
}

func sanitizeLabel(s string) string {
	const max = 63
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		default:
			out = append(out, '-')
		}
	}
	if len(out) > max {
		out = out[:max]
	}
	return string(out)
}

func int32Ptr(n int32) *int32 { return &n }
