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

package gcsstore

import (
	"context"
	"time"

	"github.com/gravitational/kubeface/internal/defaults"

	"github.com/cenkalti/backoff"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// newBackOff builds the exponential backoff policy transient transport
// errors are retried with: base 2, first sleep 2s, capped at roughly
// defaults.TransportRetryAttempts attempts, grounded on the teacher's
// lib/utils.RetryWithInterval / lib/utils.NewExponentialBackOff.
func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaults.TransportRetryInitialInterval
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	return &maxAttempts{BackOff: b, max: defaults.TransportRetryAttempts}
}

// maxAttempts wraps a backoff.BackOff and stops after a fixed number of
// NextBackOff calls regardless of elapsed time, since the spec bounds
// retries by attempt count rather than wall-clock budget.
type maxAttempts struct {
	backoff.BackOff
	max   int
	count int
}

func (m *maxAttempts) NextBackOff() time.Duration {
	m.count++
	if m.count >= m.max {
		return backoff.Stop
	}
	return m.BackOff.NextBackOff()
}

func (m *maxAttempts) Reset() {
	m.count = 0
	m.BackOff.Reset()
}

// retryTransient retries fn on every error except one wrapped with
// backoff.Permanent, which is returned at once, grounded on
// the teacher's lib/utils.RetryTransient/RetryWithInterval shape.
func retryTransient(ctx context.Context, op string, fn func() error) error {
	b := backoff.WithContext(newBackOff(), ctx)
	err := backoff.RetryNotify(fn, b, func(err error, d time.Duration) {
		log.WithError(err).Infof("gcsstore: retrying %v in %v.", op, d)
	})
	if err != nil {
		return trace.Wrap(err, "gcsstore: %v failed after retries", op)
	}
	return nil
}
