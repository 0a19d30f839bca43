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

// Package defaults collects the tunables shared across the dispatcher so
// they are defined exactly once.
package defaults

import "time"

const (
	// MaxSimultaneousTasks is the default admission cap on outstanding tasks.
	MaxSimultaneousTasks = 10

	// PollInterval is the default delay between submission/drain loop
	// iterations.
	PollInterval = 30 * time.Second

	// SpeculationPercent is the default fraction (0-100) of outstanding
	// tasks below which speculative re-execution is considered.
	SpeculationPercent = 20.0

	// SpeculationRuntimePercentile is the default percentile of observed
	// task runtimes used as the speculation threshold.
	SpeculationRuntimePercentile = 99.0

	// SpeculationMaxReruns is the default cap on additional attempts per
	// task contributed by speculation.
	SpeculationMaxReruns = 3

	// SpeculationSampleCap bounds the in-memory reservoir of observed
	// runtimes used to compute the speculation threshold.
	SpeculationSampleCap = 100000

	// StorageEnvar is the environment variable consulted for the storage
	// root when --kubeface-storage is not given on the command line.
	StorageEnvar = "KUBEFACE_STORAGE"

	// CacheKeyPrefixRandomSuffixBytes is the number of random bytes
	// appended to a generated cache key prefix.
	CacheKeyPrefixRandomSuffixBytes = 4

	// JobNameRandomSuffixBytes is the number of random bytes appended to
	// a job name to make it unique even when its cache key is reused.
	JobNameRandomSuffixBytes = 4

	// SharedDirMask is the permission mask used when creating shared
	// directories in the local filesystem blob store.
	SharedDirMask = 0755

	// SharedFileMask is the permission mask used when writing blobs to
	// the local filesystem blob store.
	SharedFileMask = 0644

	// TransportRetryAttempts bounds the number of attempts a blob-store
	// or control-plane transport retries a transient error.
	TransportRetryAttempts = 12

	// TransportRetryInitialInterval is the first sleep in the transport
	// retry backoff (exponential, base 2).
	TransportRetryInitialInterval = 2 * time.Second

	// NamePartSeparator joins schema fields inside a single blob name
	// segment.
	NamePartSeparator = "::"

	// JobIndexWidth is the zero-padded width of the job index component
	// of a cache key.
	JobIndexWidth = 3
)
