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

package job

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/gravitational/kubeface/internal/naming"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// reservoir keeps a bounded, uniformly-sampled window of observed
// non-speculated task runtimes (result_time - queue_time, in seconds),
// per spec.md §9's guidance to bound the sample set rather than retain
// every observation for the life of a long-running job.
type reservoir struct {
	cap     int
	samples []float64
	seen    int
	rng     *rand.Rand
}

func newReservoir(cap int) *reservoir {
	return &reservoir{cap: cap, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// add records one runtime sample using reservoir sampling (Algorithm R):
// every sample is kept until the reservoir is full, after which each new
// sample replaces a uniformly random existing one with probability
// cap/seen.
func (r *reservoir) add(value float64) {
	r.seen++
	if len(r.samples) < r.cap {
		r.samples = append(r.samples, value)
		return
	}
	j := r.rng.Intn(r.seen)
	if j < r.cap {
		r.samples[j] = value
	}
}

// percentile returns the p'th percentile (0-100) of the samples seen so
// far using nearest-rank, or zero if no samples have been recorded.
func (r *reservoir) percentile(p float64) float64 {
	if len(r.samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), r.samples...)
	sort.Float64s(sorted)
	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// maybeSpeculate re-submits slow tasks once speculation has been
// triggered, per spec.md §4.7: speculation is disabled until the
// submission source is exhausted AND the running fraction has dropped
// to at most Speculation.Percent of total submitted. Once triggered,
// the speculation threshold (a runtime percentile) is computed once and
// held fixed for the rest of the job.
func (j *Job) maybeSpeculate(ctx context.Context) error {
	j.mu.Lock()
	exhausted := j.sourceExhausted
	total := len(j.submittedTasks)
	running := len(j.runningTasks)
	j.mu.Unlock()
	if !exhausted || total == 0 {
		return nil
	}

	if !j.speculationEnabled {
		fraction := float64(running) / float64(total) * 100
		if fraction > j.cfg.Speculation.Percent {
			return nil
		}
		j.mu.Lock()
		j.speculationThresh = time.Duration(j.samples.percentile(j.cfg.Speculation.RuntimePercentile)) * time.Second
		j.speculationEnabled = true
		j.mu.Unlock()
		log.WithField("job_name", j.jobName).
			Infof("speculation enabled, threshold %s", j.speculationThresh)
	}

	now := time.Now()

	j.mu.Lock()
	capacity := j.cfg.MaxSimultaneousTasks
	runningNames := make([]string, 0, len(j.runningTasks))
	for t := range j.runningTasks {
		runningNames = append(runningNames, t)
		capacity -= len(j.taskAttempts[t])
	}
	threshold := j.speculationThresh
	j.mu.Unlock()
	sort.Strings(runningNames)

	for _, taskName := range runningNames {
		if capacity <= 0 {
			break
		}
		j.mu.Lock()
		attempts := j.taskAttempts[taskName]
		j.mu.Unlock()
		if len(attempts) == 0 {
			continue
		}
		lastEpoch := attempts[len(attempts)-1]
		if now.Sub(lastEpoch) < threshold {
			continue
		}
		if len(attempts)-1 >= j.cfg.Speculation.MaxReruns {
			continue
		}

		inputBlobName, err := naming.MakeInputBlobName(taskName)
		if err != nil {
			return trace.Wrap(err)
		}
		template := naming.ResultBlobTemplate{TaskName: taskName, AttemptNum: len(attempts), QueueTime: now.Unix()}
		if err := j.cfg.Backend.SubmitTask(ctx, taskName, inputBlobName, template); err != nil {
			return trace.Wrap(err, "speculatively resubmitting task %q", taskName)
		}
		log.WithField("task_name", taskName).WithField("attempt", len(attempts)).
			Info("speculatively re-executing slow task")

		j.mu.Lock()
		j.taskAttempts[taskName] = append(j.taskAttempts[taskName], now)
		j.mu.Unlock()
		capacity--
	}
	return nil
}
