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

// Package job implements the dispatcher core: admission-controlled task
// submission, completion detection via blob listing, speculative
// re-execution of slow tasks, and ordered result streaming. Grounded on
// the teacher's poll/retry loop idioms (lib/ops/election.go's
// runLeaderCommandRetry, lib/rpc/server/peers.go's connection checker)
// for the "loop, sleep, re-poll" shape.
package job

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/gravitational/kubeface/internal/backend"
	"github.com/gravitational/kubeface/internal/blobstore"
	"github.com/gravitational/kubeface/internal/defaults"
	"github.com/gravitational/kubeface/internal/naming"
	"github.com/gravitational/kubeface/internal/result"
	"github.com/gravitational/kubeface/internal/statuswriter"
	"github.com/gravitational/kubeface/internal/task"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// SpeculationPolicy bounds re-execution of slow tasks, per spec.md
// §4.7's speculative re-execution contract.
type SpeculationPolicy struct {
	// Percent is the fraction (0-100) of outstanding-over-submitted
	// tasks at or below which speculation may begin.
	Percent float64
	// RuntimePercentile selects the speculation threshold from observed
	// non-speculated runtimes.
	RuntimePercentile float64
	// MaxReruns caps the number of speculative re-executions per task,
	// on top of its original attempt.
	MaxReruns int
}

// Config carries everything needed to construct a Job.
type Config struct {
	Backend  backend.Backend
	Store    blobstore.Store
	Source   task.Source
	JobIndex int

	CacheKeyPrefix       string
	MaxSimultaneousTasks int
	NumTasksHint         *int
	PollInterval         time.Duration
	WaitToRaise          bool
	Speculation          SpeculationPolicy
}

func (c *Config) checkAndSetDefaults() error {
	if c.Backend == nil {
		return trace.BadParameter("missing parameter Backend")
	}
	if c.Store == nil {
		return trace.BadParameter("missing parameter Store")
	}
	if c.Source == nil {
		return trace.BadParameter("missing parameter Source")
	}
	if c.CacheKeyPrefix == "" {
		return trace.BadParameter("missing parameter CacheKeyPrefix")
	}
	if c.MaxSimultaneousTasks <= 0 {
		c.MaxSimultaneousTasks = defaults.MaxSimultaneousTasks
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.Speculation.Percent <= 0 {
		c.Speculation.Percent = defaults.SpeculationPercent
	}
	if c.Speculation.RuntimePercentile <= 0 {
		c.Speculation.RuntimePercentile = defaults.SpeculationRuntimePercentile
	}
	if c.Speculation.MaxReruns <= 0 {
		c.Speculation.MaxReruns = defaults.SpeculationMaxReruns
	}
	return nil
}

// Job drives one map-over-iterable dispatch: it submits tasks under
// admission control, detects completion by polling the blob store,
// speculatively re-executes slow tasks, and streams results in
// submission order once done.
type Job struct {
	cfg Config

	cacheKey string
	jobName  string

	status *statuswriter.Writer

	mu sync.Mutex

	nextTaskNum     int
	submittedTasks  []string
	completedTasks  map[string]string // task name -> result blob name
	runningTasks    map[string]struct{}
	reusedTasks     map[string]bool
	taskAttempts    map[string][]time.Time
	sourceExhausted bool
	startTime       time.Time

	// abortErr is set when an exception is observed and WaitToRaise is
	// false; it aborts Wait immediately.
	abortErr error
	// pendingExceptions holds task names whose exception envelopes were
	// logged but deferred, because WaitToRaise is true; Results()
	// surfaces them when it reaches that task.
	pendingExceptions map[string]bool

	samples            *reservoir
	speculationEnabled bool
	speculationThresh  time.Duration
}

// New constructs a Job: it synthesizes the job name, lists any
// pre-existing results under this cache key (the completion-driven
// prime that makes cache reuse work), and publishes the first status
// pages.
func New(ctx context.Context, cfg Config) (*Job, error) {
	if err := cfg.checkAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	cacheKey, err := naming.MakeCacheKey(cfg.CacheKeyPrefix, cfg.JobIndex)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	jobName, err := naming.MakeJobName(cacheKey)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	j := &Job{
		cfg:               cfg,
		cacheKey:          cacheKey,
		jobName:           jobName,
		status:            statuswriter.New(cfg.Store, jobName),
		completedTasks:    make(map[string]string),
		runningTasks:      make(map[string]struct{}),
		reusedTasks:       make(map[string]bool),
		taskAttempts:      make(map[string][]time.Time),
		pendingExceptions: make(map[string]bool),
		samples:           newReservoir(defaults.SpeculationSampleCap),
		startTime:         time.Now(),
	}

	if err := j.primeCompletedFromStore(ctx); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := j.status.PublishSync(ctx, j.snapshot()); err != nil {
		return nil, trace.Wrap(err)
	}
	return j, nil
}

// Name returns the job's synthesized name.
func (j *Job) Name() string { return j.jobName }

// CacheKey returns the job's cache key.
func (j *Job) CacheKey() string { return j.cacheKey }

// primeCompletedFromStore lists every pre-existing result blob for this
// cache key and records it, so submit_next_task can immediately
// recognize reusable results, per spec.md §4.7.
func (j *Job) primeCompletedFromStore(ctx context.Context) error {
	names, err := j.cfg.Store.List(ctx, naming.ResultPrefixForCacheKey(j.cacheKey))
	if err != nil {
		return trace.Wrap(err)
	}
	for _, name := range names {
		parsed, err := naming.ParseResultBlobName(name)
		if err != nil {
			log.WithError(err).Warnf("ignoring unparseable result blob %q", name)
			continue
		}
		if _, ok := j.completedTasks[parsed.TaskName]; !ok {
			j.completedTasks[parsed.TaskName] = name
		}
	}
	return nil
}

func (j *Job) snapshot() *statuswriter.Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	running := make([]string, 0, len(j.runningTasks))
	for t := range j.runningTasks {
		running = append(running, t)
	}
	return &statuswriter.Snapshot{
		Backend:              j.cfg.Backend.String(),
		JobName:              j.jobName,
		CacheKey:             j.cacheKey,
		MaxSimultaneousTasks: j.cfg.MaxSimultaneousTasks,
		NumTasks:             j.cfg.NumTasksHint,
		StartTime:            j.startTime,
		SubmittedTasks:       append([]string(nil), j.submittedTasks...),
		CompletedTasks:       completedTaskNames(j.completedTasks),
		RunningTasks:         running,
		ReusedTasks:          reusedTaskNames(j.reusedTasks),
	}
}

func completedTaskNames(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	return out
}

func reusedTaskNames(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	return out
}

// fetchEnvelope downloads and decodes the result envelope at blobName.
func (j *Job) fetchEnvelope(ctx context.Context, blobName string) (*result.Envelope, error) {
	r, err := j.cfg.Store.Get(ctx, blobName)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, trace.Wrap(err)
	}
	return result.DecodeFromBlob(buf.Bytes(), blobName)
}

// update is the completion scan: it lists result blobs under this job's
// cache key, and for every newly observed completion of a currently
// running task, records it, per spec.md §4.7.
func (j *Job) update(ctx context.Context) error {
	names, err := j.cfg.Store.List(ctx, naming.ResultPrefixForCacheKey(j.cacheKey))
	if err != nil {
		return trace.Wrap(err)
	}
	for _, name := range names {
		parsed, err := naming.ParseResultBlobName(name)
		if err != nil {
			log.WithError(err).Warnf("ignoring unparseable result blob %q", name)
			continue
		}

		j.mu.Lock()
		_, alreadyDone := j.completedTasks[parsed.TaskName]
		_, isRunning := j.runningTasks[parsed.TaskName]
		j.mu.Unlock()
		if alreadyDone || !isRunning {
			continue
		}

		envelope, err := j.fetchEnvelope(ctx, name)
		if err != nil {
			return trace.Wrap(err, "fetching result %q", name)
		}
		envelope.Log(log.WithField("task_name", parsed.TaskName))

		j.mu.Lock()
		j.completedTasks[parsed.TaskName] = name
		delete(j.runningTasks, parsed.TaskName)
		if parsed.ResultType == naming.ResultValue && parsed.AttemptNum == 0 {
			j.samples.add(float64(parsed.ResultTime - parsed.QueueTime))
		}
		j.mu.Unlock()

		if parsed.ResultType == naming.ResultException {
			if j.cfg.WaitToRaise {
				j.mu.Lock()
				j.pendingExceptions[parsed.TaskName] = true
				j.mu.Unlock()
			} else {
				j.mu.Lock()
				if j.abortErr == nil {
					j.abortErr = trace.Wrap(envelope.RaiseIfError(), "task %q failed", parsed.TaskName)
				}
				j.mu.Unlock()
			}
		}
	}
	return nil
}

// submitNextTask pulls the next task from the source. A task whose name
// is already in completedTasks (a prior job's result being reused) is
// recorded and skipped without consuming an admission slot; the method
// keeps pulling until it either performs a real submission or exhausts
// the source.
func (j *Job) submitNextTask(ctx context.Context) (submitted bool, err error) {
	for {
		t, ok, err := j.cfg.Source.Next()
		if err != nil {
			return false, trace.Wrap(err)
		}
		if !ok {
			j.mu.Lock()
			j.sourceExhausted = true
			j.mu.Unlock()
			return false, nil
		}

		j.mu.Lock()
		taskNum := j.nextTaskNum
		j.nextTaskNum++
		j.mu.Unlock()

		taskName, err := naming.MakeTaskName(j.cacheKey, taskNum)
		if err != nil {
			return false, trace.Wrap(err)
		}

		j.mu.Lock()
		blobName, done := j.completedTasks[taskName]
		j.mu.Unlock()
		if done {
			j.mu.Lock()
			j.reusedTasks[taskName] = true
			j.submittedTasks = append(j.submittedTasks, taskName)
			j.mu.Unlock()
			log.WithField("task_name", taskName).WithField("result_blob", blobName).
				Debug("reusing cached result")
			continue
		}

		data, err := task.Encode(t)
		if err != nil {
			return false, trace.Wrap(err)
		}
		inputBlobName, err := naming.MakeInputBlobName(taskName)
		if err != nil {
			return false, trace.Wrap(err)
		}
		if err := j.cfg.Store.Put(ctx, inputBlobName, bytes.NewReader(data), "application/octet-stream"); err != nil {
			return false, trace.Wrap(err, "uploading input for task %q", taskName)
		}

		now := time.Now()
		template := naming.ResultBlobTemplate{TaskName: taskName, AttemptNum: 0, QueueTime: now.Unix()}
		if err := j.cfg.Backend.SubmitTask(ctx, taskName, inputBlobName, template); err != nil {
			return false, trace.Wrap(err, "submitting task %q", taskName)
		}

		j.mu.Lock()
		j.taskAttempts[taskName] = append(j.taskAttempts[taskName], now)
		j.runningTasks[taskName] = struct{}{}
		j.submittedTasks = append(j.submittedTasks, taskName)
		j.mu.Unlock()
		return true, nil
	}
}

// runningCount returns the number of tasks currently outstanding.
func (j *Job) runningCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.runningTasks)
}

// Wait runs the submission loop to completion (every task submitted or
// reused) and then the drain phase (every running task completed),
// speculating on slow tasks along the way. It returns as soon as an
// exception is observed with WaitToRaise=false.
func (j *Job) Wait(ctx context.Context) error {
	for {
		if err := j.update(ctx); err != nil {
			return trace.Wrap(err)
		}
		if err := j.checkAbort(); err != nil {
			return err
		}

		target := j.cfg.MaxSimultaneousTasks - j.runningCount()
		if target <= 0 {
			j.status.Publish(ctx, j.snapshot())
			if err := sleepContext(ctx, j.cfg.PollInterval); err != nil {
				return trace.Wrap(err)
			}
			continue
		}

		exhausted := false
		for i := 0; i < target; i++ {
			submitted, err := j.submitNextTask(ctx)
			if err != nil {
				return trace.Wrap(err)
			}
			if !submitted {
				exhausted = true
				break
			}
		}
		j.status.Publish(ctx, j.snapshot())
		if exhausted {
			break
		}
		if err := sleepContext(ctx, j.cfg.PollInterval); err != nil {
			return trace.Wrap(err)
		}
	}

	return j.drain(ctx)
}

// drain repeats update/speculate/sleep until every running task has
// completed.
func (j *Job) drain(ctx context.Context) error {
	for j.runningCount() > 0 {
		if err := j.update(ctx); err != nil {
			return trace.Wrap(err)
		}
		if err := j.checkAbort(); err != nil {
			return err
		}
		if err := j.maybeSpeculate(ctx); err != nil {
			return trace.Wrap(err)
		}
		j.status.Publish(ctx, j.snapshot())
		log.WithField("job_name", j.jobName).Infof("%d tasks still running", j.runningCount())
		if j.runningCount() == 0 {
			break
		}
		if err := sleepContext(ctx, j.cfg.PollInterval); err != nil {
			return trace.Wrap(err)
		}
	}
	if err := j.update(ctx); err != nil {
		return trace.Wrap(err)
	}
	return j.checkAbort()
}

func (j *Job) checkAbort() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.abortErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ResultIterator streams envelopes for a finished Job's submitted tasks,
// in submission order.
type ResultIterator struct {
	job *Job
	ctx context.Context
	idx int
}

// Results returns an iterator over this job's results in submission
// order. It fails if any task is still running.
func (j *Job) Results(ctx context.Context) (*ResultIterator, error) {
	if j.runningCount() > 0 {
		return nil, trace.BadParameter("job %q: cannot read results while tasks are still running", j.jobName)
	}
	return &ResultIterator{job: j, ctx: ctx}, nil
}

// Next returns the next result envelope, or ok=false once exhausted. An
// exception envelope for a task is surfaced as err on the iteration that
// reaches it — immediately if WaitToRaise was false (the Job would
// already have aborted via Wait in that case), or deferred to this
// point if WaitToRaise was true.
func (it *ResultIterator) Next() (envelope *result.Envelope, ok bool, err error) {
	it.job.mu.Lock()
	if it.idx >= len(it.job.submittedTasks) {
		it.job.mu.Unlock()
		return nil, false, nil
	}
	taskName := it.job.submittedTasks[it.idx]
	it.idx++
	blobName, done := it.job.completedTasks[taskName]
	it.job.mu.Unlock()
	if !done {
		return nil, false, trace.BadParameter("task %q has no recorded result", taskName)
	}

	envelope, err = it.job.fetchEnvelope(it.ctx, blobName)
	if err != nil {
		return nil, false, trace.Wrap(err)
	}
	if envelope.ResultType == naming.ResultException {
		it.job.mu.Lock()
		deferred := it.job.pendingExceptions[taskName]
		delete(it.job.pendingExceptions, taskName)
		it.job.mu.Unlock()
		if deferred {
			log.WithField("task_name", taskName).Warn("raising exception deferred by wait-to-raise-task-exception")
		}
		return envelope, true, trace.Wrap(envelope.RaiseIfError(), "task %q", taskName)
	}
	return envelope, true, nil
}
