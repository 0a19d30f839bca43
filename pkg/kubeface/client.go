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

// Package kubeface is the public entry point: Client wires together a
// backend, a blob store and the job/remote-object/broadcast machinery
// behind the driver-side API described in spec.md §4.8. Grounded on the
// teacher's tool/gravity/cli pattern of a thin CLI layer delegating to
// a single environment object built once from parsed flags
// (localenv.New).
package kubeface

import (
	"bytes"
	"context"
	"encoding/gob"
	"os"
	"sync"
	"time"

	"github.com/gravitational/kubeface/internal/backend"
	"github.com/gravitational/kubeface/internal/backend/clusterpod"
	"github.com/gravitational/kubeface/internal/backend/localcontainer"
	"github.com/gravitational/kubeface/internal/backend/localprocess"
	"github.com/gravitational/kubeface/internal/backend/workerconfig"
	"github.com/gravitational/kubeface/internal/blobstore"
	"github.com/gravitational/kubeface/internal/broadcast"
	"github.com/gravitational/kubeface/internal/defaults"
	"github.com/gravitational/kubeface/internal/job"
	"github.com/gravitational/kubeface/internal/naming"
	"github.com/gravitational/kubeface/internal/remoteobject"
	"github.com/gravitational/kubeface/internal/result"
	"github.com/gravitational/kubeface/internal/statuswriter"
	"github.com/gravitational/kubeface/internal/storage"
	"github.com/gravitational/kubeface/internal/task"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Config is the fully-resolved, flag-library-agnostic configuration for
// a Client.
type Config struct {
	Backend        backend.Backend
	Store          blobstore.Store
	CacheKeyPrefix string

	MaxSimultaneousTasks int
	PollInterval         time.Duration
	NeverCleanup         bool
	WaitToRaise          bool
	Speculation          job.SpeculationPolicy
}

func (c *Config) checkAndSetDefaults() error {
	if c.Backend == nil {
		return trace.BadParameter("missing parameter Backend")
	}
	if c.Store == nil {
		return trace.BadParameter("missing parameter Store")
	}
	if c.CacheKeyPrefix == "" {
		prefix, err := naming.GenerateCacheKeyPrefix(time.Now())
		if err != nil {
			return trace.Wrap(err)
		}
		c.CacheKeyPrefix = prefix
	}
	if c.MaxSimultaneousTasks == 0 {
		c.MaxSimultaneousTasks = defaults.MaxSimultaneousTasks
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.Speculation.Percent == 0 {
		c.Speculation.Percent = defaults.SpeculationPercent
	}
	if c.Speculation.RuntimePercentile == 0 {
		c.Speculation.RuntimePercentile = defaults.SpeculationRuntimePercentile
	}
	if c.Speculation.MaxReruns == 0 {
		c.Speculation.MaxReruns = defaults.SpeculationMaxReruns
	}
	return nil
}

// Client is the driver-side handle a program built against kubeface
// uses to submit and wait on jobs.
type Client struct {
	cfg Config

	jobsMu       sync.Mutex
	jobs         []*job.Job
	nextJobIndex int
	nodeID       string
}

// New builds a Client from a fully-resolved Config. It installs cfg.Store
// as the package-level store for internal/remoteobject and
// internal/broadcast, since their gob hooks cannot thread a store
// through the call.
func New(cfg Config) (*Client, error) {
	if err := cfg.checkAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	remoteobject.SetStore(cfg.Store)
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return &Client{cfg: cfg, nodeID: host}, nil
}

// FromArgs builds a Client from the flag-agnostic Args, resolving the
// storage prefix and backend the way tool/gravity/cli's command
// functions resolve a *localenv.LocalEnvironment from parsed flags.
func FromArgs(ctx context.Context, args *Args) (*Client, error) {
	if args.Storage == "" {
		args.Storage = os.Getenv(defaults.StorageEnvar)
	}
	if args.Storage == "" {
		return nil, trace.BadParameter("missing storage: pass --kubeface-storage or set %s", defaults.StorageEnvar)
	}
	store, err := storage.Open(ctx, args.Storage)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	workerCfg := workerconfig.Config{
		Image:      args.WorkerImage,
		BinaryPath: args.WorkerBinaryPath,
		ExtraArgs:  args.WorkerExtraArgs,
	}

	b, err := resolveBackend(ctx, args, workerCfg)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if !b.SupportsStorage(args.Storage) {
		return nil, trace.BadParameter("backend %s does not support storage %q", b, args.Storage)
	}

	cfg := Config{
		Backend:              b,
		Store:                store,
		CacheKeyPrefix:       args.CacheKeyPrefix,
		MaxSimultaneousTasks: args.MaxSimultaneousTasks,
		PollInterval:         time.Duration(args.PollSeconds * float64(time.Second)),
		NeverCleanup:         args.NeverCleanup,
		WaitToRaise:          args.WaitToRaiseTaskException,
		Speculation: job.SpeculationPolicy{
			Percent:           args.SpeculationPercent,
			RuntimePercentile: args.SpeculationRuntimePercentile,
			MaxReruns:         args.SpeculationMaxReruns,
		},
	}
	return New(cfg)
}

func resolveBackend(ctx context.Context, args *Args, workerCfg workerconfig.Config) (backend.Backend, error) {
	switch args.Backend {
	case "", "local-process":
		return localprocess.New(workerCfg.BinaryPath, args.Storage, workerCfg.ExtraArgs), nil
	case "local-container":
		return localcontainer.New(workerCfg, args.LocalContainerHostStorageDir, args.Storage)
	case "cluster-pod":
		client, err := newKubeClient()
		if err != nil {
			return nil, trace.Wrap(err)
		}
		return clusterpod.New(client, args.ClusterPodNamespace, workerCfg, args.Storage)
	default:
		return nil, trace.BadParameter("unknown backend %q", args.Backend)
	}
}

// newKubeClient builds a Kubernetes clientset, preferring in-cluster
// config (the driver's own pod runs with one) and falling back to
// KUBECONFIG, grounded on the teacher's lib/utils.GetKubeClient.
func newKubeClient() (kubernetes.Interface, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, trace.Wrap(err, "loading kubernetes config")
		}
	}
	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, trace.Wrap(err, "building kubernetes client")
	}
	return client, nil
}

// CacheKeyPrefix returns the cache key prefix this client submits jobs under.
func (c *Client) CacheKeyPrefix() string {
	return c.cfg.CacheKeyPrefix
}

// RemoteObject wraps value for capture by a task closure without
// embedding it in every task's serialized input, per spec.md §4.4.
func (c *Client) RemoteObject(value interface{}) *remoteobject.RemoteObject {
	return remoteobject.New(c.cfg.CacheKeyPrefix, c.nodeID, value)
}

// Broadcast shards values across up to shards remote objects, per the
// supplemented broadcast.py feature (internal/broadcast).
func (c *Client) Broadcast(values []interface{}, shards int) ([]*remoteobject.RemoteObject, error) {
	return broadcast.Shard(c.cfg.CacheKeyPrefix, c.nodeID, values, shards)
}

// Submit starts a job over source without waiting for it to complete,
// for callers that want to drive Wait/Results themselves (for example,
// to fan out many jobs concurrently).
func (c *Client) Submit(ctx context.Context, source task.Source, numTasksHint *int) (*job.Job, error) {
	c.jobsMu.Lock()
	jobIndex := c.nextJobIndex
	c.nextJobIndex++
	c.jobsMu.Unlock()

	j, err := job.New(ctx, job.Config{
		Backend:              c.cfg.Backend,
		Store:                c.cfg.Store,
		Source:               source,
		JobIndex:             jobIndex,
		CacheKeyPrefix:       c.cfg.CacheKeyPrefix,
		MaxSimultaneousTasks: c.cfg.MaxSimultaneousTasks,
		NumTasksHint:         numTasksHint,
		PollInterval:         c.cfg.PollInterval,
		WaitToRaise:          c.cfg.WaitToRaise,
		Speculation:          c.cfg.Speculation,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	c.jobsMu.Lock()
	c.jobs = append(c.jobs, j)
	c.jobsMu.Unlock()
	return j, nil
}

// Map is the synchronous convenience wrapper spec.md §4.8 centers the
// API on: chunk items into tasks of itemsPerTask each, run funcName
// (already registered via task.Register) over every item, and return
// the flattened per-item results in input order.
func (c *Client) Map(ctx context.Context, funcName string, items []interface{}, itemsPerTask int) ([]interface{}, error) {
	source, err := task.NewChunkSource(funcName, items, itemsPerTask)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	numTasks := source.NumTasks()
	j, err := c.Submit(ctx, source, &numTasks)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer func() {
		if err := statuswriter.MarkDone(ctx, c.cfg.Store, j.Name()); err != nil {
			log.WithError(err).Warn("failed to mark job done")
		}
	}()

	if err := j.Wait(ctx); err != nil {
		return nil, trace.Wrap(err)
	}
	it, err := j.Results(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var out []interface{}
	for {
		env, ok, err := it.Next()
		if err != nil {
			return nil, trace.Wrap(err)
		}
		if !ok {
			break
		}
		values, err := decodeReturnValue(env)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		out = append(out, values...)
	}
	return out, nil
}

func decodeReturnValue(env *result.Envelope) ([]interface{}, error) {
	var values []interface{}
	if err := gob.NewDecoder(bytes.NewReader(env.ReturnValue)).Decode(&values); err != nil {
		return nil, trace.Wrap(err, "decoding return value")
	}
	return values, nil
}

// JobSummary describes one job this Client has submitted.
type JobSummary struct {
	JobName  string
	CacheKey string
}

// JobSummaries lists every job this Client has submitted in this
// process, in submission order.
func (c *Client) JobSummaries() []JobSummary {
	c.jobsMu.Lock()
	defer c.jobsMu.Unlock()
	out := make([]JobSummary, len(c.jobs))
	for i, j := range c.jobs {
		out[i] = JobSummary{JobName: j.Name(), CacheKey: j.CacheKey()}
	}
	return out
}

// Cleanup removes every input, result and status blob belonging to jobs
// this Client submitted, unless NeverCleanup was set.
func (c *Client) Cleanup(ctx context.Context) error {
	if c.cfg.NeverCleanup {
		return nil
	}
	c.jobsMu.Lock()
	jobs := append([]*job.Job(nil), c.jobs...)
	c.jobsMu.Unlock()

	for _, j := range jobs {
		prefixes := []string{
			naming.ResultPrefixForCacheKey(j.CacheKey()),
			naming.InputPrefixForCacheKey(j.CacheKey()),
		}
		for _, prefix := range prefixes {
			names, err := c.cfg.Store.List(ctx, prefix)
			if err != nil {
				return trace.Wrap(err)
			}
			for _, name := range names {
				if err := c.cfg.Store.Delete(ctx, name); err != nil {
					return trace.Wrap(err, "deleting %q", name)
				}
			}
		}
	}
	return nil
}

// MarkJobsDone tears down the active status pages for every job this
// Client submitted, moving them to their done counterparts.
func (c *Client) MarkJobsDone(ctx context.Context) error {
	c.jobsMu.Lock()
	jobs := append([]*job.Job(nil), c.jobs...)
	c.jobsMu.Unlock()

	for _, j := range jobs {
		if err := statuswriter.MarkDone(ctx, c.cfg.Store, j.Name()); err != nil {
			return trace.Wrap(err, "marking job %q done", j.Name())
		}
	}
	return nil
}
