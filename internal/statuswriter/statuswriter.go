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

// Package statuswriter publishes a job's live status as two blobs — one
// JSON, one human-readable HTML — from a single snapshot struct, per
// spec.md §4.5 and the external JSON contract of spec.md §6.
package statuswriter

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"sync"
	"time"

	"github.com/gravitational/kubeface/internal/blobstore"
	"github.com/gravitational/kubeface/internal/naming"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// Snapshot is the one struct rendered into both the JSON and the HTML
// status page, per spec.md §6's "one struct, two marshaled views".
type Snapshot struct {
	Backend              string    `json:"backend"`
	JobName              string    `json:"job_name"`
	CacheKey             string    `json:"cache_key"`
	MaxSimultaneousTasks int       `json:"max_simultaneous_tasks"`
	NumTasks             *int      `json:"num_tasks"`
	StartTime            time.Time `json:"start_time"`
	SubmittedTasks       []string  `json:"submitted_tasks"`
	CompletedTasks       []string  `json:"completed_tasks"`
	RunningTasks         []string  `json:"running_tasks"`
	ReusedTasks          []string  `json:"reused_tasks"`
}

var pageTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>kubeface job {{.JobName}}</title></head>
<body>
<h1>{{.JobName}}</h1>
<table>
<tr><th>backend</th><td>{{.Backend}}</td></tr>
<tr><th>cache key</th><td>{{.CacheKey}}</td></tr>
<tr><th>max simultaneous tasks</th><td>{{.MaxSimultaneousTasks}}</td></tr>
<tr><th>num tasks</th><td>{{if .NumTasks}}{{.NumTasks}}{{else}}unknown{{end}}</td></tr>
<tr><th>start time</th><td>{{.StartTime}}</td></tr>
<tr><th>submitted</th><td>{{len .SubmittedTasks}}</td></tr>
<tr><th>completed</th><td>{{len .CompletedTasks}}</td></tr>
<tr><th>reused</th><td>{{len .ReusedTasks}}</td></tr>
<tr><th>running</th><td>{{len .RunningTasks}}</td></tr>
</table>
<h2>running tasks</h2>
<ul>
{{range .RunningTasks}}<li>{{.}}</li>
{{end}}</ul>
</body>
</html>
`))

// Writer publishes Snapshots for one job as a JSON blob and an HTML
// blob, both named by the status-page schema with StatusActive. Moving
// them to StatusDone is done by the package-level MarkDone.
type Writer struct {
	store   blobstore.Store
	jobName string

	mu         sync.Mutex
	publishing bool
	pending    *Snapshot
}

// New returns a Writer for jobName.
func New(store blobstore.Store, jobName string) *Writer {
	return &Writer{store: store, jobName: jobName}
}

// Publish renders snap into both status pages. It never blocks the
// caller on slow storage: if a publish is already in flight, snap is
// recorded and flushed by the in-flight publish instead of starting a
// second one, grounded on spec.md §5's "at most one outstanding
// publish" guidance.
func (w *Writer) Publish(ctx context.Context, snap *Snapshot) {
	w.mu.Lock()
	if w.publishing {
		w.pending = snap
		w.mu.Unlock()
		return
	}
	w.publishing = true
	w.mu.Unlock()

	go w.drain(ctx, snap)
}

func (w *Writer) drain(ctx context.Context, snap *Snapshot) {
	for snap != nil {
		if err := w.write(ctx, naming.StatusActive, snap); err != nil {
			log.WithError(err).WithField("job_name", w.jobName).Warn("status page publish failed")
		}
		w.mu.Lock()
		snap = w.pending
		w.pending = nil
		if snap == nil {
			w.publishing = false
		}
		w.mu.Unlock()
	}
}

// PublishSync renders snap synchronously, bypassing coalescing. Used for
// the first publish at job construction time, where the caller needs to
// know the initial pages exist before continuing.
func (w *Writer) PublishSync(ctx context.Context, snap *Snapshot) error {
	return w.write(ctx, naming.StatusActive, snap)
}

func (w *Writer) write(ctx context.Context, status naming.StatusKind, snap *Snapshot) error {
	jsonBytes, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return trace.Wrap(err)
	}
	jsonName, err := naming.MakeStatusPageName(status, naming.StatusJSON, w.jobName)
	if err != nil {
		return trace.Wrap(err)
	}
	if err := w.store.Put(ctx, jsonName, bytes.NewReader(jsonBytes), "application/json"); err != nil {
		return trace.Wrap(err, "publishing json status page for %q", w.jobName)
	}

	var htmlBuf bytes.Buffer
	if err := pageTemplate.Execute(&htmlBuf, snap); err != nil {
		return trace.Wrap(err)
	}
	htmlName, err := naming.MakeStatusPageName(status, naming.StatusHTML, w.jobName)
	if err != nil {
		return trace.Wrap(err)
	}
	if err := w.store.Put(ctx, htmlName, &htmlBuf, "text/html"); err != nil {
		return trace.Wrap(err, "publishing html status page for %q", w.jobName)
	}
	return nil
}

// MarkDone renames both status blobs of jobName from active to done. It
// is idempotent: if the active blobs are already gone (because a prior
// call already renamed them), it logs and returns nil, per spec.md
// §4.5's "logs already-done entries".
func MarkDone(ctx context.Context, store blobstore.Store, jobName string) error {
	for _, format := range []naming.StatusFormat{naming.StatusJSON, naming.StatusHTML} {
		activeName, err := naming.MakeStatusPageName(naming.StatusActive, format, jobName)
		if err != nil {
			return trace.Wrap(err)
		}
		doneName, err := naming.MakeStatusPageName(naming.StatusDone, format, jobName)
		if err != nil {
			return trace.Wrap(err)
		}
		err = store.Move(ctx, activeName, doneName)
		if trace.IsNotFound(err) {
			log.WithField("job_name", jobName).Info("status page already marked done")
			continue
		}
		if err != nil {
			return trace.Wrap(err, "marking %q done", jobName)
		}
	}
	return nil
}
