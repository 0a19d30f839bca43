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

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/gravitational/kubeface/internal/blobstore"
	"github.com/gravitational/kubeface/internal/naming"
	"github.com/gravitational/kubeface/internal/storage"
	"github.com/gravitational/kubeface/internal/worker"
	"github.com/gravitational/kubeface/pkg/kubeface"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// Run parses CLI arguments and executes the matching kubeface
// subcommand, grounded on the teacher's tool/gravity/cli.Run
// kingpin-dispatch-by-FullCommand shape (simplified here: every
// subcommand runs in-process, so there is no exec/privilege-switch
// machinery to replicate).
func Run(g *Application) error {
	cmd, err := g.Parse(os.Args[1:])
	if err != nil {
		return trace.Wrap(err)
	}

	if *g.Debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx := context.Background()
	switch cmd {
	case g.MapCmd.FullCommand():
		return runMap(ctx, g)
	case g.JobInfoCmd.FullCommand():
		return runJobInfo(ctx, g)
	case g.CopyCmd.FullCommand():
		return runCopy(ctx, g)
	case g.RunTaskCmd.FullCommand():
		return runRunTask(ctx, g)
	default:
		return trace.BadParameter("unsupported command %q", cmd)
	}
}

func (g *Application) toArgs() *kubeface.Args {
	return &kubeface.Args{
		Storage:                      *g.Storage,
		Backend:                      *g.Backend,
		CacheKeyPrefix:               *g.CacheKeyPrefix,
		MaxSimultaneousTasks:         *g.MaxSimultaneousTasks,
		PollSeconds:                  *g.PollSeconds,
		NeverCleanup:                 *g.NeverCleanup,
		WaitToRaiseTaskException:     *g.WaitToRaiseTaskException,
		SpeculationPercent:           *g.SpeculationPercent,
		SpeculationRuntimePercentile: *g.SpeculationRuntimePercentile,
		SpeculationMaxReruns:         *g.SpeculationMaxReruns,
		WorkerImage:                  *g.WorkerImage,
		WorkerBinaryPath:             *g.WorkerBinaryPath,
		WorkerExtraArgs:              *g.WorkerExtraArgs,
		LocalContainerHostStorageDir: *g.LocalContainerHostStorageDir,
		ClusterPodNamespace:          *g.ClusterPodNamespace,
	}
}

func runMap(ctx context.Context, g *Application) error {
	client, err := kubeface.FromArgs(ctx, g.toArgs())
	if err != nil {
		return trace.Wrap(err)
	}

	items, err := readItems(*g.MapCmd.ItemsFile)
	if err != nil {
		return trace.Wrap(err)
	}

	values, err := client.Map(ctx, *g.MapCmd.FuncName, items, *g.MapCmd.ItemsPerTask)
	if err != nil {
		return trace.Wrap(err)
	}

	enc := json.NewEncoder(os.Stdout)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return trace.Wrap(err, "encoding result")
		}
	}
	return nil
}

// readItems reads one JSON value per line from path ("-" for stdin),
// the same line-delimited convention MapCmd's docs advertise.
func readItems(path string) ([]interface{}, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, trace.Wrap(err, "opening items file %q", path)
		}
		defer f.Close()
		r = f
	}

	var items []interface{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var item interface{}
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return nil, trace.Wrap(err, "parsing item %q", line)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, trace.Wrap(err, "reading items file %q", path)
	}
	return items, nil
}

func runJobInfo(ctx context.Context, g *Application) error {
	store, err := storage.Open(ctx, *g.Storage)
	if err != nil {
		return trace.Wrap(err)
	}

	jobName := *g.JobInfoCmd.JobName
	for _, status := range []naming.StatusKind{naming.StatusActive, naming.StatusDone} {
		name, err := naming.MakeStatusPageName(status, naming.StatusJSON, jobName)
		if err != nil {
			return trace.Wrap(err)
		}
		r, err := store.Get(ctx, name)
		if trace.IsNotFound(err) {
			continue
		}
		if err != nil {
			return trace.Wrap(err)
		}
		defer r.Close()
		_, err = io.Copy(os.Stdout, r)
		return trace.Wrap(err)
	}
	return trace.NotFound("no status page found for job %q", jobName)
}

func runCopy(ctx context.Context, g *Application) error {
	store, err := storage.Open(ctx, *g.Storage)
	if err != nil {
		return trace.Wrap(err)
	}

	src, err := openCopySource(ctx, store, *g.CopyCmd.Source)
	if err != nil {
		return trace.Wrap(err)
	}
	defer src.Close()

	return trace.Wrap(writeCopyDest(ctx, store, *g.CopyCmd.Dest, src))
}

const storagePrefix = "storage:"

func openCopySource(ctx context.Context, store blobstore.Store, source string) (io.ReadCloser, error) {
	if strings.HasPrefix(source, storagePrefix) {
		name := strings.TrimPrefix(source, storagePrefix)
		return store.Get(ctx, name)
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, trace.Wrap(err, "opening %q", source)
	}
	return f, nil
}

func writeCopyDest(ctx context.Context, store blobstore.Store, dest string, src io.Reader) error {
	if strings.HasPrefix(dest, storagePrefix) {
		name := strings.TrimPrefix(dest, storagePrefix)
		return store.Put(ctx, name, src, "application/octet-stream")
	}
	f, err := os.Create(dest)
	if err != nil {
		return trace.Wrap(err, "creating %q", dest)
	}
	defer f.Close()
	_, err = io.Copy(f, src)
	return trace.Wrap(err, "writing %q", dest)
}

func runRunTask(ctx context.Context, g *Application) error {
	store, err := storage.Open(ctx, *g.Storage)
	if err != nil {
		return trace.Wrap(err)
	}

	taskName := *g.RunTaskCmd.TaskName
	tmpl := naming.ResultBlobTemplate{
		TaskName:   taskName,
		AttemptNum: *g.RunTaskCmd.AttemptNum,
		QueueTime:  *g.RunTaskCmd.QueueTime,
	}

	return trace.Wrap(worker.Run(ctx, worker.Config{
		Store:                store,
		TaskName:             taskName,
		InputBlob:            *g.RunTaskCmd.InputBlob,
		ResultTmpl:           tmpl,
		DeleteInputOnSuccess: *g.RunTaskCmd.DeleteInputOnSuccess,
	}))
}
