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

// Package worker implements the run-task contract of spec.md §4.9: read
// the input blob, decode the Task, run it, capture the outcome (value or
// error, with a stack trace) into a Result envelope, and write it to the
// resolved result blob path. Grounded on the teacher's
// lib/app/hooks.Runner ("resolve ref, run, report status") shape.
package worker

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io/ioutil"
	"os"
	"runtime/debug"

	"github.com/gravitational/kubeface/internal/blobstore"
	"github.com/gravitational/kubeface/internal/naming"
	"github.com/gravitational/kubeface/internal/result"
	"github.com/gravitational/kubeface/internal/task"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// Config holds what Run needs beyond the task/result blob names
// themselves.
type Config struct {
	Store      blobstore.Store
	TaskName   string
	InputBlob  string
	ResultTmpl naming.ResultBlobTemplate

	// DeleteInputOnSuccess removes the input blob once a ResultValue
	// envelope has been durably written, per spec.md §4.9's "optionally
	// deletes the input blob on success."
	DeleteInputOnSuccess bool
}

func processInfo() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// Run executes the full worker contract: read input, decode, run,
// package the envelope, write the result blob. It returns an error only
// for failures in the worker plumbing itself (blob I/O, decode) —
// errors raised by the user's task function are captured inside the
// written envelope, never returned here, since a successfully-reported
// user exception is not a worker failure.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("task_name", cfg.TaskName)

	r, err := cfg.Store.Get(ctx, cfg.InputBlob)
	if err != nil {
		return trace.Wrap(err, "reading input blob %q", cfg.InputBlob)
	}
	data, err := ioutil.ReadAll(r)
	r.Close()
	if err != nil {
		return trace.Wrap(err, "reading input blob %q", cfg.InputBlob)
	}

	t, err := task.Decode(data)
	if err != nil {
		return trace.Wrap(err, "decoding task from %q", cfg.InputBlob)
	}

	env := runTask(ctx, t, int64(len(data)))
	env.ProcessInfo = processInfo()
	env.Log(logger)

	encoded, err := result.Encode(env)
	if err != nil {
		return trace.Wrap(err, "encoding result envelope")
	}

	resultName, err := cfg.ResultTmpl.Fill(env.ResultType, result.Now())
	if err != nil {
		return trace.Wrap(err, "resolving result blob name")
	}
	if err := cfg.Store.Put(ctx, resultName, bytes.NewReader(encoded), "application/octet-stream"); err != nil {
		return trace.Wrap(err, "writing result blob %q", resultName)
	}

	if cfg.DeleteInputOnSuccess && env.ResultType == naming.ResultValue {
		if err := cfg.Store.Delete(ctx, cfg.InputBlob); err != nil {
			logger.WithError(err).Warn("failed to delete input blob after success")
		}
	}
	return nil
}

// runTask invokes the task's function over every item, catching both
// returned errors and recovered panics (a user function misbehaving in
// a way Go itself treats as fatal) into a DriverError carrying a stack
// trace, per spec.md §9(b).
func runTask(ctx context.Context, t *task.Task, inputSize int64) *result.Envelope {
	env := &result.Envelope{StartTime: result.Now(), InputSize: inputSize}
	defer func() {
		env.EndTime = result.Now()
	}()

	values, err := safeRun(ctx, t)
	if err != nil {
		env.ResultType = naming.ResultException
		env.Err = err
		return env
	}

	var buf bytes.Buffer
	if encErr := gob.NewEncoder(&buf).Encode(values); encErr != nil {
		env.ResultType = naming.ResultException
		env.Err = &result.DriverError{Kind: "encode-error", Message: encErr.Error()}
		return env
	}
	env.ResultType = naming.ResultValue
	env.ReturnValue = buf.Bytes()
	return env
}

// safeRun wraps task.Run with panic recovery, converting both plain
// errors and recovered panics into a *result.DriverError.
func safeRun(ctx context.Context, t *task.Task) (values []interface{}, driverErr *result.DriverError) {
	defer func() {
		if r := recover(); r != nil {
			driverErr = &result.DriverError{
				Kind:    "panic",
				Message: fmt.Sprintf("%v", r),
				Stack:   string(debug.Stack()),
			}
		}
	}()
	out, err := task.Run(ctx, t)
	if err != nil {
		return nil, &result.DriverError{
			Kind:    "error",
			Message: err.Error(),
			Stack:   trace.DebugReport(err),
		}
	}
	return out, nil
}
