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

// Package result defines the envelope the worker writes and the driver
// reads: the structured outcome of one task execution.
package result

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/gravitational/kubeface/internal/naming"

	log "github.com/sirupsen/logrus"
)

// DriverError is the Go re-architecture of spec.md §9's "exception value
// round-trip" problem: a language-level error value cannot survive
// serialization in general, so the worker carries a structured
// description instead.
type DriverError struct {
	// Kind is a short classification of the originating error, e.g. a Go
	// type name or a sentinel string supplied by the task.
	Kind string
	// Message is the error's formatted text.
	Message string
	// Stack is the worker-captured stack trace string.
	Stack string
}

// Error implements the error interface.
func (e *DriverError) Error() string {
	if e.Kind == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Envelope is the immutable outcome of one task execution.
type Envelope struct {
	// StartTime and EndTime bound the worker's execution of the task,
	// in Unix seconds.
	StartTime int64
	EndTime   int64
	// InputSize is the byte size of the input blob the worker read.
	InputSize int64
	// ResultType distinguishes a successful completion from a user-level
	// error.
	ResultType naming.ResultType
	// ReturnValue holds the gob-encoded user return value when
	// ResultType is ResultValue.
	ReturnValue []byte
	// Err holds the carried error description when ResultType is
	// ResultException.
	Err *DriverError
	// ProcessInfo is a short, worker-supplied description of where the
	// task ran (hostname, pid, backend-specific identifier), surfaced in
	// logs and status pages.
	ProcessInfo string

	// sourceBlobName and sourceBlobSize are filled in by the driver after
	// it reads the envelope from the blob store (see DecodeFromBlob).
	// They are unexported so gob, which has no notion of an excluded
	// field, never puts them on the wire.
	sourceBlobName string
	sourceBlobSize int64
}

// SourceBlobName returns the name of the blob this envelope was read
// from, or "" if it was never attached via DecodeFromBlob.
func (e *Envelope) SourceBlobName() string { return e.sourceBlobName }

// SourceBlobSize returns the byte size of the blob this envelope was read
// from, or 0 if it was never attached via DecodeFromBlob.
func (e *Envelope) SourceBlobSize() int64 { return e.sourceBlobSize }

// RunSeconds is EndTime - StartTime.
func (e *Envelope) RunSeconds() int64 {
	return e.EndTime - e.StartTime
}

// RaiseIfError returns the carried DriverError if ResultType is
// ResultException, otherwise nil. Named RaiseIfError (rather than Err())
// to mirror the source's raise_if_error and the call sites that expect a
// re-raise rather than a mere accessor.
func (e *Envelope) RaiseIfError() error {
	if e.ResultType == naming.ResultException {
		return e.Err
	}
	return nil
}

// Log emits a formatted multi-line record describing the envelope,
// preferring the captured stack trace over the bare error message when
// one is present, per spec.md §4.3's logging policy.
func (e *Envelope) Log(logger log.FieldLogger) {
	fields := log.Fields{
		"result_type": e.ResultType,
		"run_seconds": e.RunSeconds(),
		"process":     e.ProcessInfo,
	}
	if e.sourceBlobName != "" {
		fields["blob"] = e.sourceBlobName
	}
	if e.ResultType == naming.ResultException && e.Err != nil {
		entry := logger.WithFields(fields)
		if e.Err.Stack != "" {
			entry.Errorf("task failed: %s\n%s", e.Err.Error(), e.Err.Stack)
		} else {
			entry.Errorf("task failed: %s", e.Err.Error())
		}
		return
	}
	logger.WithFields(fields).Debug("task completed")
}

// Encode serializes the envelope with gob, the default serializer for
// the core (see internal/task for the registered-function substitute for
// closure serialization).
func Encode(e *Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes an envelope previously produced by Encode.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DecodeFromBlob deserializes an envelope and augments it with the name
// and size of the blob it came from, per spec.md §4.3: "When deserialized
// from a blob, the envelope is augmented with its source blob name and
// size."
func DecodeFromBlob(data []byte, blobName string) (*Envelope, error) {
	e, err := Decode(data)
	if err != nil {
		return nil, err
	}
	e.sourceBlobName = blobName
	e.sourceBlobSize = int64(len(data))
	return e, nil
}

// Now returns the current Unix time in seconds; a small indirection so
// worker code that stamps StartTime/EndTime is trivially testable.
func Now() int64 {
	return time.Now().Unix()
}
