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

package naming

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/gravitational/kubeface/internal/defaults"
	"github.com/gravitational/trace"
)

// ResultType is the outcome tag the worker stamps onto a result blob name.
type ResultType string

const (
	// ResultValue marks a successful task completion.
	ResultValue ResultType = "value"
	// ResultException marks a task that raised a user-level error.
	ResultException ResultType = "exception"
)

// StatusKind distinguishes an in-progress job's status page from a torn
// down one.
type StatusKind string

const (
	// StatusActive marks a running job's status pages.
	StatusActive StatusKind = "active"
	// StatusDone marks a finished job's status pages.
	StatusDone StatusKind = "done"
)

// StatusFormat selects which rendering of a status page a blob holds.
type StatusFormat string

const (
	// StatusJSON is the machine-readable status page format.
	StatusJSON StatusFormat = "json"
	// StatusHTML is the human-readable status page format.
	StatusHTML StatusFormat = "html"
)

func nonEmpty(value string) error {
	if value == "" {
		return trace.BadParameter("empty value")
	}
	return nil
}

var (
	// CacheKeySchema matches {cache_key_prefix}-{NNN}.
	CacheKeySchema = NewSchema(
		Field{Name: "cache_key_prefix", Validate: nonEmpty},
		"-",
		Field{Name: "job_index", Validate: nonEmpty},
	)

	// JobNameSchema matches {cache_key}::{random8}.
	JobNameSchema = NewSchema(
		Field{Name: "cache_key", Validate: nonEmpty},
		defaults.NamePartSeparator,
		Field{Name: "random_suffix", Validate: nonEmpty},
	)

	// TaskNameSchema matches {cache_key}::{task_num}.
	TaskNameSchema = NewSchema(
		Field{Name: "cache_key", Validate: nonEmpty},
		defaults.NamePartSeparator,
		Field{Name: "task_num", Validate: nonEmpty},
	)

	// InputBlobSchema matches input::{task_name}.
	InputBlobSchema = NewSchema(
		"input"+defaults.NamePartSeparator,
		Field{Name: "task_name", Validate: nonEmpty},
	)

	// ResultBlobSchema matches
	// result::{task_name}::{attempt_num}::{queue_time}::{result_type}::{result_time}.
	ResultBlobSchema = NewSchema(
		"result"+defaults.NamePartSeparator,
		Field{Name: "task_name", Validate: nonEmpty},
		defaults.NamePartSeparator,
		Field{Name: "attempt_num", Validate: nonEmpty},
		defaults.NamePartSeparator,
		Field{Name: "queue_time", Validate: nonEmpty},
		defaults.NamePartSeparator,
		Field{Name: "result_type", Kind: Enum, Values: []string{string(ResultValue), string(ResultException)}},
		defaults.NamePartSeparator,
		Field{Name: "result_time", Validate: nonEmpty},
	)

	// StatusPageSchema matches {status}::{format}::{job_name}.{format}.
	//
	// The trailing extension repeats the format field. The schema itself
	// does not tie the two together: MakeStatusPageName builds both from
	// one value, and ParseStatusPageName rejects names where they differ.
	StatusPageSchema = NewSchema(
		Field{Name: "status", Kind: Enum, Values: []string{string(StatusActive), string(StatusDone)}},
		defaults.NamePartSeparator,
		Field{Name: "format", Kind: Enum, Values: []string{string(StatusJSON), string(StatusHTML)}},
		defaults.NamePartSeparator,
		Field{Name: "job_name_and_ext", Validate: nonEmpty},
	)
)

// MakeCacheKey renders the cache key for the job_index'th job spawned by
// a driver using cacheKeyPrefix.
func MakeCacheKey(cacheKeyPrefix string, jobIndex int) (string, error) {
	return CacheKeySchema.MakeString(map[string]string{
		"cache_key_prefix": cacheKeyPrefix,
		"job_index":        fmt.Sprintf("%0*d", defaults.JobIndexWidth, jobIndex),
	})
}

// MakeJobName renders the job name for the given cache key.
func MakeJobName(cacheKey string) (string, error) {
	suffix, err := RandomHex(defaults.JobNameRandomSuffixBytes)
	if err != nil {
		return "", trace.Wrap(err)
	}
	return JobNameSchema.MakeString(map[string]string{
		"cache_key":     cacheKey,
		"random_suffix": suffix,
	})
}

// MakeTaskName renders the name of the taskNum'th task of the job with
// the given cache key.
func MakeTaskName(cacheKey string, taskNum int) (string, error) {
	return TaskNameSchema.MakeString(map[string]string{
		"cache_key": cacheKey,
		"task_num":  strconv.Itoa(taskNum),
	})
}

// ParseTaskName recovers the cache key and task number from a task name.
func ParseTaskName(taskName string) (cacheKey string, taskNum int, err error) {
	fields, err := TaskNameSchema.Parse(taskName)
	if err != nil {
		return "", 0, trace.Wrap(err)
	}
	n, err := strconv.Atoi(fields["task_num"])
	if err != nil {
		return "", 0, trace.Wrap(err, "invalid task_num in %q", taskName)
	}
	return fields["cache_key"], n, nil
}

// MakeInputBlobName renders the input blob name for a task.
func MakeInputBlobName(taskName string) (string, error) {
	return InputBlobSchema.MakeString(map[string]string{"task_name": taskName})
}

// ResultBlobTemplate is a partially filled-in result blob name: the
// driver knows task_name and attempt_num at submission time; the worker
// fills in result_type and result_time once it knows them.
type ResultBlobTemplate struct {
	TaskName   string
	AttemptNum int
	QueueTime  int64
}

// Fill completes the template with the fields only the worker can supply.
func (t ResultBlobTemplate) Fill(resultType ResultType, resultTime int64) (string, error) {
	return ResultBlobSchema.MakeString(map[string]string{
		"task_name":   t.TaskName,
		"attempt_num": strconv.Itoa(t.AttemptNum),
		"queue_time":  strconv.FormatInt(t.QueueTime, 10),
		"result_type": string(resultType),
		"result_time": strconv.FormatInt(resultTime, 10),
	})
}

// ParsedResultBlob is a fully-parsed result blob name.
type ParsedResultBlob struct {
	TaskName   string
	AttemptNum int
	QueueTime  int64
	ResultType ResultType
	ResultTime int64
}

// ParseResultBlobName parses a complete result blob name.
func ParseResultBlobName(name string) (*ParsedResultBlob, error) {
	// task_name itself contains "::", so the four trailing fields are
	// split off from the right.
	rest := strings.TrimPrefix(name, "result"+defaults.NamePartSeparator)
	parts := strings.Split(rest, defaults.NamePartSeparator)
	if rest == name || len(parts) < 5 {
		return nil, trace.BadParameter("name %q does not match the result blob schema", name)
	}
	tail := parts[len(parts)-4:]
	fields := map[string]string{"task_name": strings.Join(parts[:len(parts)-4], defaults.NamePartSeparator),
		"attempt_num": tail[0], "queue_time": tail[1], "result_type": tail[2], "result_time": tail[3]}
	if _, err := ResultBlobSchema.MakeString(fields); err != nil {
		return nil, trace.Wrap(err, "name %q", name)
	}
	attempt, err := strconv.Atoi(fields["attempt_num"])
	if err != nil {
		return nil, trace.Wrap(err, "invalid attempt_num in %q", name)
	}
	queueTime, err := strconv.ParseInt(fields["queue_time"], 10, 64)
	if err != nil {
		return nil, trace.Wrap(err, "invalid queue_time in %q", name)
	}
	resultTime, err := strconv.ParseInt(fields["result_time"], 10, 64)
	if err != nil {
		return nil, trace.Wrap(err, "invalid result_time in %q", name)
	}
	return &ParsedResultBlob{
		TaskName:   fields["task_name"],
		AttemptNum: attempt,
		QueueTime:  queueTime,
		ResultType: ResultType(fields["result_type"]),
		ResultTime: resultTime,
	}, nil
}

// ResultPrefixForTaskName returns the literal prefix under which every
// result blob (any attempt) for a single task lives.
func ResultPrefixForTaskName(taskName string) string {
	return "result" + defaults.NamePartSeparator + taskName + defaults.NamePartSeparator
}

// ResultPrefixForCacheKey returns the literal prefix under which every
// result blob for every task sharing cacheKey lives.
func ResultPrefixForCacheKey(cacheKey string) string {
	return "result" + defaults.NamePartSeparator + cacheKey + defaults.NamePartSeparator
}

// InputPrefixForCacheKey returns the literal prefix under which every
// input blob for every task sharing cacheKey lives.
func InputPrefixForCacheKey(cacheKey string) string {
	return "input" + defaults.NamePartSeparator + cacheKey + defaults.NamePartSeparator
}

// MakeStatusPageName renders one of the two status blobs for a job.
func MakeStatusPageName(status StatusKind, format StatusFormat, jobName string) (string, error) {
	return StatusPageSchema.MakeString(map[string]string{
		"status":           string(status),
		"format":           string(format),
		"job_name_and_ext": fmt.Sprintf("%s.%s", jobName, format),
	})
}

// StatusPagePrefix returns the literal prefix for every status blob of
// the given status and format.
func StatusPagePrefix(status StatusKind, format StatusFormat) string {
	return string(status) + defaults.NamePartSeparator + string(format) + defaults.NamePartSeparator
}

// ParsedStatusPage is a fully-parsed status page blob name.
type ParsedStatusPage struct {
	Status  StatusKind
	Format  StatusFormat
	JobName string
}

// ParseStatusPageName parses a complete status page blob name.
func ParseStatusPageName(name string) (*ParsedStatusPage, error) {
	fields, err := StatusPageSchema.Parse(name)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	format := fields["format"]
	ext := "." + format
	nameAndExt := fields["job_name_and_ext"]
	if len(nameAndExt) <= len(ext) || nameAndExt[len(nameAndExt)-len(ext):] != ext {
		return nil, trace.BadParameter("status page name %q missing .%s extension", name, format)
	}
	return &ParsedStatusPage{
		Status:  StatusKind(fields["status"]),
		Format:  StatusFormat(format),
		JobName: nameAndExt[:len(nameAndExt)-len(ext)],
	}, nil
}

// GenerateCacheKeyPrefix synthesizes a driver-local identifier from host,
// user, timestamp and a short random suffix, grounded on the teacher's
// lib/kubernetes.MakeJobName convention of appending a random fragment to
// a human-readable prefix.
func GenerateCacheKeyPrefix(now time.Time) (string, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	username := "unknown-user"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	}
	suffix, err := RandomHex(4)
	if err != nil {
		return "", trace.Wrap(err)
	}
	return fmt.Sprintf("kubeface-%s-%s-%d-%s", sanitize(username), sanitize(host), now.Unix(), suffix), nil
}

func sanitize(s string) string {
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
	return string(out)
}

// RandomHex returns n random bytes hex-encoded (2n characters), the one
// source of short unique suffixes used throughout naming and by backends
// that need a Kubernetes-legal random suffix of their own (clusterpod).
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", trace.Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}
