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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskNameRoundTrip(t *testing.T) {
	name, err := MakeTaskName("abc-007", 42)
	require.NoError(t, err)
	require.Equal(t, "abc-007::42", name)

	cacheKey, taskNum, err := ParseTaskName(name)
	require.NoError(t, err)
	require.Equal(t, "abc-007", cacheKey)
	require.Equal(t, 42, taskNum)
}

func TestCacheKey(t *testing.T) {
	key, err := MakeCacheKey("myprefix", 7)
	require.NoError(t, err)
	require.Equal(t, "myprefix-007", key)
}

func TestResultBlobRoundTrip(t *testing.T) {
	taskName, err := MakeTaskName("abc-007", 1)
	require.NoError(t, err)

	tmpl := ResultBlobTemplate{TaskName: taskName, AttemptNum: 0, QueueTime: 1000}
	name, err := tmpl.Fill(ResultValue, 1005)
	require.NoError(t, err)

	parsed, err := ParseResultBlobName(name)
	require.NoError(t, err)
	require.Equal(t, taskName, parsed.TaskName)
	require.Equal(t, 0, parsed.AttemptNum)
	require.Equal(t, int64(1000), parsed.QueueTime)
	require.Equal(t, ResultValue, parsed.ResultType)
	require.Equal(t, int64(1005), parsed.ResultTime)
}

func TestResultBlobRejectsBadResultType(t *testing.T) {
	_, err := ResultBlobSchema.MakeString(map[string]string{
		"task_name":   "t",
		"attempt_num": "0",
		"queue_time":  "0",
		"result_type": "bogus",
		"result_time": "0",
	})
	require.Error(t, err)
}

func TestStatusPageRoundTrip(t *testing.T) {
	name, err := MakeStatusPageName(StatusActive, StatusJSON, "abc-007::ff00ff00")
	require.NoError(t, err)
	require.Equal(t, "active::json::abc-007::ff00ff00.json", name)

	parsed, err := ParseStatusPageName(name)
	require.NoError(t, err)
	require.Equal(t, StatusActive, parsed.Status)
	require.Equal(t, StatusJSON, parsed.Format)
	require.Equal(t, "abc-007::ff00ff00", parsed.JobName)
}

func TestPrefixEnumeratesSmallEnum(t *testing.T) {
	prefixes, err := StatusPageSchema.Prefix(map[string]string{}, 100)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		"active::json::", "active::html::", "done::json::", "done::html::",
	}, prefixes)
}

func TestPrefixCollapsesWhenCapExceeded(t *testing.T) {
	prefixes, err := StatusPageSchema.Prefix(map[string]string{}, 2)
	require.NoError(t, err)
	// The two status values fit the cap of 2; the four status×format
	// combinations do not, so format collapses to the empty common prefix
	// of "html" and "json" and enumeration stops after status.
	require.Equal(t, []string{"active::", "done::"}, prefixes)
}

func TestPrefixWithKnownStatusLeavesFormatToEnumerate(t *testing.T) {
	prefixes, err := StatusPageSchema.Prefix(map[string]string{"status": "active"}, 100)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"active::json::", "active::html::"}, prefixes)
}

func TestPrefixStopsAtUnknownArbitraryField(t *testing.T) {
	prefixes, err := ResultBlobSchema.Prefix(map[string]string{}, 100)
	require.NoError(t, err)
	require.Equal(t, []string{"result::"}, prefixes)
}

func TestPrefixForTaskResultsResolvesThroughArbitraryField(t *testing.T) {
	prefixes, err := ResultBlobSchema.Prefix(map[string]string{"task_name": "abc-007::3"}, 100)
	require.NoError(t, err)
	require.Equal(t, []string{"result::abc-007::3::"}, prefixes)
}

func TestMakeStringMissingField(t *testing.T) {
	_, err := TaskNameSchema.MakeString(map[string]string{"cache_key": "x"})
	require.Error(t, err)
}

func TestParseRejectsWrongShape(t *testing.T) {
	_, err := TaskNameSchema.Parse("not-a-task-name")
	require.Error(t, err)
}

func TestGenerateCacheKeyPrefixIsSanitized(t *testing.T) {
	prefix, err := GenerateCacheKeyPrefix(time.Now())
	require.NoError(t, err)
	require.Contains(t, prefix, "kubeface-")
	for _, r := range prefix {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-'
		require.True(t, ok, "unexpected rune %q in %q", r, prefix)
	}
}
