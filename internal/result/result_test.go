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

package result

import (
	"testing"

	"github.com/gravitational/kubeface/internal/naming"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := &Envelope{
		StartTime:   1000,
		EndTime:     1010,
		InputSize:   42,
		ResultType:  naming.ResultValue,
		ReturnValue: []byte("encoded-value"),
		ProcessInfo: "pid=1",
	}
	data, err := Encode(e)
	require.NoError(t, err)

	decoded, err := DecodeFromBlob(data, "result::x::0::1000::value::1010")
	require.NoError(t, err)
	require.Equal(t, e.StartTime, decoded.StartTime)
	require.Equal(t, e.ReturnValue, decoded.ReturnValue)
	require.Equal(t, int64(10), decoded.RunSeconds())
	require.Equal(t, "result::x::0::1000::value::1010", decoded.SourceBlobName())
	require.Equal(t, int64(len(data)), decoded.SourceBlobSize())
	require.Nil(t, decoded.RaiseIfError())
}

func TestRaiseIfErrorReturnsCarriedError(t *testing.T) {
	e := &Envelope{
		ResultType: naming.ResultException,
		Err:        &DriverError{Kind: "ZeroDivisionError", Message: "division by zero", Stack: "line 1\nline 2"},
	}
	err := e.RaiseIfError()
	require.Error(t, err)
	require.Contains(t, err.Error(), "division by zero")
}
