/*
Copyright 2025 The KServe Authors.

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

package servingclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kserve/infravalidator/pkg/requestbuilder"
)

func TestKServeV2Ready(t *testing.T) {
	scenarios := map[string]struct {
		statusCode int
		body       string
		expected   bool
	}{
		"tritonEmptyBody":  {statusCode: http.StatusOK, expected: true},
		"kserveReadyTrue":  {statusCode: http.StatusOK, body: `{"name": "resnet", "ready": true}`, expected: true},
		"kserveReadyFalse": {statusCode: http.StatusOK, body: `{"name": "resnet", "ready": false}`},
		"unavailable":      {statusCode: http.StatusBadRequest, body: `{"error": "model not ready"}`},
	}
	for name, scenario := range scenarios {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v2/models/resnet/ready" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.WriteHeader(scenario.statusCode)
				_, _ = io.WriteString(w, scenario.body)
			}))
			defer server.Close()

			client := NewKServeV2Client(strings.TrimPrefix(server.URL, "http://"), "resnet", server.Client())
			ready, err := client.Ready(context.Background())
			require.NoError(t, err)
			assert.Equal(t, scenario.expected, ready)
		})
	}
}

func TestKServeV2Send(t *testing.T) {
	var gotContentType, gotHeaderLength string
	var gotBody []byte
	fail := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/models/resnet/infer" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotContentType = r.Header.Get("Content-Type")
		gotHeaderLength = r.Header.Get(InferenceHeaderContentLength)
		gotBody, _ = io.ReadAll(r.Body)
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error": "unexpected shape for input 'examples'"}`)
			return
		}
		header := `{"model_name": "resnet", "outputs": [{"name": "scores", "datatype": "FP32", "shape": [1], "parameters": {"binary_data_size": 4}}]}`
		w.Header().Set(InferenceHeaderContentLength, strconv.Itoa(len(header)))
		_, _ = io.WriteString(w, header+"\x00\x00\x80\x3f")
	}))
	defer server.Close()
	client := NewKServeV2Client(strings.TrimPrefix(server.URL, "http://"), "resnet", server.Client())

	request := requestbuilder.Request{Body: []byte(`{"inputs":[]}binary`), HeaderLength: len(`{"inputs":[]}`)}
	require.NoError(t, client.Send(context.Background(), request))
	assert.Equal(t, ContentTypeOctetStream, gotContentType)
	assert.Equal(t, strconv.Itoa(request.HeaderLength), gotHeaderLength)
	assert.Equal(t, request.Body, gotBody)

	require.NoError(t, client.Send(context.Background(), requestbuilder.Request{Body: []byte(`{"inputs":[]}`)}))
	assert.Equal(t, ContentTypeJSON, gotContentType)
	assert.Empty(t, gotHeaderLength)

	fail = true
	err := client.Send(context.Background(), request)
	var requestErr *RequestError
	require.ErrorAs(t, err, &requestErr)
	assert.Equal(t, http.StatusBadRequest, requestErr.StatusCode)
	assert.Contains(t, requestErr.Message, "unexpected shape")
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"error": "boom"}`)))
	assert.Equal(t, "plain text", errorMessage([]byte("plain text")))
	assert.Len(t, errorMessage([]byte(strings.Repeat("x", 5000))), maxResponseBodyForDiagnostics)
}
