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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/kserve/infravalidator/pkg/requestbuilder"
)

var log = logf.Log.WithName("servingclient")

// ErrModelLoadFailed is returned by Ready once the server reports that the model will never become available.
var ErrModelLoadFailed = errors.New("model failed to load")

const (
	ContentTypeJSON               = "application/json"
	ContentTypeOctetStream        = "application/octet-stream"
	InferenceHeaderContentLength  = "Inference-Header-Content-Length"
	maxResponseBodyForDiagnostics = 1024
)

// Client talks to a running model server.
type Client interface {
	// Ready is a single cheap check of whether the model can serve requests. A server that cannot be
	// reached yet is reported as not ready without error.
	Ready(ctx context.Context) (bool, error)
	// Send issues one request and fails unless the server answered it successfully.
	Send(ctx context.Context, request requestbuilder.Request) error
}

// RequestError is a request the server answered with a failure.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("server responded with status %d: %s", e.StatusCode, e.Message)
}

type response struct {
	statusCode int
	header     http.Header
	body       []byte
}

func do(ctx context.Context, client *http.Client, method string, url string, body []byte, header http.Header) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create request for %s", url)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s failed", method, url)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Error(closeErr, "failed to close body")
		}
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read response of %s %s", method, url)
	}
	return &response{statusCode: resp.StatusCode, header: resp.Header, body: data}, nil
}

// errorMessage extracts the "error" field both servers use for failures, or a prefix of the raw body.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		if message := gjson.GetBytes(body, "error"); message.Exists() {
			return message.String()
		}
	}
	if len(body) > maxResponseBodyForDiagnostics {
		body = body[:maxResponseBodyForDiagnostics]
	}
	return string(body)
}

// jsonHeader returns the JSON part of a response that may use the binary tensor extension.
func (r *response) jsonHeader() []byte {
	if value := r.header.Get(InferenceHeaderContentLength); value != "" {
		if length, err := strconv.Atoi(value); err == nil && length >= 0 && length <= len(r.body) {
			return r.body[:length]
		}
	}
	return r.body
}

func baseURL(address string) string {
	return "http://" + address
}
