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
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onsi/gomega"

	"github.com/kserve/infravalidator/pkg/requestbuilder"
)

func tfServingServer(t *testing.T, status string, statusCode int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/models/resnet":
			w.WriteHeader(statusCode)
			_, _ = io.WriteString(w, status)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/models/resnet:classify":
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), "examples") {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error": "missing examples"}`)
				return
			}
			_, _ = io.WriteString(w, `{"results": [[["0", 0.9]]]}`)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/models/resnet:predict":
			_, _ = io.WriteString(w, `{"error": "Expected tensor name: examples"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestTFServingReady(t *testing.T) {
	scenarios := map[string]struct {
		status      string
		statusCode  int
		expected    bool
		expectedErr error
	}{
		"available": {
			status:     `{"model_version_status": [{"version": "1", "state": "AVAILABLE", "status": {"error_code": "OK"}}]}`,
			statusCode: http.StatusOK,
			expected:   true,
		},
		"loading": {
			status:     `{"model_version_status": [{"version": "1", "state": "LOADING", "status": {"error_code": "OK"}}]}`,
			statusCode: http.StatusOK,
		},
		"notFoundYet": {
			status:     `{"error": "Could not find any versions of model resnet"}`,
			statusCode: http.StatusNotFound,
		},
		"loadFailed": {
			status: `{"model_version_status": [{"version": "1", "state": "END",
				"status": {"error_code": "INVALID_ARGUMENT", "error_message": "bad graph"}}]}`,
			statusCode:  http.StatusOK,
			expectedErr: ErrModelLoadFailed,
		},
		"unloadedCleanly": {
			status:     `{"model_version_status": [{"version": "1", "state": "END", "status": {"error_code": "OK"}}]}`,
			statusCode: http.StatusOK,
		},
	}
	for name, scenario := range scenarios {
		t.Run(name, func(t *testing.T) {
			g := gomega.NewGomegaWithT(t)
			server := tfServingServer(t, scenario.status, scenario.statusCode)
			defer server.Close()

			client := NewTFServingClient(strings.TrimPrefix(server.URL, "http://"), "resnet", server.Client())
			ready, err := client.Ready(context.Background())
			if scenario.expectedErr != nil {
				g.Expect(errors.Is(err, scenario.expectedErr)).To(gomega.BeTrue())
				g.Expect(err.Error()).To(gomega.ContainSubstring("bad graph"))
				return
			}
			g.Expect(err).NotTo(gomega.HaveOccurred())
			g.Expect(ready).To(gomega.Equal(scenario.expected))
		})
	}
}

func TestTFServingReadyUnreachable(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	server := httptest.NewServer(http.NotFoundHandler())
	address := strings.TrimPrefix(server.URL, "http://")
	server.Close()

	ready, err := NewTFServingClient(address, "resnet", nil).Ready(context.Background())
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(ready).To(gomega.BeFalse())
}

func TestTFServingSend(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	server := tfServingServer(t, "", http.StatusOK)
	defer server.Close()
	client := NewTFServingClient(strings.TrimPrefix(server.URL, "http://"), "resnet", server.Client())

	err := client.Send(context.Background(), requestbuilder.Request{
		Method: requestbuilder.Classify,
		Body:   []byte(`{"signature_name": "classification", "examples": [{}]}`),
	})
	g.Expect(err).NotTo(gomega.HaveOccurred())

	err = client.Send(context.Background(), requestbuilder.Request{
		Method: requestbuilder.Classify,
		Body:   []byte(`{"signature_name": "classification"}`),
	})
	var requestErr *RequestError
	g.Expect(errors.As(err, &requestErr)).To(gomega.BeTrue())
	g.Expect(requestErr.StatusCode).To(gomega.Equal(http.StatusBadRequest))
	g.Expect(requestErr.Message).To(gomega.Equal("missing examples"))

	err = client.Send(context.Background(), requestbuilder.Request{Method: requestbuilder.Predict, Body: []byte(`{}`)})
	g.Expect(errors.As(err, &requestErr)).To(gomega.BeTrue())
	g.Expect(requestErr.Message).To(gomega.ContainSubstring("Expected tensor name"))

	err = client.Send(context.Background(), requestbuilder.Request{Method: requestbuilder.Regress, Body: []byte(`{}`)})
	g.Expect(errors.As(err, &requestErr)).To(gomega.BeTrue())
	g.Expect(requestErr.StatusCode).To(gomega.Equal(http.StatusNotFound))
}

func TestSendHonoursDeadline(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	client := NewTFServingClient(strings.TrimPrefix(server.URL, "http://"), "resnet", server.Client())
	err := client.Send(ctx, requestbuilder.Request{Method: requestbuilder.Predict, Body: []byte(`{}`)})
	g.Expect(errors.Is(err, context.DeadlineExceeded)).To(gomega.BeTrue())
}
