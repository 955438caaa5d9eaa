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
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/kserve/infravalidator/pkg/requestbuilder"
)

// Model version states of the TensorFlow Serving model status API.
const (
	TFServingStateAvailable = "AVAILABLE"
	TFServingStateEnd       = "END"
	TFServingStatusOK       = "OK"
)

// TFServingClient uses the TensorFlow Serving REST API.
type TFServingClient struct {
	Address    string
	ModelName  string
	HTTPClient *http.Client
}

var _ Client = (*TFServingClient)(nil)

func NewTFServingClient(address string, modelName string, httpClient *http.Client) *TFServingClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &TFServingClient{Address: address, ModelName: modelName, HTTPClient: httpClient}
}

func (c *TFServingClient) modelURL() string {
	return fmt.Sprintf("%s/v1/models/%s", baseURL(c.Address), url.PathEscape(c.ModelName))
}

// Ready queries the model status; the model is ready once any version is AVAILABLE and has failed when
// every reported version ended with an error.
func (c *TFServingClient) Ready(ctx context.Context) (bool, error) {
	resp, err := do(ctx, c.HTTPClient, http.MethodGet, c.modelURL(), nil, nil)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.V(1).Info("Model server not reachable yet", "address", c.Address, "error", err.Error())
		return false, nil
	}
	if resp.statusCode != http.StatusOK {
		log.V(1).Info("Model status not available yet", "model", c.ModelName, "status", resp.statusCode)
		return false, nil
	}

	statuses := gjson.GetBytes(resp.body, "model_version_status").Array()
	if len(statuses) == 0 {
		return false, nil
	}
	failed := 0
	var lastFailure string
	for _, status := range statuses {
		state := status.Get("state").String()
		if state == TFServingStateAvailable {
			return true, nil
		}
		errorCode := status.Get("status.error_code").String()
		if state == TFServingStateEnd && errorCode != "" && errorCode != TFServingStatusOK {
			failed++
			lastFailure = fmt.Sprintf("version %s: %s %s", status.Get("version").String(), errorCode,
				status.Get("status.error_message").String())
		}
	}
	if failed == len(statuses) {
		return false, errors.Wrap(ErrModelLoadFailed, lastFailure)
	}
	return false, nil
}

func (c *TFServingClient) Send(ctx context.Context, request requestbuilder.Request) error {
	endpoint := fmt.Sprintf("%s:%s", c.modelURL(), request.Method.String())
	header := http.Header{"Content-Type": []string{ContentTypeJSON}}
	resp, err := do(ctx, c.HTTPClient, http.MethodPost, endpoint, request.Body, header)
	if err != nil {
		return err
	}
	if resp.statusCode != http.StatusOK {
		return &RequestError{StatusCode: resp.statusCode, Message: errorMessage(resp.body)}
	}
	if message := gjson.GetBytes(resp.body, "error"); message.Exists() {
		return &RequestError{StatusCode: resp.statusCode, Message: message.String()}
	}
	return nil
}
