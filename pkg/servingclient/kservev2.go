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
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/kserve/infravalidator/pkg/requestbuilder"
)

// KServeV2Client uses the REST binding of the Open Inference Protocol.
type KServeV2Client struct {
	Address    string
	ModelName  string
	HTTPClient *http.Client
}

var _ Client = (*KServeV2Client)(nil)

func NewKServeV2Client(address string, modelName string, httpClient *http.Client) *KServeV2Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &KServeV2Client{Address: address, ModelName: modelName, HTTPClient: httpClient}
}

func (c *KServeV2Client) modelURL() string {
	return fmt.Sprintf("%s/v2/models/%s", baseURL(c.Address), url.PathEscape(c.ModelName))
}

func (c *KServeV2Client) Ready(ctx context.Context) (bool, error) {
	resp, err := do(ctx, c.HTTPClient, http.MethodGet, c.modelURL()+"/ready", nil, nil)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.V(1).Info("Model server not reachable yet", "address", c.Address, "error", err.Error())
		return false, nil
	}
	if resp.statusCode != http.StatusOK {
		return false, nil
	}
	if gjson.ValidBytes(resp.body) {
		if ready := gjson.GetBytes(resp.body, "ready"); ready.Exists() {
			return ready.Bool(), nil
		}
	}
	return true, nil
}

func (c *KServeV2Client) Send(ctx context.Context, request requestbuilder.Request) error {
	header := http.Header{"Content-Type": []string{ContentTypeJSON}}
	if request.HeaderLength > 0 {
		header.Set("Content-Type", ContentTypeOctetStream)
		header.Set(InferenceHeaderContentLength, strconv.Itoa(request.HeaderLength))
	}
	resp, err := do(ctx, c.HTTPClient, http.MethodPost, c.modelURL()+"/infer", request.Body, header)
	if err != nil {
		return err
	}
	if resp.statusCode != http.StatusOK {
		return &RequestError{StatusCode: resp.statusCode, Message: errorMessage(resp.jsonHeader())}
	}
	if message := gjson.GetBytes(resp.jsonHeader(), "error"); message.Exists() {
		return &RequestError{StatusCode: resp.statusCode, Message: message.String()}
	}
	return nil
}
