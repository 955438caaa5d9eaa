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

package requestbuilder

import (
	"encoding/base64"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TFServingBuilder builds TensorFlow Serving REST requests and their PredictionLog warmup records.
type TFServingBuilder struct {
	ModelName string
	Model     *TFSavedModel
}

var _ Builder = (*TFServingBuilder)(nil)

type tfsExamplesRequest struct {
	SignatureName string                   `json:"signature_name"`
	Examples      []map[string]interface{} `json:"examples"`
}

type tfsPredictRequest struct {
	SignatureName string              `json:"signature_name"`
	Instances     []map[string]string `json:"instances"`
}

func conformTFServing(sigDef TFSignatureDef) (TFMethod, error) {
	method, err := NewTFMethod(sigDef.Key, sigDef.MethodName)
	if err != nil {
		return method, &UnsupportedSignatureError{Signature: sigDef.Key, Reason: err.Error()}
	}
	if method == Predict {
		if _, err := predictInput(sigDef); err != nil {
			return method, err
		}
	}
	return method, nil
}

func (b *TFServingBuilder) BuildRequests(source ExampleSource, signatureNames []string, count int) ([]Request, error) {
	return buildAll(b.Model, source, signatureNames, count, conformTFServing, b.build)
}

func (b *TFServingBuilder) build(sigDef TFSignatureDef, method TFMethod, record []byte, _ int) (Request, error) {
	request := Request{
		ModelName:     b.ModelName,
		SignatureName: sigDef.Key,
		Method:        method,
	}
	var err error
	switch method {
	case Classify, Regress:
		example, parseErr := ParseExample(record)
		if parseErr != nil {
			return Request{}, parseErr
		}
		request.Body, err = json.Marshal(tfsExamplesRequest{
			SignatureName: sigDef.Key,
			Examples:      []map[string]interface{}{example.jsonObject()},
		})
		if err != nil {
			return Request{}, errors.Wrap(err, "unable to encode examples request")
		}
		request.WarmupRecord = examplesPredictionLog(b.ModelName, sigDef.Key, method, record)
	default:
		input, _ := predictInput(sigDef)
		request.Body, err = json.Marshal(tfsPredictRequest{
			SignatureName: sigDef.Key,
			Instances:     []map[string]string{{"b64": base64.StdEncoding.EncodeToString(record)}},
		})
		if err != nil {
			return Request{}, errors.Wrap(err, "unable to encode predict request")
		}
		request.WarmupRecord = predictPredictionLog(b.ModelName, sigDef.Key, input.Name, record)
	}
	return request, nil
}
