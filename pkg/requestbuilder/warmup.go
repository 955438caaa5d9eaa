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
	"io"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// PredictionLog field numbers of [tensorflow_serving/apis/prediction_log.proto].
const (
	classifyLogField protowire.Number = 3
	regressLogField  protowire.Number = 4
	predictLogField  protowire.Number = 6
	dtStringEnum                      = uint64(DtString)
)

func modelSpec(modelName string, signatureName string) []byte {
	var spec []byte
	spec = appendString(spec, 1, modelName)
	return appendString(spec, 3, signatureName)
}

// examplesPredictionLog encodes a ClassifyLog or RegressLog holding one example.
func examplesPredictionLog(modelName string, signatureName string, method TFMethod, record []byte) []byte {
	exampleList := appendMessage(nil, 1, record)
	input := appendMessage(nil, 1, exampleList)

	var request []byte
	request = appendMessage(request, 1, modelSpec(modelName, signatureName))
	request = appendMessage(request, 2, input)

	logEntry := appendMessage(nil, 1, request)
	field := classifyLogField
	if method == Regress {
		field = regressLogField
	}
	return appendMessage(nil, field, logEntry)
}

// predictPredictionLog encodes a PredictLog feeding the record as a DT_STRING tensor of shape [1].
func predictPredictionLog(modelName string, signatureName string, inputName string, record []byte) []byte {
	dim := appendVarint(nil, 1, 1)
	shape := appendMessage(nil, 2, dim)

	var tensor []byte
	tensor = appendVarint(tensor, 1, dtStringEnum)
	tensor = appendMessage(tensor, 2, shape)
	tensor = appendMessage(tensor, 8, record)

	var request []byte
	request = appendMessage(request, 1, modelSpec(modelName, signatureName))
	request = appendMapEntry(request, 2, inputName, tensor)

	logEntry := appendMessage(nil, 1, request)
	return appendMessage(nil, predictLogField, logEntry)
}

// WriteWarmupRecords writes the warmup records of the requests as a TFRecord stream.
func WriteWarmupRecords(w io.Writer, requests []Request) (int, error) {
	writer := NewTFRecordWriter(w)
	written := 0
	for _, request := range requests {
		if len(request.WarmupRecord) == 0 {
			continue
		}
		if err := writer.Write(request.WarmupRecord); err != nil {
			return written, errors.Wrap(err, "failed to write warmup record")
		}
		written++
	}
	return written, nil
}
