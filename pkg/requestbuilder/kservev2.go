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
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

const (
	V2BytesDatatype          = "BYTES"
	V2BinaryDataSizeParam    = "binary_data_size"
	v2BytesElementHeaderSize = 4
)

// KServeV2Builder builds Open Inference Protocol requests sending each example as a one element BYTES
// tensor through the binary tensor data extension.
type KServeV2Builder struct {
	ModelName string
	Model     *TFSavedModel
}

var _ Builder = (*KServeV2Builder)(nil)

type v2InferenceRequest struct {
	ID     string     `json:"id,omitempty"`
	Inputs []v2Tensor `json:"inputs"`
}

type v2Tensor struct {
	Name       string                 `json:"name"`
	Shape      []int64                `json:"shape"`
	Datatype   string                 `json:"datatype"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

func conformKServeV2(sigDef TFSignatureDef) (TFMethod, error) {
	method, err := NewTFMethod(sigDef.Key, sigDef.MethodName)
	if err != nil {
		return method, &UnsupportedSignatureError{Signature: sigDef.Key, Reason: err.Error()}
	}
	if method != Predict {
		return method, &UnsupportedSignatureError{
			Signature: sigDef.Key,
			Reason:    "only predict signatures can be served through the v2 protocol",
		}
	}
	if _, err := predictInput(sigDef); err != nil {
		return method, err
	}
	return method, nil
}

func (b *KServeV2Builder) BuildRequests(source ExampleSource, signatureNames []string, count int) ([]Request, error) {
	return buildAll(b.Model, source, signatureNames, count, conformKServeV2, b.build)
}

func (b *KServeV2Builder) build(sigDef TFSignatureDef, method TFMethod, record []byte, index int) (Request, error) {
	input, _ := predictInput(sigDef)
	element := make([]byte, 0, v2BytesElementHeaderSize+len(record))
	element = binary.LittleEndian.AppendUint32(element, uint32(len(record)))
	element = append(element, record...)

	header, err := json.Marshal(v2InferenceRequest{
		ID: fmt.Sprintf("%s-%d", sigDef.Key, index),
		Inputs: []v2Tensor{{
			Name:       input.Name,
			Shape:      []int64{1},
			Datatype:   V2BytesDatatype,
			Parameters: map[string]interface{}{V2BinaryDataSizeParam: len(element)},
		}},
	})
	if err != nil {
		return Request{}, errors.Wrap(err, "unable to encode inference header")
	}
	return Request{
		ModelName:     b.ModelName,
		SignatureName: sigDef.Key,
		Method:        method,
		Body:          append(header, element...),
		HeaderLength:  len(header),
	}, nil
}
