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
	"github.com/pkg/errors"

	"github.com/kserve/infravalidator/pkg/constants"
)

// Request is one inference request ready to be sent to a model server.
type Request struct {
	ModelName     string
	SignatureName string
	Method        TFMethod
	// Body is the payload of the server's native REST API.
	Body []byte
	// HeaderLength is the size of the JSON header at the start of Body when the body uses the binary
	// tensor extension of the Open Inference Protocol, zero for plain JSON bodies.
	HeaderLength int
	// WarmupRecord is the serialized PredictionLog replaying this request, when the flavor supports warmup.
	WarmupRecord []byte
}

// Builder turns example records into requests for one serving binary flavor.
type Builder interface {
	// BuildRequests returns at most count requests built from the first count records of the source.
	// The result only depends on the records and the model signatures.
	BuildRequests(source ExampleSource, signatureNames []string, count int) ([]Request, error)
}

// conformFunc decides whether a signature can be probed with serialized examples.
type conformFunc func(sigDef TFSignatureDef) (TFMethod, error)

// resolveSignatures returns the requested signatures exported by the serving meta graph, in request order.
// Missing names are skipped; it is an error when none is found.
func resolveSignatures(model *TFSavedModel, signatureNames []string) ([]TFSignatureDef, error) {
	if len(signatureNames) == 0 {
		signatureNames = []string{constants.DefaultSignatureName}
	}
	metaGraph, err := model.ServingMetaGraph()
	if err != nil {
		return nil, &SignatureNotFoundError{Requested: signatureNames}
	}
	var found []TFSignatureDef
	seen := map[string]bool{}
	for _, name := range signatureNames {
		if seen[name] {
			continue
		}
		seen[name] = true
		sigDef, ok := metaGraph.SignatureDef(name)
		if !ok {
			log.Info("Signature not found in the model, skipping", "signature", name)
			continue
		}
		found = append(found, sigDef)
	}
	if len(found) == 0 {
		return nil, &SignatureNotFoundError{Requested: signatureNames, Available: metaGraph.SignatureKeys()}
	}
	return found, nil
}

// predictInput returns the single DT_STRING input a predict signature must have.
func predictInput(sigDef TFSignatureDef) (TFTensor, error) {
	if len(sigDef.Inputs) != 1 {
		return TFTensor{}, &UnsupportedSignatureError{
			Signature: sigDef.Key,
			Reason:    "predict signature must have exactly one input",
		}
	}
	if sigDef.Inputs[0].DType != DtString {
		return TFTensor{}, &UnsupportedSignatureError{
			Signature: sigDef.Key,
			Reason:    "input " + sigDef.Inputs[0].Name + " has type " + sigDef.Inputs[0].DType.String() + ", want DT_STRING",
		}
	}
	return sigDef.Inputs[0], nil
}

// buildAll pairs the i-th record with the i-th signature in round robin, so every found signature is
// probed as long as there are at least as many records.
func buildAll(model *TFSavedModel, source ExampleSource, signatureNames []string, count int, conform conformFunc,
	build func(sigDef TFSignatureDef, method TFMethod, record []byte, index int) (Request, error)) ([]Request, error) {
	if count <= 0 {
		return nil, errors.Errorf("request count must be positive, got %d", count)
	}
	sigDefs, err := resolveSignatures(model, signatureNames)
	if err != nil {
		return nil, err
	}
	methods := make([]TFMethod, len(sigDefs))
	for i, sigDef := range sigDefs {
		if methods[i], err = conform(sigDef); err != nil {
			return nil, err
		}
	}
	records, err := source.Records(count)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read example records")
	}
	if len(records) == 0 {
		return nil, errors.New("no example records available to build requests")
	}
	requests := make([]Request, 0, len(records))
	for i, record := range records {
		if i >= count {
			break
		}
		slot := i % len(sigDefs)
		request, err := build(sigDefs[slot], methods[slot], record, i)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to build request %d", i)
		}
		requests = append(requests, request)
	}
	return requests, nil
}

// LoadingBuilder loads the model signatures from a directory before delegating.
type LoadingBuilder struct {
	ModelDir string
	New      func(model *TFSavedModel) Builder
}

func (l *LoadingBuilder) BuildRequests(source ExampleSource, signatureNames []string, count int) ([]Request, error) {
	model, err := LoadSavedModel(l.ModelDir)
	if err != nil {
		return nil, err
	}
	return l.New(model).BuildRequests(source, signatureNames, count)
}
