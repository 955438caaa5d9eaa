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
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func testSavedModel() *TFSavedModel {
	stringInput := func(name string) TFTensor {
		return TFTensor{Name: name, TensorName: "input_example_tensor:0", DType: DtString}
	}
	scores := []TFTensor{{Name: "scores", TensorName: "head/scores:0", DType: DtFloat}}
	return &TFSavedModel{MetaGraphs: []TFMetaGraph{
		{
			Tags: []string{"train"},
		},
		{
			Tags: []string{"serve"},
			SignatureDefs: []TFSignatureDef{
				{Key: "classification", MethodName: ClassifyMethodName, Inputs: []TFTensor{stringInput("inputs")}, Outputs: scores},
				{Key: "multi_inference", MethodName: "tensorflow/serving/multi_inference", Inputs: []TFTensor{stringInput("inputs")}},
				{Key: "predict_dense", MethodName: PredictMethodName, Inputs: []TFTensor{{Name: "x", TensorName: "x:0", DType: DtFloat}}},
				{Key: "predict_two_inputs", MethodName: PredictMethodName, Inputs: []TFTensor{stringInput("a"), stringInput("b")}},
				{Key: "regression", MethodName: RegressMethodName, Inputs: []TFTensor{stringInput("inputs")}, Outputs: scores},
				{Key: "serving_default", MethodName: PredictMethodName, Inputs: []TFTensor{stringInput("examples")}, Outputs: scores},
			},
		},
	}}
}

func testExample(i int) []byte {
	example := &Example{Features: map[string]Feature{
		"id":    Int64Feature(int64(i)),
		"name":  BytesFeature([]byte(fmt.Sprintf("example-%d", i))),
		"score": FloatFeature(float32(i) / 2),
	}}
	return example.Marshal()
}

func testExamples(n int) StaticExamples {
	records := make(StaticExamples, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, testExample(i))
	}
	return records
}

func writeSavedModel(t *testing.T, dir string, model *TFSavedModel) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "saved_model.pb"), model.Marshal(), 0o600); err != nil {
		t.Fatal(err)
	}
}

func writeTFRecordFile(t *testing.T, path string, gzipped bool, records [][]byte) {
	t.Helper()
	buf := new(bytes.Buffer)
	var gz *gzip.Writer
	writer := NewTFRecordWriter(buf)
	if gzipped {
		gz = gzip.NewWriter(buf)
		writer = NewTFRecordWriter(gz)
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			t.Fatal(err)
		}
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}
