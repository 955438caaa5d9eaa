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

/**
TFSavedModel is the part of a TensorFlow SavedModel needed to probe a model server: the signatures of the meta
graphs. It mirrors SavedModel, MetaGraphDef, SignatureDef and TensorInfo of
[tensorflow/core/protobuf/saved_model.proto] and [tensorflow/core/protobuf/meta_graph.proto].
*/
import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/kserve/infravalidator/pkg/constants"
)

type TFSavedModel struct {
	MetaGraphs []TFMetaGraph
}

type TFMetaGraph struct {
	Tags          []string
	SignatureDefs []TFSignatureDef
}

type TFSignatureDef struct {
	Key        string
	MethodName string
	Inputs     []TFTensor
	Outputs    []TFTensor
}

type TFTensor struct {
	// Name of the logical tensor, i.e. the signature map key
	Name string
	// Name of the tensor in the graph
	TensorName string
	DType      TFDType
}

type TFMethod int

const (
	Predict TFMethod = iota
	Classify
	Regress
)

const (
	PredictMethodName  = "tensorflow/serving/predict"
	ClassifyMethodName = "tensorflow/serving/classify"
	RegressMethodName  = "tensorflow/serving/regress"
)

// Known error messages
const (
	UnsupportedSignatureMethodError = "signature (%s) contains unsupported method (%s)"
	MissingServeMetaGraphError      = "saved model has no meta graph tagged %q"
)

func NewTFMethod(key string, method string) (TFMethod, error) {
	tfMethod, ok := map[string]TFMethod{
		PredictMethodName:  Predict,
		ClassifyMethodName: Classify,
		RegressMethodName:  Regress,
	}[method]
	if !ok {
		return TFMethod(0), errors.Errorf(UnsupportedSignatureMethodError, key, method)
	}
	return tfMethod, nil
}

func (m TFMethod) String() string {
	switch m {
	case Classify:
		return "classify"
	case Regress:
		return "regress"
	default:
		return "predict"
	}
}

// TFDType is the numeric DataType enum of [tensorflow/core/framework/types.proto].
type TFDType int32

const (
	DtInvalid TFDType = 0
	DtFloat   TFDType = 1
	DtDouble  TFDType = 2
	DtInt32   TFDType = 3
	DtUInt8   TFDType = 4
	DtInt16   TFDType = 5
	DtInt8    TFDType = 6
	DtString  TFDType = 7
	DtInt64   TFDType = 9
	DtBool    TFDType = 10
	DtUInt32  TFDType = 22
	DtUInt64  TFDType = 23
)

func (t TFDType) String() string {
	name, ok := map[TFDType]string{
		DtInvalid: "DT_INVALID",
		DtFloat:   "DT_FLOAT",
		DtDouble:  "DT_DOUBLE",
		DtInt32:   "DT_INT32",
		DtUInt8:   "DT_UINT8",
		DtInt16:   "DT_INT16",
		DtInt8:    "DT_INT8",
		DtString:  "DT_STRING",
		DtInt64:   "DT_INT64",
		DtBool:    "DT_BOOL",
		DtUInt32:  "DT_UINT32",
		DtUInt64:  "DT_UINT64",
	}[t]
	if !ok {
		return "DT_" + strconv.Itoa(int(t))
	}
	return name
}

// FindSavedModel returns the directory holding saved_model.pb: dir itself, or else its highest numbered
// version sub-directory.
func FindSavedModel(dir string) (string, error) {
	if _, err := os.Stat(filepath.Join(dir, constants.SavedModelFileName)); err == nil {
		return dir, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrapf(err, "unable to read model directory %s", dir)
	}
	best := int64(-1)
	found := ""
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		version, err := strconv.ParseInt(entry.Name(), 10, 64)
		if err != nil || version <= best {
			continue
		}
		candidate := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(filepath.Join(candidate, constants.SavedModelFileName)); err == nil {
			best = version
			found = candidate
		}
	}
	if found == "" {
		return "", errors.Errorf("no %s found in %s", constants.SavedModelFileName, dir)
	}
	return found, nil
}

// LoadSavedModel reads and decodes the saved_model.pb of a model directory.
func LoadSavedModel(dir string) (*TFSavedModel, error) {
	modelDir, err := FindSavedModel(dir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(modelDir, constants.SavedModelFileName))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read saved model in %s", modelDir)
	}
	model, err := UnmarshalSavedModel(data)
	if err != nil {
		return nil, errors.Wrapf(err, "saved model in %s not in expected format, may be corrupted", modelDir)
	}
	return model, nil
}

func UnmarshalSavedModel(data []byte) (*TFSavedModel, error) {
	fields, err := parseFields(data)
	if err != nil {
		return nil, err
	}
	model := &TFSavedModel{}
	for _, f := range fields {
		if f.num != 2 || f.typ != protowire.BytesType {
			continue
		}
		metaGraph, err := unmarshalMetaGraph(f.bytes)
		if err != nil {
			return nil, err
		}
		model.MetaGraphs = append(model.MetaGraphs, metaGraph)
	}
	return model, nil
}

func unmarshalMetaGraph(data []byte) (TFMetaGraph, error) {
	fields, err := parseFields(data)
	if err != nil {
		return TFMetaGraph{}, err
	}
	metaGraph := TFMetaGraph{}
	for _, f := range fields {
		if f.typ != protowire.BytesType {
			continue
		}
		switch f.num {
		case 1:
			tags, err := unmarshalTags(f.bytes)
			if err != nil {
				return TFMetaGraph{}, err
			}
			metaGraph.Tags = append(metaGraph.Tags, tags...)
		case 5:
			key, value, err := parseMapEntry(f.bytes)
			if err != nil {
				return TFMetaGraph{}, err
			}
			sigDef, err := unmarshalSignatureDef(key, value)
			if err != nil {
				return TFMetaGraph{}, err
			}
			metaGraph.SignatureDefs = append(metaGraph.SignatureDefs, sigDef)
		}
	}
	sort.Slice(metaGraph.SignatureDefs, func(i, j int) bool {
		return metaGraph.SignatureDefs[i].Key < metaGraph.SignatureDefs[j].Key
	})
	return metaGraph, nil
}

// unmarshalTags reads the tags of a MetaInfoDef.
func unmarshalTags(data []byte) ([]string, error) {
	fields, err := parseFields(data)
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, f := range fields {
		if f.num == 4 && f.typ == protowire.BytesType {
			tags = append(tags, string(f.bytes))
		}
	}
	return tags, nil
}

func unmarshalSignatureDef(key string, data []byte) (TFSignatureDef, error) {
	fields, err := parseFields(data)
	if err != nil {
		return TFSignatureDef{}, err
	}
	sigDef := TFSignatureDef{Key: key}
	for _, f := range fields {
		if f.typ != protowire.BytesType {
			continue
		}
		switch f.num {
		case 1, 2:
			name, value, err := parseMapEntry(f.bytes)
			if err != nil {
				return TFSignatureDef{}, err
			}
			tensor, err := unmarshalTensorInfo(name, value)
			if err != nil {
				return TFSignatureDef{}, err
			}
			if f.num == 1 {
				sigDef.Inputs = append(sigDef.Inputs, tensor)
			} else {
				sigDef.Outputs = append(sigDef.Outputs, tensor)
			}
		case 3:
			sigDef.MethodName = string(f.bytes)
		}
	}
	sortTensors(sigDef.Inputs)
	sortTensors(sigDef.Outputs)
	return sigDef, nil
}

func unmarshalTensorInfo(name string, data []byte) (TFTensor, error) {
	fields, err := parseFields(data)
	if err != nil {
		return TFTensor{}, err
	}
	tensor := TFTensor{Name: name}
	for _, f := range fields {
		switch {
		case f.num == 1 && f.typ == protowire.BytesType:
			tensor.TensorName = string(f.bytes)
		case f.num == 2 && f.typ == protowire.VarintType:
			tensor.DType = TFDType(int32(f.varint))
		}
	}
	return tensor, nil
}

func sortTensors(tensors []TFTensor) {
	sort.Slice(tensors, func(i, j int) bool {
		return tensors[i].Name < tensors[j].Name
	})
}

// ServingMetaGraph returns the meta graph tagged for serving.
func (m *TFSavedModel) ServingMetaGraph() (*TFMetaGraph, error) {
	for i := range m.MetaGraphs {
		for _, tag := range m.MetaGraphs[i].Tags {
			if tag == constants.DefaultServeTag {
				return &m.MetaGraphs[i], nil
			}
		}
	}
	return nil, errors.Errorf(MissingServeMetaGraphError, constants.DefaultServeTag)
}

func (g *TFMetaGraph) SignatureDef(key string) (TFSignatureDef, bool) {
	for _, sigDef := range g.SignatureDefs {
		if sigDef.Key == key {
			return sigDef, true
		}
	}
	return TFSignatureDef{}, false
}

func (g *TFMetaGraph) SignatureKeys() []string {
	keys := make([]string, 0, len(g.SignatureDefs))
	for _, sigDef := range g.SignatureDefs {
		keys = append(keys, sigDef.Key)
	}
	return keys
}

// Marshal encodes the saved model back into its wire format, keeping only the decoded fields.
func (m *TFSavedModel) Marshal() []byte {
	var b []byte
	for _, metaGraph := range m.MetaGraphs {
		b = appendMessage(b, 2, metaGraph.marshal())
	}
	return b
}

func (g *TFMetaGraph) marshal() []byte {
	var metaInfo []byte
	for _, tag := range g.Tags {
		metaInfo = appendString(metaInfo, 4, tag)
	}
	var b []byte
	b = appendMessage(b, 1, metaInfo)
	for _, sigDef := range g.SignatureDefs {
		b = appendMapEntry(b, 5, sigDef.Key, sigDef.marshal())
	}
	return b
}

func (s *TFSignatureDef) marshal() []byte {
	var b []byte
	for _, input := range s.Inputs {
		b = appendMapEntry(b, 1, input.Name, input.marshal())
	}
	for _, output := range s.Outputs {
		b = appendMapEntry(b, 2, output.Name, output.marshal())
	}
	if s.MethodName != "" {
		b = appendString(b, 3, s.MethodName)
	}
	return b
}

func (t *TFTensor) marshal() []byte {
	var b []byte
	if t.TensorName != "" {
		b = appendString(b, 1, t.TensorName)
	}
	return appendVarint(b, 2, uint64(t.DType))
}
