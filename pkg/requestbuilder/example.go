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
	"math"
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

type FeatureKind int

const (
	NoKind FeatureKind = iota
	BytesKind
	FloatKind
	Int64Kind
)

// Feature is one entry of a tf.Example; exactly one of the lists matches Kind.
type Feature struct {
	Kind      FeatureKind
	BytesList [][]byte
	FloatList []float32
	Int64List []int64
}

// Example is a decoded tf.Example [tensorflow/core/example/example.proto].
type Example struct {
	Features map[string]Feature
}

func BytesFeature(values ...[]byte) Feature {
	return Feature{Kind: BytesKind, BytesList: values}
}

func FloatFeature(values ...float32) Feature {
	return Feature{Kind: FloatKind, FloatList: values}
}

func Int64Feature(values ...int64) Feature {
	return Feature{Kind: Int64Kind, Int64List: values}
}

func ParseExample(data []byte) (*Example, error) {
	fields, err := parseFields(data)
	if err != nil {
		return nil, errors.Wrap(err, "malformed tf.Example")
	}
	example := &Example{Features: map[string]Feature{}}
	for _, f := range fields {
		if f.num != 1 || f.typ != protowire.BytesType {
			continue
		}
		featureFields, err := parseFields(f.bytes)
		if err != nil {
			return nil, errors.Wrap(err, "malformed tf.Features")
		}
		for _, ff := range featureFields {
			if ff.num != 1 || ff.typ != protowire.BytesType {
				continue
			}
			name, value, err := parseMapEntry(ff.bytes)
			if err != nil {
				return nil, errors.Wrap(err, "malformed feature map entry")
			}
			feature, err := parseFeature(value)
			if err != nil {
				return nil, errors.Wrapf(err, "malformed feature %q", name)
			}
			example.Features[name] = feature
		}
	}
	return example, nil
}

func parseFeature(data []byte) (Feature, error) {
	fields, err := parseFields(data)
	if err != nil {
		return Feature{}, err
	}
	feature := Feature{}
	for _, f := range fields {
		if f.typ != protowire.BytesType {
			continue
		}
		values, err := parseFields(f.bytes)
		if err != nil {
			return Feature{}, err
		}
		switch f.num {
		case 1:
			feature = Feature{Kind: BytesKind, BytesList: [][]byte{}}
			for _, v := range values {
				if v.num == 1 && v.typ == protowire.BytesType {
					feature.BytesList = append(feature.BytesList, v.bytes)
				}
			}
		case 2:
			feature = Feature{Kind: FloatKind, FloatList: []float32{}}
			for _, v := range values {
				if v.num != 1 {
					continue
				}
				switch v.typ {
				case protowire.Fixed32Type:
					feature.FloatList = append(feature.FloatList, math.Float32frombits(v.fixed32))
				case protowire.BytesType:
					packed := v.bytes
					for len(packed) > 0 {
						bits, n := protowire.ConsumeFixed32(packed)
						if n < 0 {
							return Feature{}, protowire.ParseError(n)
						}
						feature.FloatList = append(feature.FloatList, math.Float32frombits(bits))
						packed = packed[n:]
					}
				}
			}
		case 3:
			feature = Feature{Kind: Int64Kind, Int64List: []int64{}}
			for _, v := range values {
				if v.num != 1 {
					continue
				}
				switch v.typ {
				case protowire.VarintType:
					feature.Int64List = append(feature.Int64List, int64(v.varint))
				case protowire.BytesType:
					packed := v.bytes
					for len(packed) > 0 {
						value, n := protowire.ConsumeVarint(packed)
						if n < 0 {
							return Feature{}, protowire.ParseError(n)
						}
						feature.Int64List = append(feature.Int64List, int64(value))
						packed = packed[n:]
					}
				}
			}
		}
	}
	return feature, nil
}

func (e *Example) sortedNames() []string {
	names := make([]string, 0, len(e.Features))
	for name := range e.Features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Marshal serializes the example with features in name order, so equal examples encode identically.
func (e *Example) Marshal() []byte {
	var features []byte
	for _, name := range e.sortedNames() {
		features = appendMapEntry(features, 1, name, e.Features[name].marshal())
	}
	return appendMessage(nil, 1, features)
}

func (f Feature) marshal() []byte {
	var list []byte
	switch f.Kind {
	case BytesKind:
		for _, v := range f.BytesList {
			list = protowire.AppendTag(list, 1, protowire.BytesType)
			list = protowire.AppendBytes(list, v)
		}
		return appendMessage(nil, 1, list)
	case FloatKind:
		var packed []byte
		for _, v := range f.FloatList {
			packed = protowire.AppendFixed32(packed, math.Float32bits(v))
		}
		if len(packed) > 0 {
			list = appendMessage(list, 1, packed)
		}
		return appendMessage(nil, 2, list)
	case Int64Kind:
		var packed []byte
		for _, v := range f.Int64List {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		if len(packed) > 0 {
			list = appendMessage(list, 1, packed)
		}
		return appendMessage(nil, 3, list)
	}
	return nil
}

// jsonValue renders the feature for the TensorFlow Serving REST classify and regress APIs.
// Bytes are always sent in their {"b64": ...} form.
func (f Feature) jsonValue() interface{} {
	switch f.Kind {
	case BytesKind:
		values := make([]map[string]string, 0, len(f.BytesList))
		for _, v := range f.BytesList {
			values = append(values, map[string]string{"b64": base64.StdEncoding.EncodeToString(v)})
		}
		return values
	case FloatKind:
		return f.FloatList
	case Int64Kind:
		return f.Int64List
	}
	return []interface{}{}
}

func (e *Example) jsonObject() map[string]interface{} {
	object := make(map[string]interface{}, len(e.Features))
	for name, feature := range e.Features {
		object[name] = feature.jsonValue()
	}
	return object
}
