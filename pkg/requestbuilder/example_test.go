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
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/onsi/gomega"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestExampleRoundTrip(t *testing.T) {
	example := &Example{Features: map[string]Feature{
		"age":    Int64Feature(42, -1),
		"height": FloatFeature(1.75),
		"name":   BytesFeature([]byte("alice")),
		"empty":  BytesFeature(),
	}}
	parsed, err := ParseExample(example.Marshal())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := &Example{Features: map[string]Feature{
		"age":    Int64Feature(42, -1),
		"height": FloatFeature(1.75),
		"name":   BytesFeature([]byte("alice")),
		"empty":  {Kind: BytesKind, BytesList: [][]byte{}},
	}}
	if diff := cmp.Diff(expected, parsed); diff != "" {
		t.Errorf("Test %q unexpected result (-want +got): %v", "roundTrip", diff)
	}
}

func TestParseExampleUnpackedValues(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	var floats []byte
	floats = protowire.AppendTag(floats, 1, protowire.Fixed32Type)
	floats = protowire.AppendFixed32(floats, math.Float32bits(0.5))
	floats = protowire.AppendTag(floats, 1, protowire.Fixed32Type)
	floats = protowire.AppendFixed32(floats, math.Float32bits(2))
	var ints []byte
	ints = appendVarint(ints, 1, 7)
	ints = appendVarint(ints, 1, 9)

	var features []byte
	features = appendMapEntry(features, 1, "f", appendMessage(nil, 2, floats))
	features = appendMapEntry(features, 1, "i", appendMessage(nil, 3, ints))

	example, err := ParseExample(appendMessage(nil, 1, features))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(example.Features["f"].FloatList).To(gomega.Equal([]float32{0.5, 2}))
	g.Expect(example.Features["i"].Int64List).To(gomega.Equal([]int64{7, 9}))
}

func TestParseExampleMalformed(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	_, err := ParseExample([]byte{0x0a, 0x05, 0x01})
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestExampleMarshalIsCanonical(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	a := &Example{Features: map[string]Feature{"a": Int64Feature(1), "b": Int64Feature(2), "c": Int64Feature(3)}}
	b := &Example{Features: map[string]Feature{"c": Int64Feature(3), "a": Int64Feature(1), "b": Int64Feature(2)}}
	for i := 0; i < 10; i++ {
		g.Expect(a.Marshal()).To(gomega.Equal(b.Marshal()))
	}
}
