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

package servingbinary

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/kserve/infravalidator/pkg/apis/infravalidator/v1alpha1"
	"github.com/kserve/infravalidator/pkg/requestbuilder"
	"github.com/kserve/infravalidator/pkg/servingclient"
)

// ContainerSpec is what a runtime needs to start a model server. ModelRoot is the path the runtime must
// mount the model directory tree at, laid out as ModelSubPath beneath it.
type ContainerSpec struct {
	Image     string
	Command   []string
	Args      []string
	Env       map[string]string
	Port      int32
	ModelRoot string
	// ReadinessPath is an HTTP path on Port answering 200 once the model is loaded.
	ReadinessPath string
}

// SortedEnv returns the environment as KEY=VALUE pairs in key order.
func (c ContainerSpec) SortedEnv() []string {
	keys := make([]string, 0, len(c.Env))
	for key := range c.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+c.Env[key])
	}
	return env
}

// Flavor is a family of model server binaries sharing a container contract and an inference API.
type Flavor interface {
	Type() v1alpha1.BinaryType
	DefaultImage() string
	// ModelSubPath is where a model version must live relative to the model root.
	ModelSubPath(modelName string) string
	Container(image string, modelName string, modelRoot string, extraArgs []string) ContainerSpec
	NewClient(address string, modelName string, httpClient *http.Client) servingclient.Client
	NewRequestBuilder(modelName string, model *requestbuilder.TFSavedModel) requestbuilder.Builder
	SupportsWarmup() bool
}

// ServingBinary describes one model server flavor and the versions of it to validate.
type ServingBinary struct {
	Flavor    Flavor
	ModelName string
	ImageName string
	// Versions are image tags, or digests starting with "sha256:".
	Versions []string
	Args     []string
}

// NewServingBinary builds the descriptor selected by a validated ServingSpec.
func NewServingBinary(spec *v1alpha1.ServingSpec) (ServingBinary, error) {
	switch {
	case spec.TensorFlowServing != nil:
		flavor := TFServing{}
		versions := append(append([]string{}, spec.TensorFlowServing.Tags...), spec.TensorFlowServing.Digests...)
		return ServingBinary{
			Flavor:    flavor,
			ModelName: spec.ModelName,
			ImageName: orDefault(spec.TensorFlowServing.ImageName, flavor.DefaultImage()),
			Versions:  versions,
		}, nil
	case spec.KServeV2 != nil:
		flavor := KServeV2{}
		return ServingBinary{
			Flavor:    flavor,
			ModelName: spec.ModelName,
			ImageName: orDefault(spec.KServeV2.ImageName, flavor.DefaultImage()),
			Versions:  append([]string{}, spec.KServeV2.Tags...),
			Args:      append([]string{}, spec.KServeV2.Args...),
		}, nil
	}
	return ServingBinary{}, errors.New("no serving binary selected")
}

func orDefault(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Fanout expands the descriptor into one descriptor per version, in declaration order.
func (b ServingBinary) Fanout() []ServingBinary {
	binaries := make([]ServingBinary, 0, len(b.Versions))
	for _, version := range b.Versions {
		single := b
		single.Versions = []string{version}
		single.Args = append([]string{}, b.Args...)
		binaries = append(binaries, single)
	}
	return binaries
}

// Version is the single version of a fanned out descriptor.
func (b ServingBinary) Version() string {
	if len(b.Versions) == 0 {
		return ""
	}
	return b.Versions[0]
}

// Image is the image reference of the single version.
func (b ServingBinary) Image() string {
	version := b.Version()
	if strings.HasPrefix(version, "sha256:") {
		return fmt.Sprintf("%s@%s", b.ImageName, version)
	}
	return fmt.Sprintf("%s:%s", b.ImageName, version)
}

func (b ServingBinary) String() string {
	return fmt.Sprintf("%s(%s)", b.Flavor.Type(), b.Image())
}

func (b ServingBinary) Container(modelRoot string) ContainerSpec {
	return b.Flavor.Container(b.Image(), b.ModelName, modelRoot, b.Args)
}

func (b ServingBinary) ModelSubPath() string {
	return b.Flavor.ModelSubPath(b.ModelName)
}

func (b ServingBinary) NewClient(address string, httpClient *http.Client) servingclient.Client {
	return b.Flavor.NewClient(address, b.ModelName, httpClient)
}

// RequestBuilder returns a builder reading the model signatures from modelDir.
func (b ServingBinary) RequestBuilder(modelDir string) requestbuilder.Builder {
	return &requestbuilder.LoadingBuilder{
		ModelDir: modelDir,
		New: func(model *requestbuilder.TFSavedModel) requestbuilder.Builder {
			return b.Flavor.NewRequestBuilder(b.ModelName, model)
		},
	}
}
