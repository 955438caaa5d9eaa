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
	"net/http"
	"path"
	"strconv"

	"github.com/kserve/infravalidator/pkg/apis/infravalidator/v1alpha1"
	"github.com/kserve/infravalidator/pkg/constants"
	"github.com/kserve/infravalidator/pkg/requestbuilder"
	"github.com/kserve/infravalidator/pkg/servingclient"
)

// TFServing is the tensorflow/serving image. Its entrypoint serves MODEL_BASE_PATH/MODEL_NAME, which holds
// numbered version directories.
type TFServing struct{}

var _ Flavor = TFServing{}

func (TFServing) Type() v1alpha1.BinaryType {
	return v1alpha1.TensorFlowServingBinary
}

func (TFServing) DefaultImage() string {
	return constants.TFServingImageName
}

func (TFServing) ModelSubPath(modelName string) string {
	return path.Join(modelName, constants.DefaultModelVersion)
}

func (TFServing) Container(image string, modelName string, modelRoot string, extraArgs []string) ContainerSpec {
	return ContainerSpec{
		Image: image,
		Args: append([]string{
			"--rest_api_port=" + strconv.Itoa(constants.TFServingRESTPort),
		}, extraArgs...),
		Env: map[string]string{
			constants.TFServingModelNameEnv: modelName,
			constants.TFServingModelBaseEnv: modelRoot,
		},
		Port:          constants.TFServingRESTPort,
		ModelRoot:     modelRoot,
		ReadinessPath: "/v1/models/" + modelName,
	}
}

func (TFServing) NewClient(address string, modelName string, httpClient *http.Client) servingclient.Client {
	return servingclient.NewTFServingClient(address, modelName, httpClient)
}

func (TFServing) NewRequestBuilder(modelName string, model *requestbuilder.TFSavedModel) requestbuilder.Builder {
	return &requestbuilder.TFServingBuilder{ModelName: modelName, Model: model}
}

func (TFServing) SupportsWarmup() bool {
	return true
}

// KServeV2 is a server speaking the Open Inference Protocol over REST, Triton by default. The model root is
// used as the model repository.
type KServeV2 struct{}

var _ Flavor = KServeV2{}

const (
	tritonSavedModelDir = "model.savedmodel"
	tritonCommand       = "tritonserver"
)

func (KServeV2) Type() v1alpha1.BinaryType {
	return v1alpha1.KServeV2Binary
}

func (KServeV2) DefaultImage() string {
	return constants.KServeV2ImageName
}

func (KServeV2) ModelSubPath(modelName string) string {
	return path.Join(modelName, constants.DefaultModelVersion, tritonSavedModelDir)
}

func (KServeV2) Container(image string, modelName string, modelRoot string, extraArgs []string) ContainerSpec {
	return ContainerSpec{
		Image:   image,
		Command: []string{tritonCommand},
		Args: append([]string{
			"--model-repository=" + modelRoot,
			"--http-port=" + strconv.Itoa(constants.KServeV2HTTPPort),
			"--strict-model-config=false",
		}, extraArgs...),
		Env:           map[string]string{},
		Port:          constants.KServeV2HTTPPort,
		ModelRoot:     modelRoot,
		ReadinessPath: "/v2/models/" + modelName + "/ready",
	}
}

func (KServeV2) NewClient(address string, modelName string, httpClient *http.Client) servingclient.Client {
	return servingclient.NewKServeV2Client(address, modelName, httpClient)
}

func (KServeV2) NewRequestBuilder(modelName string, model *requestbuilder.TFSavedModel) requestbuilder.Builder {
	return &requestbuilder.KServeV2Builder{ModelName: modelName, Model: model}
}

func (KServeV2) SupportsWarmup() bool {
	return false
}
