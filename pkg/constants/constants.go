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

package constants

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// InfraValidator Constants
var (
	InfraValidatorName         = "infravalidator"
	InfraValidatorAPIGroupName = "infravalidator.kserve.io"
	InfraValidatorNamespace    = getEnvOrDefault("POD_NAMESPACE", "kserve")
)

// Sandbox labels and naming
var (
	SandboxNamePrefix      = "infraval-modelserver-"
	SandboxComponentLabel  = "app.kubernetes.io/component"
	SandboxComponentValue  = "infra-validation-sandbox"
	SandboxManagedByLabel  = "app.kubernetes.io/managed-by"
	SandboxBinaryLabelKey  = InfraValidatorAPIGroupName + "/binary"
	SandboxVersionLabelKey = InfraValidatorAPIGroupName + "/version"
)

// Defaults of the validation spec.
const (
	DefaultModelName          = "infra-validation-model"
	DefaultMaxLoadingTime     = 300 * time.Second
	DefaultNumTries           = 5
	DefaultPollingInterval    = 1 * time.Second
	DefaultBackoffOffFactor   = 0.1
	DefaultMaxBackoff         = 60 * time.Second
	DefaultQueryTimeout       = 30 * time.Second
	DefaultNumExamples        = 1
	MaxNumExamples            = 100
	DefaultSignatureName      = "serving_default"
	DefaultModelVersion       = "1"
	DefaultServeTag           = "serve"
	DefaultKubernetesNS       = "default"
	DefaultStorageInitializer = "kserve/storage-initializer:latest"
)

// TensorFlow Serving
const (
	TFServingImageName      = "tensorflow/serving"
	TFServingRESTPort       = 8501
	TFServingGRPCPort       = 8500
	TFServingModelNameEnv   = "MODEL_NAME"
	TFServingModelBaseEnv   = "MODEL_BASE_PATH"
	TFServingWarmupFileName = "tf_serving_warmup_requests"
	TFServingAssetsExtraDir = "assets.extra"
)

// Open Inference Protocol (KServe V2) servers
const (
	KServeV2ImageName = "nvcr.io/nvidia/tritonserver"
	KServeV2HTTPPort  = 8000
)

// Model locations inside a sandbox
const (
	SandboxModelMountPath    = "/mnt/models"
	ModelVolumeName          = "kserve-provision-location"
	StorageInitializerName   = "storage-initializer"
	ModelServerContainerName = "model-server"
	SavedModelFileName       = "saved_model.pb"
	SplitDirPrefix           = "Split-"
)

// Blessing markers and output files
const (
	BlessedFileName      = "INFRA_BLESSED"
	NotBlessedFileName   = "INFRA_NOT_BLESSED"
	ErrorFileName        = "INFRA_ERROR"
	DiagnosticsFileName  = "diagnostics.json"
	OutputModelDirectory = "model"
)

// CloudEvent published for a final verdict
const (
	VerdictEventType   = "io.kserve.infravalidator.verdict"
	VerdictEventSource = "infravalidator"
)

func getEnvOrDefault(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// SandboxName returns a DNS-1123 compatible name for a sandbox of the given binary.
func SandboxName(binary string, suffix string) string {
	name := strings.ToLower(fmt.Sprintf("%s%s-%s", SandboxNamePrefix, binary, suffix))
	name = strings.ReplaceAll(name, "_", "-")
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "-")
	}
	return name
}
