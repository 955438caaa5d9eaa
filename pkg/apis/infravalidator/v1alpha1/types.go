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

package v1alpha1

import (
	"time"

	corev1 "k8s.io/api/core/v1"
)

// BinaryType names a model server flavor.
type BinaryType string

// RuntimeType names a sandbox backend.
type RuntimeType string

const (
	TensorFlowServingBinary BinaryType = "tensorflow_serving"
	KServeV2Binary          BinaryType = "kserve_v2"
)

const (
	LocalDockerRuntime RuntimeType = "local_docker"
	KubernetesRuntime  RuntimeType = "kubernetes"
)

// Config is the full description of one infra validation run.
type Config struct {
	ServingSpec    ServingSpec    `json:"servingSpec"`
	ValidationSpec ValidationSpec `json:"validationSpec,omitempty"`
	// RequestSpec switches the validation from LOAD_ONLY to LOAD_AND_QUERY.
	// +optional
	RequestSpec *RequestSpec `json:"requestSpec,omitempty"`
	Model       ModelSource  `json:"model"`
	// +optional
	Examples *ExampleSource `json:"examples,omitempty"`
	Output   OutputSpec     `json:"output"`
}

// ServingSpec selects exactly one model server flavor and exactly one runtime.
type ServingSpec struct {
	// Name the model is served under. Defaults to "infra-validation-model".
	// +optional
	ModelName string `json:"modelName,omitempty" validate:"omitempty,max=63"`

	// Binary flavors; exactly one must be set.
	// +optional
	TensorFlowServing *TensorFlowServing `json:"tensorflowServing,omitempty"`
	// +optional
	KServeV2 *KServeV2 `json:"kserveV2,omitempty"`

	// Runtimes; exactly one must be set.
	// +optional
	LocalDocker *LocalDockerConfig `json:"localDocker,omitempty"`
	// +optional
	Kubernetes *KubernetesConfig `json:"kubernetes,omitempty"`
}

// TensorFlowServing describes the tensorflow/serving images to validate against.
// Every tag and every digest is validated independently.
type TensorFlowServing struct {
	// +optional
	ImageName string   `json:"imageName,omitempty"`
	Tags      []string `json:"tags,omitempty" validate:"dive,required"`
	Digests   []string `json:"digests,omitempty" validate:"dive,required"`
}

// KServeV2 describes a model server speaking the Open Inference Protocol over REST.
type KServeV2 struct {
	// +optional
	ImageName string   `json:"imageName,omitempty"`
	Tags      []string `json:"tags" validate:"required,dive,required"`
	// Extra arguments passed to the server process.
	// +optional
	Args []string `json:"args,omitempty"`
}

// LocalDockerConfig configures sandboxes run by the local docker daemon.
type LocalDockerConfig struct {
	// Docker daemon address. Defaults to the DOCKER_HOST environment.
	// +optional
	DockerHost string `json:"dockerHost,omitempty"`
	// +optional
	ClientVersion string `json:"clientVersion,omitempty"`
	// Pull the image before creating the container. Defaults to true.
	// +optional
	PullImage *bool `json:"pullImage,omitempty"`
}

// KubernetesConfig configures sandboxes run as pods in a cluster.
type KubernetesConfig struct {
	// +optional
	Namespace string `json:"namespace,omitempty"`
	// +optional
	ServiceAccountName string `json:"serviceAccountName,omitempty"`
	// Image used to download the model into the pod before the server starts.
	// +optional
	StorageInitializerImage string `json:"storageInitializerImage,omitempty"`
	// +optional
	Resources corev1.ResourceRequirements `json:"resources,omitempty"`
	// +optional
	NodeSelector map[string]string `json:"nodeSelector,omitempty"`
	// +optional
	Tolerations []corev1.Toleration `json:"tolerations,omitempty"`
	// +optional
	Labels map[string]string `json:"labels,omitempty"`
	// +optional
	Annotations map[string]string `json:"annotations,omitempty"`
	// +optional
	ImagePullSecrets []corev1.LocalObjectReference `json:"imagePullSecrets,omitempty"`
	// +optional
	ActiveDeadlineSeconds *int64 `json:"activeDeadlineSeconds,omitempty" validate:"omitempty,gt=0"`
	// Secret keys and endpoint settings used to hand the service account's storage
	// credentials to the storage initializer.
	// +optional
	StorageCredentials StorageCredentialConfig `json:"storageCredentials,omitempty"`
}

// StorageCredentialConfig overrides the secret keys and S3 endpoint settings read from
// the secrets attached to the sandbox service account.
type StorageCredentialConfig struct {
	// +optional
	S3AccessKeyIDName string `json:"s3AccessKeyIDName,omitempty"`
	// +optional
	S3SecretAccessKeyName string `json:"s3SecretAccessKeyName,omitempty"`
	// +optional
	S3Endpoint string `json:"s3Endpoint,omitempty"`
	// +optional
	S3UseHttps string `json:"s3UseHttps,omitempty"`
	// +optional
	S3Region string `json:"s3Region,omitempty"`
	// +optional
	S3VerifySSL string `json:"s3VerifySSL,omitempty"`
	// +optional
	GCSCredentialFileName string `json:"gcsCredentialFileName,omitempty"`
}

// ValidationSpec bounds the time and the number of attempts of a validation.
type ValidationSpec struct {
	// +optional
	MaxLoadingTimeSeconds int64 `json:"maxLoadingTimeSeconds,omitempty" validate:"gte=0"`
	// +optional
	NumTries int32 `json:"numTries,omitempty" validate:"gte=0"`
	// +optional
	PollingIntervalSeconds int64 `json:"pollingIntervalSeconds,omitempty" validate:"gte=0"`
	// Fraction of maxLoadingTime added to the delay after every failed attempt.
	// +optional
	BackoffOffFactor float64 `json:"backoffOffFactor,omitempty" validate:"gte=0"`
	// +optional
	MaxBackoffSeconds int64 `json:"maxBackoffSeconds,omitempty" validate:"gte=0"`
	// +optional
	QueryTimeoutSeconds int64 `json:"queryTimeoutSeconds,omitempty" validate:"gte=0"`
}

// RequestSpec describes the probe requests sent once the model is loaded.
type RequestSpec struct {
	// Flavor specific request settings; exactly one must be set and it must
	// match the serving binary.
	// +optional
	TensorFlowServing *TensorFlowServingRequestSpec `json:"tensorflowServing,omitempty"`
	// +optional
	KServeV2 *KServeV2RequestSpec `json:"kserveV2,omitempty"`
	// Split of the example source to sample. Defaults to the first split found.
	// +optional
	SplitName string `json:"splitName,omitempty"`
	// +optional
	NumExamples int32 `json:"numExamples,omitempty" validate:"gte=0,lte=100"`
	// Write the probe requests as warmup requests into the output model.
	// +optional
	MakeWarmup bool `json:"makeWarmup,omitempty"`
}

type TensorFlowServingRequestSpec struct {
	// +optional
	SignatureNames []string `json:"signatureNames,omitempty" validate:"dive,required"`
}

type KServeV2RequestSpec struct {
	// +optional
	SignatureNames []string `json:"signatureNames,omitempty" validate:"dive,required"`
}

// ModelSource points to an exported SavedModel directory.
type ModelSource struct {
	URI string `json:"uri" validate:"required"`
}

// ExampleSource points to a directory of TFRecord files holding tf.Example records.
type ExampleSource struct {
	URI string `json:"uri" validate:"required"`
	// One of "GZIP" or "NONE". Detected per file from its content when empty.
	// +optional
	Compression string `json:"compression,omitempty" validate:"omitempty,oneof=GZIP NONE"`
}

// OutputSpec tells where the results are written.
type OutputSpec struct {
	BlessingDir string `json:"blessingDir" validate:"required"`
	// Required when requestSpec.makeWarmup is set.
	// +optional
	ModelDir string `json:"modelDir,omitempty"`
	// CloudEvents sink the final verdict is posted to.
	// +optional
	SinkURL string `json:"sinkUrl,omitempty" validate:"omitempty,url"`
}

// Binary reports the configured binary flavor. Only meaningful after Validate.
func (s *ServingSpec) Binary() BinaryType {
	switch {
	case s.TensorFlowServing != nil:
		return TensorFlowServingBinary
	case s.KServeV2 != nil:
		return KServeV2Binary
	}
	return ""
}

// Runtime reports the configured runtime. Only meaningful after Validate.
func (s *ServingSpec) Runtime() RuntimeType {
	switch {
	case s.LocalDocker != nil:
		return LocalDockerRuntime
	case s.Kubernetes != nil:
		return KubernetesRuntime
	}
	return ""
}

// SignatureNames returns the signatures the request spec asks to probe.
func (r *RequestSpec) SignatureNames() []string {
	switch {
	case r.TensorFlowServing != nil:
		return r.TensorFlowServing.SignatureNames
	case r.KServeV2 != nil:
		return r.KServeV2.SignatureNames
	}
	return nil
}

func (v *ValidationSpec) MaxLoadingTime() time.Duration {
	return time.Duration(v.MaxLoadingTimeSeconds) * time.Second
}

func (v *ValidationSpec) PollingInterval() time.Duration {
	return time.Duration(v.PollingIntervalSeconds) * time.Second
}

func (v *ValidationSpec) MaxBackoff() time.Duration {
	return time.Duration(v.MaxBackoffSeconds) * time.Second
}

func (v *ValidationSpec) QueryTimeout() time.Duration {
	return time.Duration(v.QueryTimeoutSeconds) * time.Second
}

// IsPullImage reports whether the docker runtime should pull before creating the container.
func (d *LocalDockerConfig) IsPullImage() bool {
	return d.PullImage == nil || *d.PullImage
}
