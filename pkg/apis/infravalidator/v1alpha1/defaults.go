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
	"k8s.io/utils/ptr"

	"github.com/kserve/infravalidator/pkg/constants"
)

// SetDefaults fills every optional field that has a documented default.
func (c *Config) SetDefaults() {
	c.ServingSpec.SetDefaults()
	c.ValidationSpec.SetDefaults()
	if c.RequestSpec != nil {
		c.RequestSpec.SetDefaults()
	}
}

func (s *ServingSpec) SetDefaults() {
	if s.ModelName == "" {
		s.ModelName = constants.DefaultModelName
	}
	if s.TensorFlowServing != nil && s.TensorFlowServing.ImageName == "" {
		s.TensorFlowServing.ImageName = constants.TFServingImageName
	}
	if s.KServeV2 != nil && s.KServeV2.ImageName == "" {
		s.KServeV2.ImageName = constants.KServeV2ImageName
	}
	if s.LocalDocker != nil && s.LocalDocker.PullImage == nil {
		s.LocalDocker.PullImage = ptr.To(true)
	}
	if k := s.Kubernetes; k != nil {
		if k.Namespace == "" {
			k.Namespace = constants.DefaultKubernetesNS
		}
		if k.StorageInitializerImage == "" {
			k.StorageInitializerImage = constants.DefaultStorageInitializer
		}
	}
}

func (v *ValidationSpec) SetDefaults() {
	if v.MaxLoadingTimeSeconds == 0 {
		v.MaxLoadingTimeSeconds = int64(constants.DefaultMaxLoadingTime.Seconds())
	}
	if v.NumTries == 0 {
		v.NumTries = constants.DefaultNumTries
	}
	if v.PollingIntervalSeconds == 0 {
		v.PollingIntervalSeconds = int64(constants.DefaultPollingInterval.Seconds())
	}
	if v.BackoffOffFactor == 0 {
		v.BackoffOffFactor = constants.DefaultBackoffOffFactor
	}
	if v.MaxBackoffSeconds == 0 {
		v.MaxBackoffSeconds = int64(constants.DefaultMaxBackoff.Seconds())
	}
	if v.QueryTimeoutSeconds == 0 {
		v.QueryTimeoutSeconds = int64(constants.DefaultQueryTimeout.Seconds())
	}
}

func (r *RequestSpec) SetDefaults() {
	if r.NumExamples == 0 {
		r.NumExamples = constants.DefaultNumExamples
	}
}
