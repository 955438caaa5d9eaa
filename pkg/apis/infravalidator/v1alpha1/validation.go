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
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/go-playground/validator.v9"
	"sigs.k8s.io/yaml"
)

// Known error messages
const (
	NoBinarySelectedError       = "servingSpec: exactly one serving binary must be set, got none"
	AmbiguousBinaryError        = "servingSpec: exactly one serving binary must be set, got %d"
	NoRuntimeSelectedError      = "servingSpec: exactly one runtime must be set, got none"
	AmbiguousRuntimeError       = "servingSpec: exactly one runtime must be set, got %d"
	UnsupportedPairingError     = "servingSpec: binary %q is not supported on runtime %q"
	NoVersionError              = "servingSpec.%s: at least one tag or digest is required"
	RequestFlavorMismatchError  = "requestSpec: request settings for %q do not match serving binary %q"
	AmbiguousRequestFlavorError = "requestSpec: exactly one request flavor must be set, got %d"
	WarmupUnsupportedError      = "requestSpec.makeWarmup is not supported by serving binary %q"
	WarmupOutputRequiredError   = "output.modelDir is required when requestSpec.makeWarmup is set"
	ExamplesRequiredError       = "examples is required when requestSpec is set"
)

// SupportedPairings lists every binary flavor each runtime can host.
var SupportedPairings = map[RuntimeType][]BinaryType{
	LocalDockerRuntime: {TensorFlowServingBinary, KServeV2Binary},
	KubernetesRuntime:  {TensorFlowServingBinary, KServeV2Binary},
}

var validate = validator.New()

// Validate checks the struct tags and the one-of rules of every configuration axis.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.ServingSpec.Validate(); err != nil {
		return err
	}
	if err := c.ValidationSpec.Validate(); err != nil {
		return err
	}
	if c.RequestSpec != nil {
		if err := c.RequestSpec.Validate(c.ServingSpec.Binary()); err != nil {
			return err
		}
		if c.Examples == nil {
			return errors.New(ExamplesRequiredError)
		}
		if c.RequestSpec.MakeWarmup && c.Output.ModelDir == "" {
			return errors.New(WarmupOutputRequiredError)
		}
	}
	return nil
}

func (s *ServingSpec) Validate() error {
	binaries := 0
	if s.TensorFlowServing != nil {
		binaries++
		if len(s.TensorFlowServing.Tags)+len(s.TensorFlowServing.Digests) == 0 {
			return fmt.Errorf(NoVersionError, "tensorflowServing")
		}
	}
	if s.KServeV2 != nil {
		binaries++
		if len(s.KServeV2.Tags) == 0 {
			return fmt.Errorf(NoVersionError, "kserveV2")
		}
	}
	switch {
	case binaries == 0:
		return errors.New(NoBinarySelectedError)
	case binaries > 1:
		return fmt.Errorf(AmbiguousBinaryError, binaries)
	}

	runtimes := 0
	if s.LocalDocker != nil {
		runtimes++
	}
	if s.Kubernetes != nil {
		runtimes++
	}
	switch {
	case runtimes == 0:
		return errors.New(NoRuntimeSelectedError)
	case runtimes > 1:
		return fmt.Errorf(AmbiguousRuntimeError, runtimes)
	}

	for _, supported := range SupportedPairings[s.Runtime()] {
		if supported == s.Binary() {
			return nil
		}
	}
	return fmt.Errorf(UnsupportedPairingError, s.Binary(), s.Runtime())
}

func (v *ValidationSpec) Validate() error {
	if v.MaxLoadingTimeSeconds <= 0 {
		return errors.New("validationSpec.maxLoadingTimeSeconds must be positive")
	}
	if v.NumTries <= 0 {
		return errors.New("validationSpec.numTries must be positive")
	}
	if v.PollingIntervalSeconds <= 0 {
		return errors.New("validationSpec.pollingIntervalSeconds must be positive")
	}
	return nil
}

func (r *RequestSpec) Validate(binary BinaryType) error {
	var flavor BinaryType
	flavors := 0
	if r.TensorFlowServing != nil {
		flavors++
		flavor = TensorFlowServingBinary
	}
	if r.KServeV2 != nil {
		flavors++
		flavor = KServeV2Binary
	}
	if flavors > 1 {
		return fmt.Errorf(AmbiguousRequestFlavorError, flavors)
	}
	// An empty request spec probes the default signature of the configured binary.
	if flavors == 1 && flavor != binary {
		return fmt.Errorf(RequestFlavorMismatchError, flavor, binary)
	}
	return nil
}

// Complete applies the defaults and validates the configuration.
func (c *Config) Complete() error {
	c.SetDefaults()
	return c.Validate()
}

// Load reads a YAML or JSON configuration file. The result is not validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	return Decode(data)
}

// Decode decodes a YAML or JSON configuration, rejecting unknown fields.
func Decode(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	return config, nil
}
