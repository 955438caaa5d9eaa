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

package validation

import (
	"context"
	"net/http"

	"k8s.io/utils/clock"

	"github.com/kserve/infravalidator/pkg/apis/infravalidator/v1alpha1"
	"github.com/kserve/infravalidator/pkg/requestbuilder"
	"github.com/kserve/infravalidator/pkg/runtime"
	"github.com/kserve/infravalidator/pkg/servingbinary"
	"github.com/kserve/infravalidator/pkg/servingclient"
)

// ProbeSpec describes the requests of LOAD_AND_QUERY mode independently of the binary flavor.
type ProbeSpec struct {
	Examples       requestbuilder.ExampleSource
	SignatureNames []string
	Count          int
}

// Validator validates single-version binaries against one model on one runtime.
type Validator struct {
	Runtime runtime.Runtime
	Model   runtime.ModelArtifact
	Spec    v1alpha1.ValidationSpec
	// Probe is nil in LOAD_ONLY mode.
	Probe      *ProbeSpec
	HTTPClient *http.Client
	Clock      Clock
	// NewBuilder overrides the request builder of the binary.
	NewBuilder func(binary servingbinary.ServingBinary) requestbuilder.Builder
	// NewClient overrides the inference client of the binary.
	NewClient func(binary servingbinary.ServingBinary, address string) servingclient.Client
}

// Result is the validation outcome of one binary version.
type Result struct {
	Binary servingbinary.ServingBinary
	Outcome
}

func (v *Validator) clock() Clock {
	if v.Clock == nil {
		return clock.RealClock{}
	}
	return v.Clock
}

// StateMachine returns the state machine running the attempts of a single-version binary.
func (v *Validator) StateMachine(binary servingbinary.ServingBinary) *StateMachine {
	httpClient := v.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	machine := &StateMachine{
		Runtime: v.Runtime,
		Binary:  binary,
		Model:   v.Model,
		NewClient: func(address string) servingclient.Client {
			if v.NewClient != nil {
				return v.NewClient(binary, address)
			}
			return binary.NewClient(address, httpClient)
		},
		MaxLoadingTime:  v.Spec.MaxLoadingTime(),
		PollingInterval: v.Spec.PollingInterval(),
		QueryTimeout:    v.Spec.QueryTimeout(),
		Clock:           v.clock(),
	}
	if v.Probe != nil {
		builder := binary.RequestBuilder(v.Model.LocalPath)
		if v.NewBuilder != nil {
			builder = v.NewBuilder(binary)
		}
		machine.Probe = &Probe{
			Builder:        builder,
			Examples:       v.Probe.Examples,
			SignatureNames: v.Probe.SignatureNames,
			Count:          v.Probe.Count,
		}
	}
	return machine
}

func (v *Validator) RetryController() *RetryController {
	return &RetryController{
		NumTries:         int(v.Spec.NumTries),
		MaxLoadingTime:   v.Spec.MaxLoadingTime(),
		BackoffOffFactor: v.Spec.BackoffOffFactor,
		MaxBackoff:       v.Spec.MaxBackoff(),
		Clock:            v.clock(),
	}
}

// Validate runs the retried validation of a single-version binary.
func (v *Validator) Validate(ctx context.Context, binary servingbinary.ServingBinary) Result {
	log.Info("Validating serving binary", "binary", binary.String())
	outcome := v.RetryController().Run(ctx, v.StateMachine(binary).Run)
	log.Info("Serving binary validated", "binary", binary.String(), "verdict", outcome.Verdict, "attempts", len(outcome.Attempts))
	return Result{Binary: binary, Outcome: outcome}
}
