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

package result

import (
	"time"

	"github.com/kserve/infravalidator/pkg/constants"
	"github.com/kserve/infravalidator/pkg/requestbuilder"
	"github.com/kserve/infravalidator/pkg/validation"
)

// InfraBlessingResult is the final output of a validation.
type InfraBlessingResult struct {
	Verdict validation.Verdict
	// WarmupRequests are written into the output model next to the copied model. Only set when the
	// model blessed and warmup requests were asked for.
	WarmupRequests []requestbuilder.Request
	Diagnostics    Diagnostics
}

// Diagnostics is the content of diagnostics.json.
type Diagnostics struct {
	Verdict validation.Verdict `json:"verdict"`
	// Cause is set when the validation failed before any binary was validated.
	Cause    string              `json:"cause,omitempty"`
	Binaries []BinaryDiagnostics `json:"binaries,omitempty"`
}

type BinaryDiagnostics struct {
	Binary   string              `json:"binary"`
	Image    string              `json:"image"`
	Version  string              `json:"version"`
	Verdict  validation.Verdict  `json:"verdict"`
	Attempts []AttemptDiagnostic `json:"attempts"`
}

type AttemptDiagnostic struct {
	Attempt      int                `json:"attempt"`
	Verdict      validation.Verdict `json:"verdict"`
	States       []validation.State `json:"states"`
	FailedIn     validation.State   `json:"failedIn,omitempty"`
	Cause        string             `json:"cause,omitempty"`
	ReleaseError string             `json:"releaseError,omitempty"`
	Sandbox      string             `json:"sandbox,omitempty"`
	Requests     int                `json:"requests,omitempty"`
	StartTime    time.Time          `json:"startTime"`
	EndTime      time.Time          `json:"endTime"`
}

// Build assembles the result of a validation. It only keeps the requests when they have to become
// warmup requests, that is when the model blessed with makeWarmup set.
func Build(verdict validation.Verdict, requests []requestbuilder.Request, makeWarmup bool, results []validation.Result) InfraBlessingResult {
	result := InfraBlessingResult{
		Verdict:     verdict,
		Diagnostics: NewDiagnostics(verdict, results),
	}
	if verdict == validation.Blessed && makeWarmup && len(requests) > 0 {
		result.WarmupRequests = append([]requestbuilder.Request{}, requests...)
	}
	return result
}

func NewDiagnostics(verdict validation.Verdict, results []validation.Result) Diagnostics {
	diagnostics := Diagnostics{Verdict: verdict}
	for _, result := range results {
		binary := BinaryDiagnostics{
			Binary:   string(result.Binary.Flavor.Type()),
			Image:    result.Binary.Image(),
			Version:  result.Binary.Version(),
			Verdict:  result.Verdict,
			Attempts: make([]AttemptDiagnostic, 0, len(result.Attempts)),
		}
		for _, attempt := range result.Attempts {
			diagnostic := AttemptDiagnostic{
				Attempt:   attempt.Number,
				Verdict:   attempt.Verdict,
				States:    attempt.States,
				FailedIn:  attempt.FailedIn(),
				Sandbox:   attempt.Sandbox,
				Requests:  len(attempt.Requests),
				StartTime: attempt.StartTime,
				EndTime:   attempt.EndTime,
			}
			if attempt.Err != nil {
				diagnostic.Cause = attempt.Err.Error()
			}
			if attempt.ReleaseErr != nil {
				diagnostic.ReleaseError = attempt.ReleaseErr.Error()
			}
			binary.Attempts = append(binary.Attempts, diagnostic)
		}
		diagnostics.Binaries = append(diagnostics.Binaries, binary)
	}
	return diagnostics
}

// SetupFailure is the result of a validation that could not start, such as a model that failed to stage.
func SetupFailure(err error) InfraBlessingResult {
	result := Build(validation.Error, nil, false, nil)
	result.Diagnostics.Cause = err.Error()
	return result
}

// MarkerFileName is the file marking the verdict in the blessing directory.
func MarkerFileName(verdict validation.Verdict) string {
	switch verdict {
	case validation.Blessed:
		return constants.BlessedFileName
	case validation.NotBlessed:
		return constants.NotBlessedFileName
	}
	return constants.ErrorFileName
}
