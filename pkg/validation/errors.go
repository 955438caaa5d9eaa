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
	"fmt"
	"strings"
	"time"
)

// ProvisionError is returned when the sandbox could not be created.
type ProvisionError struct {
	Cause error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("failed to provision sandbox: %v", e.Cause)
}

func (e *ProvisionError) Unwrap() error {
	return e.Cause
}

// ReadinessTimeoutError is returned when the model did not become servable within the loading deadline.
type ReadinessTimeoutError struct {
	Deadline time.Duration
	// LastStatus describes the last readiness observation.
	LastStatus string
}

func (e *ReadinessTimeoutError) Error() string {
	message := fmt.Sprintf("model did not become ready within %s", e.Deadline)
	if e.LastStatus != "" {
		message += ": " + e.LastStatus
	}
	return message
}

// ServerCrashedError is returned when the sandbox stopped or the server gave up loading the model.
type ServerCrashedError struct {
	Diagnostics string
	Cause       error
}

func (e *ServerCrashedError) Error() string {
	switch {
	case e.Cause != nil && e.Diagnostics != "":
		return fmt.Sprintf("model server crashed: %v\n%s", e.Cause, e.Diagnostics)
	case e.Cause != nil:
		return fmt.Sprintf("model server crashed: %v", e.Cause)
	}
	return "model server crashed: " + e.Diagnostics
}

func (e *ServerCrashedError) Unwrap() error {
	return e.Cause
}

// RequestBuildError is returned when probe requests could not be built from the model and the examples.
type RequestBuildError struct {
	Cause error
}

func (e *RequestBuildError) Error() string {
	return fmt.Sprintf("failed to build requests: %v", e.Cause)
}

func (e *RequestBuildError) Unwrap() error {
	return e.Cause
}

// QueryTimeoutError is returned when a probe request did not complete in time. It cannot tell a
// stalled model from stalled infrastructure and so is not a model failure.
type QueryTimeoutError struct {
	SignatureName string
	Timeout       time.Duration
	Cause         error
}

func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("request for signature %q did not complete within %s: %v", e.SignatureName, e.Timeout, e.Cause)
}

func (e *QueryTimeoutError) Unwrap() error {
	return e.Cause
}

// QueryFailure reports probe requests the loaded model server failed to answer.
type QueryFailure struct {
	Total  int
	Causes []error
}

func (e *QueryFailure) Error() string {
	messages := make([]string, 0, len(e.Causes))
	for _, cause := range e.Causes {
		messages = append(messages, cause.Error())
	}
	return fmt.Sprintf("%d of %d requests failed: %s", len(e.Causes), e.Total, strings.Join(messages, "; "))
}

// ConfigError stops a validation before any attempt starts.
type ConfigError struct {
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %v", e.Cause)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}
