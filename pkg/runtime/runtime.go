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

package runtime

import (
	"context"
	"fmt"

	"github.com/kserve/infravalidator/pkg/servingbinary"
)

type Phase string

const (
	NotReady Phase = "NotReady"
	Ready    Phase = "Ready"
	Crashed  Phase = "Crashed"
)

// Status is the outcome of a single readiness check of a sandbox.
type Status struct {
	Phase Phase
	// Address is the host:port the model server answers on, set when Ready.
	Address string
	// Diagnostics describe why the sandbox crashed.
	Diagnostics string
}

func NotReadyStatus() Status {
	return Status{Phase: NotReady}
}

func ReadyStatus(address string) Status {
	return Status{Phase: Ready, Address: address}
}

func CrashedStatus(format string, args ...interface{}) Status {
	return Status{Phase: Crashed, Diagnostics: fmt.Sprintf(format, args...)}
}

// ModelArtifact locates the candidate model. URI is the durable location, LocalPath a staged copy of it.
type ModelArtifact struct {
	URI       string
	LocalPath string
}

// Sandbox is a runtime specific handle to one model server instance.
type Sandbox interface {
	Name() string
}

// Runtime provisions and tears down model server sandboxes.
type Runtime interface {
	// Provision starts a sandbox and returns without waiting for the server to be ready.
	Provision(ctx context.Context, binary servingbinary.ServingBinary, model ModelArtifact) (Sandbox, error)
	// PollReady checks the sandbox once. Errors are transient failures of the check itself.
	PollReady(ctx context.Context, sandbox Sandbox) (Status, error)
	// Release tears the sandbox down. Releasing an already released sandbox is a no-op.
	Release(ctx context.Context, sandbox Sandbox) error
}

// SandboxMismatchError is returned when a runtime is handed a sandbox created by another runtime.
type SandboxMismatchError struct {
	Runtime string
	Sandbox Sandbox
}

func (e *SandboxMismatchError) Error() string {
	return fmt.Sprintf("%s runtime cannot manage sandbox %s of type %T", e.Runtime, e.Sandbox.Name(), e.Sandbox)
}
