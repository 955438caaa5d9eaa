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
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/kserve/infravalidator/pkg/requestbuilder"
	"github.com/kserve/infravalidator/pkg/runtime"
	"github.com/kserve/infravalidator/pkg/servingbinary"
	"github.com/kserve/infravalidator/pkg/servingclient"
)

var log = logf.Log.WithName("validation")

// Probe describes the requests sent once the model is loaded.
type Probe struct {
	Builder        requestbuilder.Builder
	Examples       requestbuilder.ExampleSource
	SignatureNames []string
	Count          int
}

// Attempt is the outcome of one run of the state machine.
type Attempt struct {
	Number  int
	Verdict Verdict
	// States lists every state the attempt went through, ending in DONE or ERRORED.
	States []State
	// Err is the cause of a verdict other than BLESSED.
	Err error
	// ReleaseErr is set when the sandbox could not be torn down.
	ReleaseErr error
	Sandbox    string
	StartTime  time.Time
	EndTime    time.Time
	// Requests that were sent, in order.
	Requests []requestbuilder.Request
}

// FinalState is the terminal state of the attempt.
func (a *Attempt) FinalState() State {
	if len(a.States) == 0 {
		return Init
	}
	return a.States[len(a.States)-1]
}

// FailedIn is the last state entered before the attempt errored.
func (a *Attempt) FailedIn() State {
	if a.FinalState() != Errored || len(a.States) < 2 {
		return ""
	}
	return a.States[len(a.States)-2]
}

// StateMachine runs a single validation attempt of one binary version:
// INIT -> PROVISIONING -> AWAITING_READY -> (QUERYING) -> DONE, or ERRORED from any state.
// It holds no state across runs and may run attempts in parallel.
type StateMachine struct {
	Runtime runtime.Runtime
	Binary  servingbinary.ServingBinary
	Model   runtime.ModelArtifact
	// Probe is nil in LOAD_ONLY mode.
	Probe *Probe
	// NewClient creates the inference client once the sandbox has an address.
	NewClient       func(address string) servingclient.Client
	MaxLoadingTime  time.Duration
	PollingInterval time.Duration
	QueryTimeout    time.Duration
	Clock           Clock
	Log             logr.Logger
}

func (m *StateMachine) Mode() Mode {
	if m.Probe == nil {
		return LoadOnly
	}
	return LoadAndQuery
}

type attemptRun struct {
	*Attempt
	log logr.Logger
}

func (a *attemptRun) enter(state State) {
	a.States = append(a.States, state)
	a.log.V(1).Info("Entering state", "state", state)
}

// Run executes one attempt. It never returns before the sandbox it provisioned is released and
// reports every failure through the returned attempt.
func (m *StateMachine) Run(ctx context.Context, number int) (attempt Attempt) {
	logger := m.Log
	if logger.GetSink() == nil {
		logger = log
	}
	run := &attemptRun{
		Attempt: &attempt,
		log:     logger.WithValues("binary", m.Binary.Flavor.Type(), "version", m.Binary.Version(), "attempt", number),
	}
	attempt.Number = number
	attempt.StartTime = m.Clock.Now()
	run.enter(Init)

	defer func() {
		if r := recover(); r != nil {
			attempt.Err = fmt.Errorf("validation attempt panicked: %v", r)
		}
		if attempt.Err != nil && VerdictOf(attempt.Err) == Error {
			run.enter(Errored)
		} else {
			run.enter(Done)
		}
		attempt.Verdict = VerdictOf(attempt.Err)
		attempt.EndTime = m.Clock.Now()
		if attempt.Err != nil {
			run.log.Info("Validation attempt failed", "verdict", attempt.Verdict, "state", attempt.FailedIn(), "cause", attempt.Err.Error())
		} else {
			run.log.Info("Validation attempt blessed", "mode", m.Mode())
		}
	}()

	attempt.Err = m.run(ctx, run)
	return attempt
}

func (m *StateMachine) run(ctx context.Context, run *attemptRun) error {
	run.enter(Provisioning)
	sandbox, err := m.Runtime.Provision(ctx, m.Binary, m.Model)
	if err != nil {
		return &ProvisionError{Cause: err}
	}
	run.Sandbox = sandbox.Name()
	run.log.Info("Provisioned sandbox", "sandbox", sandbox.Name())
	defer func() {
		// The attempt context may already be cancelled, the sandbox still has to go.
		if err := m.Runtime.Release(context.WithoutCancel(ctx), sandbox); err != nil {
			run.ReleaseErr = err
			run.log.Error(err, "Failed to release sandbox", "sandbox", sandbox.Name())
			return
		}
		run.log.V(1).Info("Released sandbox", "sandbox", sandbox.Name())
	}()

	run.enter(AwaitingReady)
	client, err := m.awaitReady(ctx, run, sandbox)
	if err != nil {
		return err
	}
	if m.Probe == nil {
		return nil
	}

	run.enter(Querying)
	return m.query(ctx, run, client)
}

// awaitReady polls the sandbox until the model server reports the model as available. The deadline
// is checked on every iteration and no wait extends past it.
func (m *StateMachine) awaitReady(ctx context.Context, run *attemptRun, sandbox runtime.Sandbox) (servingclient.Client, error) {
	deadline := m.Clock.Now().Add(m.MaxLoadingTime)
	var client servingclient.Client
	var address string
	lastStatus := ""
	for {
		remaining := deadline.Sub(m.Clock.Now())
		if remaining <= 0 {
			return nil, &ReadinessTimeoutError{Deadline: m.MaxLoadingTime, LastStatus: lastStatus}
		}

		ready, status, err := m.pollOnce(ctx, sandbox, remaining, &client, &address)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			var crashed *ServerCrashedError
			if errors.As(err, &crashed) {
				return nil, err
			}
			lastStatus = err.Error()
			run.log.V(1).Info("Readiness check failed", "error", err.Error())
		case ready:
			run.log.Info("Model is ready", "address", address)
			return client, nil
		default:
			lastStatus = status
		}

		remaining = deadline.Sub(m.Clock.Now())
		if remaining <= 0 {
			return nil, &ReadinessTimeoutError{Deadline: m.MaxLoadingTime, LastStatus: lastStatus}
		}
		wait := m.PollingInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.Clock.After(wait):
		}
	}
}

// pollOnce checks the sandbox and, once it has an address, the model status reported by the server.
func (m *StateMachine) pollOnce(ctx context.Context, sandbox runtime.Sandbox, remaining time.Duration,
	client *servingclient.Client, address *string) (bool, string, error) {
	pollCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	status, err := m.Runtime.PollReady(pollCtx, sandbox)
	if err != nil {
		return false, "", err
	}
	switch status.Phase {
	case runtime.Crashed:
		return false, "", &ServerCrashedError{Diagnostics: status.Diagnostics}
	case runtime.NotReady:
		return false, "sandbox is not ready", nil
	}

	if *client == nil || *address != status.Address {
		*address = status.Address
		*client = m.NewClient(status.Address)
	}
	ready, err := (*client).Ready(pollCtx)
	if err != nil {
		if errors.Is(err, servingclient.ErrModelLoadFailed) {
			return false, "", &ServerCrashedError{Cause: err}
		}
		return false, "", err
	}
	if !ready {
		return false, "model is not available on " + status.Address, nil
	}
	return true, "", nil
}

// query builds the probe requests and sends every one of them.
func (m *StateMachine) query(ctx context.Context, run *attemptRun, client servingclient.Client) error {
	requests, err := m.Probe.Builder.BuildRequests(m.Probe.Examples, m.Probe.SignatureNames, m.Probe.Count)
	if err != nil {
		return &RequestBuildError{Cause: err}
	}
	if len(requests) == 0 {
		return &RequestBuildError{Cause: errors.New("no requests were built from the examples")}
	}
	run.Requests = requests

	failure := &QueryFailure{Total: len(requests)}
	for i, request := range requests {
		if err := m.send(ctx, client, request); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return &QueryTimeoutError{SignatureName: request.SignatureName, Timeout: m.QueryTimeout, Cause: err}
			}
			run.log.Info("Request failed", "index", i, "signature", request.SignatureName, "error", err.Error())
			failure.Causes = append(failure.Causes, fmt.Errorf("request %d (%s): %w", i, request.SignatureName, err))
		}
	}
	if len(failure.Causes) > 0 {
		return failure
	}
	run.log.Info("All requests succeeded", "requests", len(requests))
	return nil
}

func (m *StateMachine) send(ctx context.Context, client servingclient.Client, request requestbuilder.Request) error {
	if m.QueryTimeout <= 0 {
		return client.Send(ctx, request)
	}
	queryCtx, cancel := context.WithTimeout(ctx, m.QueryTimeout)
	defer cancel()
	return client.Send(queryCtx, request)
}
