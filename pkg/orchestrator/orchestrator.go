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

package orchestrator

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/kserve/infravalidator/pkg/apis/infravalidator/v1alpha1"
	"github.com/kserve/infravalidator/pkg/notifier"
	"github.com/kserve/infravalidator/pkg/requestbuilder"
	"github.com/kserve/infravalidator/pkg/result"
	"github.com/kserve/infravalidator/pkg/runtime"
	"github.com/kserve/infravalidator/pkg/runtime/docker"
	"github.com/kserve/infravalidator/pkg/runtime/kubernetes"
	"github.com/kserve/infravalidator/pkg/servingbinary"
	"github.com/kserve/infravalidator/pkg/servingclient"
	"github.com/kserve/infravalidator/pkg/storage"
	"github.com/kserve/infravalidator/pkg/validation"
)

var log = logf.Log.WithName("orchestrator")

// VerdictNotifier publishes the final verdict.
type VerdictNotifier interface {
	Notify(ctx context.Context, event notifier.VerdictEvent) error
}

// Orchestrator runs a whole infra validation: it stages the inputs, validates every version of the
// serving binary and writes the blessing.
type Orchestrator struct {
	Config    *v1alpha1.Config
	Settings  Settings
	Providers map[storage.Protocol]storage.Provider
	// Runtime overrides the runtime selected by the configuration.
	Runtime    runtime.Runtime
	Notifier   VerdictNotifier
	HTTPClient *http.Client
	Clock      validation.Clock
	// NewClient overrides the inference client of the serving binary.
	NewClient func(binary servingbinary.ServingBinary, address string) servingclient.Client
}

func (o *Orchestrator) applySettings() {
	spec := &o.Config.ServingSpec
	if spec.LocalDocker != nil && spec.LocalDocker.DockerHost == "" {
		spec.LocalDocker.DockerHost = o.Settings.DockerHost
	}
	if spec.Kubernetes != nil && spec.Kubernetes.Namespace == "" {
		spec.Kubernetes.Namespace = o.Settings.Namespace
	}
}

// Prepare completes and validates the configuration. Failures are configuration errors.
func (o *Orchestrator) Prepare() (servingbinary.ServingBinary, error) {
	o.applySettings()
	if err := o.Config.Complete(); err != nil {
		return servingbinary.ServingBinary{}, &validation.ConfigError{Cause: err}
	}
	if o.Config.ServingSpec.Runtime() == v1alpha1.KubernetesRuntime {
		protocol, err := storage.GetProtocol(o.Config.Model.URI)
		if err != nil {
			return servingbinary.ServingBinary{}, &validation.ConfigError{Cause: err}
		}
		if protocol == storage.FILE {
			return servingbinary.ServingBinary{}, &validation.ConfigError{
				Cause: errors.Errorf("model %s is a local path, the kubernetes runtime needs a remote storage URI", o.Config.Model.URI),
			}
		}
	}
	binary, err := servingbinary.NewServingBinary(&o.Config.ServingSpec)
	if err != nil {
		return servingbinary.ServingBinary{}, &validation.ConfigError{Cause: err}
	}
	if spec := o.Config.RequestSpec; spec != nil && spec.MakeWarmup && !binary.Flavor.SupportsWarmup() {
		return servingbinary.ServingBinary{}, &validation.ConfigError{
			Cause: errors.Errorf(v1alpha1.WarmupUnsupportedError, binary.Flavor.Type()),
		}
	}
	return binary, nil
}

// Run validates the model and writes the result. Only configuration errors and failures to write the
// result are returned; every other failure ends up in the written verdict.
func (o *Orchestrator) Run(ctx context.Context) (result.InfraBlessingResult, error) {
	binary, err := o.Prepare()
	if err != nil {
		return result.InfraBlessingResult{}, err
	}

	if err := os.MkdirAll(o.Settings.WorkDir, 0o755); err != nil {
		return result.InfraBlessingResult{}, errors.Wrapf(err, "failed to create work dir %s", o.Settings.WorkDir)
	}
	runDir, err := os.MkdirTemp(o.Settings.WorkDir, "run-")
	if err != nil {
		return result.InfraBlessingResult{}, errors.Wrap(err, "failed to create run dir")
	}
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			log.Error(err, "Failed to clean up run dir", "dir", runDir)
		}
	}()

	model, err := o.stageModel(ctx, runDir)
	if err != nil {
		return o.finish(ctx, result.SetupFailure(err), "")
	}
	validator, err := o.validator(ctx, runDir, model)
	if err != nil {
		return o.finish(ctx, result.SetupFailure(err), model.LocalPath)
	}

	binaries := binary.Fanout()
	results := o.validateAll(ctx, validator, binaries)
	verdicts := make([]validation.Verdict, 0, len(results))
	for _, r := range results {
		verdicts = append(verdicts, r.Verdict)
	}
	verdict := validation.AggregateVerdicts(verdicts...)

	var requests []requestbuilder.Request
	if len(results) > 0 {
		requests = results[0].Requests()
	}
	makeWarmup := o.Config.RequestSpec != nil && o.Config.RequestSpec.MakeWarmup
	log.Info("Validation finished", "verdict", verdict, "binaries", len(binaries))
	return o.finish(ctx, result.Build(verdict, requests, makeWarmup, results), model.LocalPath)
}

// stageModel makes the model available locally and resolves the directory holding the saved model.
func (o *Orchestrator) stageModel(ctx context.Context, runDir string) (runtime.ModelArtifact, error) {
	uri := o.Config.Model.URI
	staged, err := storage.Stage(ctx, o.Providers, uri, filepath.Join(runDir, "model"))
	if err != nil {
		return runtime.ModelArtifact{}, errors.Wrap(err, "failed to stage model")
	}
	savedModelDir, err := requestbuilder.FindSavedModel(staged)
	if err != nil {
		return runtime.ModelArtifact{}, err
	}
	// Remote copies of a versioned model directory are addressed at the version itself.
	if relative, err := filepath.Rel(staged, savedModelDir); err == nil && relative != "." {
		uri = strings.TrimSuffix(uri, "/") + "/" + filepath.ToSlash(relative)
	}
	return runtime.ModelArtifact{URI: uri, LocalPath: savedModelDir}, nil
}

func (o *Orchestrator) validator(ctx context.Context, runDir string, model runtime.ModelArtifact) (*validation.Validator, error) {
	rt, err := o.runtime(runDir)
	if err != nil {
		return nil, err
	}
	validator := &validation.Validator{
		Runtime:    rt,
		Model:      model,
		Spec:       o.Config.ValidationSpec,
		HTTPClient: o.HTTPClient,
		Clock:      o.Clock,
		NewClient:  o.NewClient,
	}
	if spec := o.Config.RequestSpec; spec != nil {
		examplesDir, err := storage.Stage(ctx, o.Providers, o.Config.Examples.URI, filepath.Join(runDir, "examples"))
		if err != nil {
			return nil, errors.Wrap(err, "failed to stage examples")
		}
		validator.Probe = &validation.ProbeSpec{
			Examples: &requestbuilder.TFRecordExampleSource{
				Dir:         examplesDir,
				SplitName:   spec.SplitName,
				Compression: o.Config.Examples.Compression,
			},
			SignatureNames: spec.SignatureNames(),
			Count:          int(spec.NumExamples),
		}
	}
	return validator, nil
}

func (o *Orchestrator) runtime(runDir string) (runtime.Runtime, error) {
	if o.Runtime != nil {
		return o.Runtime, nil
	}
	spec := o.Config.ServingSpec
	switch spec.Runtime() {
	case v1alpha1.LocalDockerRuntime:
		client, err := docker.NewClient(spec.LocalDocker)
		if err != nil {
			return nil, err
		}
		return &docker.Runtime{
			Client:    client,
			WorkDir:   filepath.Join(runDir, "sandboxes"),
			PullImage: spec.LocalDocker.IsPullImage(),
		}, nil
	case v1alpha1.KubernetesRuntime:
		clientset, err := kubernetes.NewClientset()
		if err != nil {
			return nil, err
		}
		return &kubernetes.Runtime{Client: clientset, Config: *spec.Kubernetes}, nil
	}
	return nil, errors.Errorf("unsupported runtime %q", spec.Runtime())
}

// validateAll validates every single-version binary, sequentially unless parallel fanout is enabled.
// Each version gets its own sandboxes.
func (o *Orchestrator) validateAll(ctx context.Context, validator *validation.Validator, binaries []servingbinary.ServingBinary) []validation.Result {
	results := make([]validation.Result, len(binaries))
	if !o.Settings.ParallelFanout || len(binaries) < 2 {
		for i, binary := range binaries {
			results[i] = validator.Validate(ctx, binary)
		}
		return results
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for i, binary := range binaries {
		group.Go(func() error {
			results[i] = validator.Validate(groupCtx, binary)
			return nil
		})
	}
	// Validate reports failures through its result, the group never fails.
	_ = group.Wait()
	return results
}

// finish writes the result and publishes the verdict.
func (o *Orchestrator) finish(ctx context.Context, res result.InfraBlessingResult, modelDir string) (result.InfraBlessingResult, error) {
	writer := &result.Writer{
		BlessingDir:    o.Config.Output.BlessingDir,
		ModelDir:       o.Config.Output.ModelDir,
		SourceModelDir: modelDir,
	}
	if err := writer.Write(res); err != nil {
		return res, errors.Wrap(err, "failed to write the validation result")
	}
	o.notify(ctx, res)
	return res, nil
}

func (o *Orchestrator) notify(ctx context.Context, res result.InfraBlessingResult) {
	notify := o.Notifier
	if notify == nil {
		if o.Config.Output.SinkURL == "" {
			return
		}
		sink, err := notifier.NewNotifier(o.Config.Output.SinkURL)
		if err != nil {
			log.Error(err, "Unable to create notifier", "sinkUrl", o.Config.Output.SinkURL)
			return
		}
		notify = sink
	}
	event := notifier.VerdictEvent{
		ModelURI:    o.Config.Model.URI,
		BlessingDir: o.Config.Output.BlessingDir,
		Diagnostics: res.Diagnostics,
	}
	if len(res.WarmupRequests) > 0 {
		event.ModelDir = o.Config.Output.ModelDir
	}
	if err := notify.Notify(ctx, event); err != nil {
		log.Error(err, "Failed to publish verdict", "verdict", res.Verdict)
	}
}
