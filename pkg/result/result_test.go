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
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/kserve/infravalidator/pkg/requestbuilder"
	"github.com/kserve/infravalidator/pkg/servingbinary"
	"github.com/kserve/infravalidator/pkg/validation"
)

func warmupRequests() []requestbuilder.Request {
	return []requestbuilder.Request{
		{SignatureName: "serving_default", Method: requestbuilder.Classify, WarmupRecord: []byte("first")},
		{SignatureName: "regression", Method: requestbuilder.Regress, WarmupRecord: []byte("second")},
	}
}

func TestBuild(t *testing.T) {
	scenarios := map[string]struct {
		verdict        validation.Verdict
		requests       []requestbuilder.Request
		makeWarmup     bool
		expectedWarmup int
	}{
		"blessedWithWarmup":    {verdict: validation.Blessed, requests: warmupRequests(), makeWarmup: true, expectedWarmup: 2},
		"blessedWithoutWarmup": {verdict: validation.Blessed, requests: warmupRequests(), makeWarmup: false},
		"notBlessed":           {verdict: validation.NotBlessed, requests: warmupRequests(), makeWarmup: true},
		"error":                {verdict: validation.Error, makeWarmup: true},
		"loadOnly":             {verdict: validation.Blessed, makeWarmup: true},
	}
	for name, scenario := range scenarios {
		result := Build(scenario.verdict, scenario.requests, scenario.makeWarmup, nil)
		if result.Verdict != scenario.verdict {
			t.Errorf("Test %q unexpected verdict %s", name, result.Verdict)
		}
		if len(result.WarmupRequests) != scenario.expectedWarmup {
			t.Errorf("Test %q expected %d warmup requests, got %d", name, scenario.expectedWarmup, len(result.WarmupRequests))
		}
		if result.Diagnostics.Verdict != scenario.verdict {
			t.Errorf("Test %q unexpected diagnostics verdict %s", name, result.Diagnostics.Verdict)
		}
	}
}

func TestNewDiagnostics(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	binary := servingbinary.ServingBinary{
		Flavor:    servingbinary.TFServing{},
		ModelName: "mnist",
		ImageName: "tensorflow/serving",
		Versions:  []string{"2.14.0"},
	}
	results := []validation.Result{{
		Binary: binary,
		Outcome: validation.Outcome{
			Verdict: validation.Blessed,
			Attempts: []validation.Attempt{
				{
					Number:     1,
					Verdict:    validation.Error,
					States:     []validation.State{validation.Init, validation.Provisioning, validation.AwaitingReady, validation.Errored},
					Err:        &validation.ReadinessTimeoutError{Deadline: time.Minute},
					ReleaseErr: errors.New("container busy"),
					Sandbox:    "sandbox-1",
					StartTime:  start,
					EndTime:    start.Add(time.Minute),
				},
				{
					Number:    2,
					Verdict:   validation.Blessed,
					States:    []validation.State{validation.Init, validation.Provisioning, validation.AwaitingReady, validation.Done},
					Sandbox:   "sandbox-2",
					StartTime: start.Add(2 * time.Minute),
					EndTime:   start.Add(3 * time.Minute),
				},
			},
		},
	}}

	expected := Diagnostics{
		Verdict: validation.Blessed,
		Binaries: []BinaryDiagnostics{{
			Binary:  "tensorflow_serving",
			Image:   "tensorflow/serving:2.14.0",
			Version: "2.14.0",
			Verdict: validation.Blessed,
			Attempts: []AttemptDiagnostic{
				{
					Attempt:      1,
					Verdict:      validation.Error,
					States:       []validation.State{validation.Init, validation.Provisioning, validation.AwaitingReady, validation.Errored},
					FailedIn:     validation.AwaitingReady,
					Cause:        "model did not become ready within 1m0s",
					ReleaseError: "container busy",
					Sandbox:      "sandbox-1",
					StartTime:    start,
					EndTime:      start.Add(time.Minute),
				},
				{
					Attempt:   2,
					Verdict:   validation.Blessed,
					States:    []validation.State{validation.Init, validation.Provisioning, validation.AwaitingReady, validation.Done},
					Sandbox:   "sandbox-2",
					StartTime: start.Add(2 * time.Minute),
					EndTime:   start.Add(3 * time.Minute),
				},
			},
		}},
	}
	if diff := cmp.Diff(expected, NewDiagnostics(validation.Blessed, results)); diff != "" {
		t.Errorf("Test %q unexpected result (-want +got): %v", "diagnostics", diff)
	}
}

func writeSourceModel(t *testing.T) string {
	dir := filepath.Join(t.TempDir(), "model")
	version := filepath.Join(dir, "3")
	require.NoError(t, os.MkdirAll(filepath.Join(version, "variables"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(version, "saved_model.pb"), []byte("graph"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(version, "variables", "variables.index"), []byte("index"), 0o644))
	return dir
}

func TestWriterMarkers(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	blessingDir := filepath.Join(t.TempDir(), "blessing")
	writer := &Writer{BlessingDir: blessingDir}

	require.NoError(t, writer.Write(Build(validation.NotBlessed, nil, false, nil)))
	g.Expect(filepath.Join(blessingDir, "INFRA_NOT_BLESSED")).To(gomega.BeAnExistingFile())

	require.NoError(t, writer.Write(Build(validation.Blessed, nil, false, nil)))
	g.Expect(filepath.Join(blessingDir, "INFRA_BLESSED")).To(gomega.BeAnExistingFile())
	g.Expect(filepath.Join(blessingDir, "INFRA_NOT_BLESSED")).NotTo(gomega.BeAnExistingFile())

	diagnostics, err := os.ReadFile(filepath.Join(blessingDir, "diagnostics.json"))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(gjson.GetBytes(diagnostics, "verdict").String()).To(gomega.Equal("BLESSED"))

	require.NoError(t, writer.Write(Build(validation.Error, nil, false, nil)))
	g.Expect(filepath.Join(blessingDir, "INFRA_ERROR")).To(gomega.BeAnExistingFile())
	g.Expect(filepath.Join(blessingDir, "INFRA_BLESSED")).NotTo(gomega.BeAnExistingFile())
}

func TestWriterWarmupModel(t *testing.T) {
	source := writeSourceModel(t)
	outputDir := filepath.Join(t.TempDir(), "output")
	writer := &Writer{BlessingDir: filepath.Join(t.TempDir(), "blessing"), ModelDir: outputDir, SourceModelDir: source}

	require.NoError(t, writer.Write(Build(validation.Blessed, warmupRequests(), true, nil)))

	graph, err := os.ReadFile(filepath.Join(outputDir, "saved_model.pb"))
	require.NoError(t, err)
	assert.Equal(t, "graph", string(graph))
	assert.FileExists(t, filepath.Join(outputDir, "variables", "variables.index"))

	data, err := os.ReadFile(filepath.Join(outputDir, "assets.extra", "tf_serving_warmup_requests"))
	require.NoError(t, err)
	reader := requestbuilder.NewTFRecordReader(bytes.NewReader(data))
	var records []string
	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		records = append(records, string(record))
	}
	assert.Equal(t, []string{"first", "second"}, records)
	assert.NoDirExists(t, filepath.Join(source, "3", "assets.extra"))
}

func TestWriterWarmupFailures(t *testing.T) {
	blessed := Build(validation.Blessed, warmupRequests(), true, nil)

	noRecords := Build(validation.Blessed, []requestbuilder.Request{{SignatureName: "serving_default"}}, true, nil)
	writers := map[string]struct {
		writer *Writer
		result InfraBlessingResult
	}{
		"noModelDir":     {&Writer{BlessingDir: t.TempDir(), SourceModelDir: writeSourceModel(t)}, blessed},
		"noSavedModel":   {&Writer{BlessingDir: t.TempDir(), ModelDir: t.TempDir(), SourceModelDir: t.TempDir()}, blessed},
		"noWarmupRecord": {&Writer{BlessingDir: t.TempDir(), ModelDir: t.TempDir(), SourceModelDir: writeSourceModel(t)}, noRecords},
	}
	for name, scenario := range writers {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, scenario.writer.Write(scenario.result))
			assert.FileExists(t, filepath.Join(scenario.writer.BlessingDir, "INFRA_ERROR"))
			assert.NoFileExists(t, filepath.Join(scenario.writer.BlessingDir, "INFRA_BLESSED"))
		})
	}
}

func TestWriterWarmupFailureRecordsError(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	blessingDir := t.TempDir()
	modelDir := filepath.Join(t.TempDir(), "model")
	require.NoError(t, os.WriteFile(modelDir, []byte("not a directory"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(blessingDir, "INFRA_BLESSED"), nil, 0o644))
	writer := &Writer{BlessingDir: blessingDir, ModelDir: modelDir, SourceModelDir: writeSourceModel(t)}

	err := writer.Write(Build(validation.Blessed, warmupRequests(), true, nil))

	g.Expect(err).To(gomega.HaveOccurred())
	g.Expect(filepath.Join(blessingDir, "INFRA_BLESSED")).NotTo(gomega.BeAnExistingFile())
	g.Expect(filepath.Join(blessingDir, "INFRA_ERROR")).To(gomega.BeAnExistingFile())
	diagnostics, readErr := os.ReadFile(filepath.Join(blessingDir, "diagnostics.json"))
	g.Expect(readErr).NotTo(gomega.HaveOccurred())
	g.Expect(gjson.GetBytes(diagnostics, "verdict").String()).To(gomega.Equal("ERROR"))
	g.Expect(gjson.GetBytes(diagnostics, "cause").String()).To(gomega.HavePrefix("failed to write warmup model: "))
}

func TestSetupFailure(t *testing.T) {
	result := SetupFailure(errors.New("failed to download gs://models/mnist"))
	assert.Equal(t, validation.Error, result.Verdict)
	assert.Equal(t, "failed to download gs://models/mnist", result.Diagnostics.Cause)
	assert.Empty(t, result.WarmupRequests)
	assert.Equal(t, "INFRA_ERROR", MarkerFileName(result.Verdict))
}
