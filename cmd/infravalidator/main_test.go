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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
servingSpec:
  tensorflowServing:
    tags: ["2.14.0"]
    digests: ["sha256:4f5e"]
  kubernetes:
    namespace: validation
model:
  uri: gs://models/mnist
requestSpec:
  tensorflowServing:
    signatureNames: ["serving_default"]
  makeWarmup: true
examples:
  uri: gs://examples/mnist
output:
  blessingDir: /tmp/blessing
  modelDir: /tmp/model
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateConfigCommand(t *testing.T) {
	opts := &Options{}
	cmd := newRootCommand(opts)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs([]string{"validate-config", "--config", writeConfig(t, testConfig)})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "config is valid: mode LOAD_AND_QUERY on kubernetes\n"+
		"  tensorflow_serving(tensorflow/serving:2.14.0)\n"+
		"  tensorflow_serving(tensorflow/serving@sha256:4f5e)\n", out.String())
}

func TestValidateConfigCommandRejectsInvalidConfig(t *testing.T) {
	cmd := newRootCommand(&Options{})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"validate-config", "--config", writeConfig(t, "servingSpec: {}\nmodel: {uri: /m}\noutput: {blessingDir: /b}\n")})

	assert.Error(t, cmd.Execute())
}

func TestRunRequiresConfig(t *testing.T) {
	cmd := newRootCommand(&Options{})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"run"})

	assert.ErrorContains(t, cmd.Execute(), "--config is required")
}

func TestLoadConfigOverrides(t *testing.T) {
	opts := &Options{
		configFile:     writeConfig(t, testConfig),
		modelURI:       "s3://models/mnist/3",
		examplesURI:    "/data/examples",
		blessingDir:    "/outputs/blessing",
		outputModelDir: "/outputs/model",
		sinkURL:        "http://broker.default.svc/events",
	}

	config, err := opts.loadConfig()

	require.NoError(t, err)
	assert.Equal(t, "s3://models/mnist/3", config.Model.URI)
	assert.Equal(t, "/data/examples", config.Examples.URI)
	assert.Equal(t, "/outputs/blessing", config.Output.BlessingDir)
	assert.Equal(t, "/outputs/model", config.Output.ModelDir)
	assert.Equal(t, "http://broker.default.svc/events", config.Output.SinkURL)
	assert.Equal(t, "validation", config.ServingSpec.Kubernetes.Namespace)
}
