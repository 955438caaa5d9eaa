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
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Settings are process level knobs read from the environment.
type Settings struct {
	WorkDir        string `envconfig:"INFRAVAL_WORK_DIR" default:"/tmp/infravalidator"`
	DockerHost     string `envconfig:"INFRAVAL_DOCKER_HOST"`
	Namespace      string `envconfig:"INFRAVAL_NAMESPACE"`
	ParallelFanout bool   `envconfig:"INFRAVAL_PARALLEL_FANOUT" default:"false"`
}

func LoadSettings() (Settings, error) {
	var settings Settings
	if err := envconfig.Process("", &settings); err != nil {
		return Settings{}, errors.Wrap(err, "failed to read settings from the environment")
	}
	return settings, nil
}
