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

package constants

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSandboxName(t *testing.T) {
	scenarios := map[string]struct {
		binary   string
		suffix   string
		expected string
	}{
		"simple": {
			binary:   "tensorflow_serving",
			suffix:   "1a2b",
			expected: "infraval-modelserver-tensorflow-serving-1a2b",
		},
		"truncated": {
			binary:   "kserve_v2",
			suffix:   "0123456789abcdef0123456789abcdef0123456789",
			expected: "infraval-modelserver-kserve-v2-0123456789abcdef0123456789abcdef",
		},
	}
	for name, scenario := range scenarios {
		t.Run(name, func(t *testing.T) {
			result := SandboxName(scenario.binary, scenario.suffix)
			if diff := cmp.Diff(scenario.expected, result); diff != "" {
				t.Errorf("Test %q unexpected result (-want +got): %v", t.Name(), diff)
			}
			if len(result) > 63 {
				t.Errorf("Test %q name too long: %d", t.Name(), len(result))
			}
		})
	}
}
