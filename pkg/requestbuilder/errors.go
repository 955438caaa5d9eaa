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

package requestbuilder

import (
	"fmt"
	"strings"
)

// SignatureNotFoundError is returned when none of the requested signatures is exported by the model.
type SignatureNotFoundError struct {
	Requested []string
	Available []string
}

func (e *SignatureNotFoundError) Error() string {
	return fmt.Sprintf("none of the signatures [%s] found in the model, available signatures are [%s]",
		strings.Join(e.Requested, ", "), strings.Join(e.Available, ", "))
}

// UnsupportedSignatureError is returned for a signature that cannot take a single serialized example.
type UnsupportedSignatureError struct {
	Signature string
	Reason    string
}

func (e *UnsupportedSignatureError) Error() string {
	return fmt.Sprintf("signature (%s) is not supported: %s", e.Signature, e.Reason)
}
