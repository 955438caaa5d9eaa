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
	"errors"
	"time"

	"k8s.io/utils/clock"
)

type Verdict string

const (
	Blessed    Verdict = "BLESSED"
	NotBlessed Verdict = "NOT_BLESSED"
	Error      Verdict = "ERROR"
)

// State is a step of a single validation attempt.
type State string

const (
	Init          State = "INIT"
	Provisioning  State = "PROVISIONING"
	AwaitingReady State = "AWAITING_READY"
	Querying      State = "QUERYING"
	Done          State = "DONE"
	Errored       State = "ERRORED"
)

// Mode tells whether an attempt only loads the model or also sends it requests.
type Mode string

const (
	LoadOnly     Mode = "LOAD_ONLY"
	LoadAndQuery Mode = "LOAD_AND_QUERY"
)

// Clock is the part of k8s.io/utils/clock the validation needs.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

var _ Clock = clock.RealClock{}

// VerdictOf classifies the error an attempt ended with. Only failed queries are a model failure,
// everything else went wrong before the model could be judged.
func VerdictOf(err error) Verdict {
	if err == nil {
		return Blessed
	}
	var queryFailure *QueryFailure
	if errors.As(err, &queryFailure) {
		return NotBlessed
	}
	return Error
}

// AggregateVerdicts combines the verdicts of independently validated binary versions. Every
// version has to bless, and an infrastructure error anywhere makes the whole validation an error.
func AggregateVerdicts(verdicts ...Verdict) Verdict {
	if len(verdicts) == 0 {
		return Error
	}
	result := Blessed
	for _, verdict := range verdicts {
		switch verdict {
		case Error:
			return Error
		case NotBlessed:
			result = NotBlessed
		case Blessed:
		default:
			return Error
		}
	}
	return result
}
