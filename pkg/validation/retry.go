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
	"math"
	"time"

	"github.com/go-logr/logr"

	"github.com/kserve/infravalidator/pkg/requestbuilder"
)

// AttemptFunc runs one numbered attempt, starting at 1.
type AttemptFunc func(ctx context.Context, number int) Attempt

// Outcome aggregates every attempt made for one binary version.
type Outcome struct {
	Verdict  Verdict
	Attempts []Attempt
}

// Requests returns the requests of the blessed attempt, if any.
func (o *Outcome) Requests() []requestbuilder.Request {
	for i := range o.Attempts {
		if o.Attempts[i].Verdict == Blessed {
			return o.Attempts[i].Requests
		}
	}
	return nil
}

// RetryController repeats attempts until one blesses or NumTries attempts were made, waiting an
// increasing, bounded delay between attempts.
type RetryController struct {
	NumTries int
	// The delay after attempt n is n * BackoffOffFactor * MaxLoadingTime, at most MaxBackoff.
	MaxLoadingTime   time.Duration
	BackoffOffFactor float64
	MaxBackoff       time.Duration
	Clock            Clock
	Log              logr.Logger
}

// Backoff is the delay after the given failed attempt. It never decreases with the attempt number.
func (r *RetryController) Backoff(attempt int) time.Duration {
	if attempt <= 0 || r.BackoffOffFactor <= 0 {
		return 0
	}
	backoff := time.Duration(math.Round(float64(attempt) * r.BackoffOffFactor * float64(r.MaxLoadingTime)))
	if r.MaxBackoff > 0 && backoff > r.MaxBackoff {
		return r.MaxBackoff
	}
	return backoff
}

// Run makes up to NumTries attempts and stops at the first blessed one. The verdict is BLESSED if any
// attempt blessed, otherwise the verdict of the last attempt. Cancelling ctx stops the retries.
func (r *RetryController) Run(ctx context.Context, attempt AttemptFunc) Outcome {
	logger := r.Log
	if logger.GetSink() == nil {
		logger = log
	}
	tries := r.NumTries
	if tries < 1 {
		tries = 1
	}
	outcome := Outcome{Verdict: Error}
	for number := 1; number <= tries; number++ {
		result := attempt(ctx, number)
		outcome.Attempts = append(outcome.Attempts, result)
		outcome.Verdict = result.Verdict
		if result.Verdict == Blessed || number == tries {
			break
		}

		backoff := r.Backoff(number)
		logger.Info("Retrying validation", "attempt", number, "verdict", result.Verdict, "backoff", backoff.String())
		if ctx.Err() != nil {
			break
		}
		if backoff > 0 {
			select {
			case <-ctx.Done():
			case <-r.Clock.After(backoff):
			}
			if ctx.Err() != nil {
				logger.Info("Validation cancelled between attempts", "attempts", number)
				break
			}
		}
	}
	return outcome
}
