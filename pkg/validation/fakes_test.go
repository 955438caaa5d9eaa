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
	"fmt"
	"sync"
	"time"

	"github.com/kserve/infravalidator/pkg/requestbuilder"
	"github.com/kserve/infravalidator/pkg/runtime"
	"github.com/kserve/infravalidator/pkg/servingbinary"
)

// fakeClock moves time forward by exactly the duration waited for, so waits return immediately.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration{}, c.waits...)
}

type fakeSandbox struct {
	name string
}

func (s *fakeSandbox) Name() string {
	return s.name
}

// fakeRuntime replays statuses, repeating the last one once they run out.
type fakeRuntime struct {
	mu           sync.Mutex
	provisionErr error
	releaseErr   error
	statuses     []runtime.Status
	pollErrs     []error
	onPoll       func(poll int)

	provisioned int
	released    map[string]int
	polls       int
	events      []string
}

var _ runtime.Runtime = (*fakeRuntime)(nil)

func (f *fakeRuntime) Provision(_ context.Context, binary servingbinary.ServingBinary, _ runtime.ModelArtifact) (runtime.Sandbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "provision")
	if f.provisionErr != nil {
		return nil, f.provisionErr
	}
	f.provisioned++
	return &fakeSandbox{name: fmt.Sprintf("sandbox-%s-%d", binary.Version(), f.provisioned)}, nil
}

func (f *fakeRuntime) PollReady(ctx context.Context, sandbox runtime.Sandbox) (runtime.Status, error) {
	f.mu.Lock()
	poll := f.polls
	f.polls++
	f.events = append(f.events, "poll")
	onPoll := f.onPoll
	var status runtime.Status
	if len(f.statuses) > 0 {
		status = f.statuses[len(f.statuses)-1]
		if poll < len(f.statuses) {
			status = f.statuses[poll]
		}
	}
	var err error
	if poll < len(f.pollErrs) {
		err = f.pollErrs[poll]
	}
	f.mu.Unlock()

	if onPoll != nil {
		onPoll(poll)
	}
	if ctx.Err() != nil {
		return runtime.Status{}, ctx.Err()
	}
	return status, err
}

func (f *fakeRuntime) Release(_ context.Context, sandbox runtime.Sandbox) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "release")
	if f.released == nil {
		f.released = map[string]int{}
	}
	f.released[sandbox.Name()]++
	return f.releaseErr
}

func (f *fakeRuntime) Released() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	released := map[string]int{}
	for name, count := range f.released {
		released[name] = count
	}
	return released
}

func (f *fakeRuntime) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.events...)
}

// fakeClient answers readiness checks from ready, repeating the last answer.
type fakeClient struct {
	mu       sync.Mutex
	ready    []bool
	readyErr error
	sendErrs map[int]error
	panicOn  int
	checks   int
	sent     []requestbuilder.Request
}

func (c *fakeClient) Ready(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	check := c.checks
	c.checks++
	if c.readyErr != nil {
		return false, c.readyErr
	}
	if len(c.ready) == 0 {
		return true, nil
	}
	if check >= len(c.ready) {
		return c.ready[len(c.ready)-1], nil
	}
	return c.ready[check], nil
}

func (c *fakeClient) Send(ctx context.Context, request requestbuilder.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	index := len(c.sent)
	c.sent = append(c.sent, request)
	if c.panicOn > 0 && index+1 == c.panicOn {
		panic("connection state corrupted")
	}
	return c.sendErrs[index]
}

type fakeBuilder struct {
	mu       sync.Mutex
	calls    int
	requests []requestbuilder.Request
	err      error
}

func (b *fakeBuilder) BuildRequests(_ requestbuilder.ExampleSource, _ []string, count int) ([]requestbuilder.Request, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	if count > len(b.requests) {
		count = len(b.requests)
	}
	return b.requests[:count], nil
}

func (b *fakeBuilder) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func testRequests(n int) []requestbuilder.Request {
	requests := make([]requestbuilder.Request, 0, n)
	for i := 0; i < n; i++ {
		requests = append(requests, requestbuilder.Request{
			ModelName:     "mnist",
			SignatureName: "serving_default",
			Method:        requestbuilder.Classify,
			Body:          []byte(fmt.Sprintf(`{"examples":[{"id":%d}]}`, i)),
		})
	}
	return requests
}

func testBinary(version string) servingbinary.ServingBinary {
	return servingbinary.ServingBinary{
		Flavor:    servingbinary.TFServing{},
		ModelName: "mnist",
		ImageName: "tensorflow/serving",
		Versions:  []string{version},
	}
}
