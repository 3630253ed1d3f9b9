// Copyright 2026 The LUCI Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package buildbotfake implements a stateful in-memory try server.
package buildbotfake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.chromium.org/luci/common/errors"

	"go.chromium.org/commitqueue/internal/buildbot"
)

// Fake is an in-memory buildbot.Client.
//
// Every call is recorded with the JSON path the real server would be asked
// for, e.g. "builders/?select=linux&select=mac" or
// "builders/linux/builds/_all". Try jobs are recorded as
// "trychange b={linux:test1,test2} c=false r=src@123 n=42-23".
type Fake struct {
	// ServerURL is returned by URL().
	ServerURL string
	// Steps is the list of step names of builds added with AddBuild.
	Steps []string

	m       sync.Mutex
	builds  map[string][]*buildbot.Build
	pending map[string][]*buildbot.PendingBuild
	sent    []*buildbot.TryRequest
	calls   []string
}

var _ buildbot.Client = (*Fake)(nil)

// New returns a try server with no builds.
func New() *Fake {
	return &Fake{
		ServerURL: "http://foo/bar",
		Steps:     []string{"update", "compile", "test1", "test2"},
		builds:    map[string][]*buildbot.Build{},
		pending:   map[string][]*buildbot.PendingBuild{},
	}
}

// AddBuild adds a build with one result per step; nil means the step
// didn't run yet. The build is complete unless a successful build has its
// last step not run yet.
func (f *Fake) AddBuild(builder string, revision int64, reason string, results ...*int) *buildbot.Build {
	f.m.Lock()
	defer f.m.Unlock()
	if len(results) != len(f.Steps) {
		panic(errors.Reason("%d results for %d steps", len(results), len(f.Steps)).Err())
	}
	b := &buildbot.Build{
		Number:      len(f.builds[builder]),
		Reason:      reason,
		SourceStamp: buildbot.SourceStamp{Revision: fmt.Sprintf("src@%d", revision), HasPatch: true},
	}
	worst := -1
	for i, name := range f.Steps {
		step := buildbot.Step{Name: name}
		if r := results[i]; r != nil {
			step.Results = buildbot.Done(*r)
			if *r > worst {
				worst = *r
			}
		}
		b.Steps = append(b.Steps, step)
	}
	switch {
	case worst == -1:
	case (worst == buildbot.Success || worst == buildbot.Warnings) && results[len(results)-1] == nil:
	default:
		b.Results = buildbot.Done(worst)
	}
	f.builds[builder] = append(f.builds[builder], b)
	return b
}

// SetBuildResult overrides every step of the last build of builder.
func (f *Fake) SetBuildResult(builder string, result int) {
	f.m.Lock()
	defer f.m.Unlock()
	bs := f.builds[builder]
	b := bs[len(bs)-1]
	for i := range b.Steps {
		b.Steps[i].Results = buildbot.Done(result)
	}
	b.Results = buildbot.Done(result)
}

// SetPending replaces the pending builds of builder.
func (f *Fake) SetPending(builder string, reasons ...string) {
	f.m.Lock()
	defer f.m.Unlock()
	var out []*buildbot.PendingBuild
	for _, r := range reasons {
		out = append(out, &buildbot.PendingBuild{Reason: r})
	}
	f.pending[builder] = out
}

// Calls returns the recorded calls and resets the record.
func (f *Fake) Calls() []string {
	f.m.Lock()
	defer f.m.Unlock()
	out := f.calls
	f.calls = nil
	return out
}

// Sent returns every try request received.
func (f *Fake) Sent() []*buildbot.TryRequest {
	f.m.Lock()
	defer f.m.Unlock()
	return append([]*buildbot.TryRequest(nil), f.sent...)
}

// URL implements buildbot.Client.
func (f *Fake) URL() string { return f.ServerURL }

// Builders implements buildbot.Client.
func (f *Fake) Builders(ctx context.Context, names []string) (map[string]*buildbot.BuilderSummary, error) {
	f.m.Lock()
	defer f.m.Unlock()
	sel := make([]string, len(names))
	out := make(map[string]*buildbot.BuilderSummary, len(names))
	for i, n := range names {
		sel[i] = "select=" + n
		s := &buildbot.BuilderSummary{PendingBuilds: len(f.pending[n])}
		for _, b := range f.builds[n] {
			s.CachedBuilds = append(s.CachedBuilds, b.Number)
		}
		out[n] = s
	}
	f.calls = append(f.calls, "builders/?"+strings.Join(sel, "&"))
	return out, nil
}

// AllBuilds implements buildbot.Client.
func (f *Fake) AllBuilds(ctx context.Context, builder string) ([]*buildbot.Build, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("builders/%s/builds/_all", builder))
	out := make([]*buildbot.Build, len(f.builds[builder]))
	for i, b := range f.builds[builder] {
		out[i] = copyBuild(b)
	}
	return out, nil
}

// Builds implements buildbot.Client.
func (f *Fake) Builds(ctx context.Context, builder string, numbers []int) ([]*buildbot.Build, error) {
	f.m.Lock()
	defer f.m.Unlock()
	sel := make([]string, len(numbers))
	var out []*buildbot.Build
	for i, n := range numbers {
		sel[i] = fmt.Sprintf("select=%d", n)
		if bs := f.builds[builder]; n < len(bs) {
			out = append(out, copyBuild(bs[n]))
		}
	}
	f.calls = append(f.calls, fmt.Sprintf("builders/%s/builds/?%s", builder, strings.Join(sel, "&")))
	return out, nil
}

// PendingBuilds implements buildbot.Client.
func (f *Fake) PendingBuilds(ctx context.Context, builder string) ([]*buildbot.PendingBuild, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("builders/%s/pendingBuilds", builder))
	return append([]*buildbot.PendingBuild(nil), f.pending[builder]...), nil
}

// SendTryJob implements buildbot.Client.
func (f *Fake) SendTryJob(ctx context.Context, req *buildbot.TryRequest) error {
	f.m.Lock()
	defer f.m.Unlock()
	bots := make([]string, len(req.Bots))
	for i, b := range req.Bots {
		bots[i] = b.String()
	}
	f.calls = append(f.calls, fmt.Sprintf("trychange b={%s} c=%t r=%s n=%s",
		strings.Join(bots, ", "), req.Clobber, req.Revision, req.Name))
	cpy := *req
	f.sent = append(f.sent, &cpy)
	return nil
}

func copyBuild(b *buildbot.Build) *buildbot.Build {
	cpy := *b
	cpy.Steps = append([]buildbot.Step(nil), b.Steps...)
	return &cpy
}

// R returns a pointer to a result code, for AddBuild.
func R(code int) *int { return &code }
