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

// Package buildbot talks to a buildbot try server: it reads builds through
// the JSON status API and submits try jobs.
package buildbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.chromium.org/luci/common/errors"
)

// Client is the subset of the try server API used by the commit queue.
type Client interface {
	// URL is the try server root URL, without trailing slash.
	URL() string
	// Builders returns the summary of each named builder.
	Builders(ctx context.Context, names []string) (map[string]*BuilderSummary, error)
	// AllBuilds returns every build the builder still has in memory.
	AllBuilds(ctx context.Context, builder string) ([]*Build, error)
	// Builds returns specific builds.
	Builds(ctx context.Context, builder string, numbers []int) ([]*Build, error)
	// PendingBuilds returns the builds waiting for a slave.
	PendingBuilds(ctx context.Context, builder string) ([]*PendingBuild, error)
	// SendTryJob submits a try job.
	SendTryJob(ctx context.Context, req *TryRequest) error
}

// Result codes used by buildbot for builds and steps.
const (
	Success   = 0
	Warnings  = 1
	Failure   = 2
	Skipped   = 3
	Exception = 4
)

// Outcome is the result of a build or a step.
//
// Known is false while the build or step is still running.
type Outcome struct {
	Code  int
	Known bool
}

// Done returns a known Outcome.
func Done(code int) Outcome { return Outcome{Code: code, Known: true} }

// Passed is true for a known successful outcome.
func (o Outcome) Passed() bool {
	return o.Known && (o.Code == Success || o.Code == Warnings || o.Code == Skipped)
}

// Failed is true for a known failed outcome.
func (o Outcome) Failed() bool {
	return o.Known && (o.Code == Failure || o.Code == Exception)
}

// UnmarshalJSON accepts null, a bare code or buildbot's [code, text] pair.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*o = Outcome{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}
		return o.UnmarshalJSON(list[0])
	}
	if err := json.Unmarshal(data, &o.Code); err != nil {
		return errors.Annotate(err, "bad result %s", data).Err()
	}
	o.Known = true
	return nil
}

// MarshalJSON emits the [code] form, or [null] if unknown.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if !o.Known {
		return []byte("[null]"), nil
	}
	return []byte(fmt.Sprintf("[%d]", o.Code)), nil
}

// BuilderSummary is the builder level information.
type BuilderSummary struct {
	CachedBuilds  []int `json:"cachedBuilds"`
	PendingBuilds int   `json:"pendingBuilds"`
}

// SourceStamp identifies what a build was run against.
type SourceStamp struct {
	Revision string `json:"revision"`
	HasPatch bool   `json:"hasPatch"`
}

// Step is one step of a build.
type Step struct {
	Name    string  `json:"name"`
	Results Outcome `json:"results"`
}

// Build is one build of a builder.
type Build struct {
	Number      int         `json:"number"`
	Reason      string      `json:"reason"`
	SourceStamp SourceStamp `json:"sourceStamp"`
	Steps       []Step      `json:"steps"`
	Results     Outcome     `json:"results"`
}

// Complete is true once the build finished.
func (b *Build) Complete() bool { return b.Results.Known }

// Revision parses the source stamp revision, stripping a "solution@"
// prefix. Returns 0 if it isn't a number.
func (b *Build) Revision() int64 {
	return ParseRevision(b.SourceStamp.Revision)
}

// ParseRevision parses "123" or "src@123".
func ParseRevision(rev string) int64 {
	if i := strings.LastIndexByte(rev, '@'); i >= 0 {
		rev = rev[i+1:]
	}
	n, err := strconv.ParseInt(rev, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// PendingBuild is a build request waiting for a slave.
type PendingBuild struct {
	Reason string      `json:"reason"`
	Source SourceStamp `json:"source"`
}

// BuilderTests is a builder and the tests to run on it.
type BuilderTests struct {
	Builder string
	Tests   []string
}

// String formats the bot argument understood by the try server.
func (b BuilderTests) String() string {
	if len(b.Tests) == 0 {
		return b.Builder
	}
	return b.Builder + ":" + strings.Join(b.Tests, ",")
}

// TryRequest is a try job submission for one or more builders.
type TryRequest struct {
	// Name is the job name, the builds' reason.
	Name string
	// Issue and Patchset identify the patch on the code review server.
	Issue    int64
	Patchset int64
	// PatchURL is where the slaves download the raw diff from.
	PatchURL string
	// Email and User identify the patch owner.
	Email string
	User  string
	// Revision to sync to, e.g. "src@123".
	Revision string
	// Clobber forces a clean build.
	Clobber bool
	// Bots lists the builders and their tests, in order.
	Bots []BuilderTests
	// Extra is passed verbatim to the try server.
	Extra []string
}
