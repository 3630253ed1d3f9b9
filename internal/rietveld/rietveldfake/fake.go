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

// Package rietveldfake implements an in-memory code review server.
package rietveldfake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.chromium.org/luci/common/errors"

	"go.chromium.org/commitqueue/internal/patch"
	"go.chromium.org/commitqueue/internal/rietveld"
)

// DefaultURL is the URL reported by a Fake with no URL set.
const DefaultURL = "http://nowhere"

// Fake is an in-memory rietveld.Client recording every mutation.
type Fake struct {
	// ServerURL is returned by URL().
	ServerURL string
	// Account is returned by Email().
	Account string

	m       sync.Mutex
	issues  map[int64]*rietveld.Issue
	patches map[[2]int64]*patch.Set
	calls   []string
	errs    map[string]error
}

var _ rietveld.Client = (*Fake)(nil)

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		ServerURL: DefaultURL,
		Account:   "commit-bot@chromium.org",
		issues:    map[int64]*rietveld.Issue{},
		patches:   map[[2]int64]*patch.Set{},
		errs:      map[string]error{},
	}
}

// AddIssue adds or replaces an issue.
func (f *Fake) AddIssue(i *rietveld.Issue) {
	f.m.Lock()
	defer f.m.Unlock()
	f.issues[i.Issue] = i
}

// Issue returns the stored issue for direct mutation by tests.
func (f *Fake) Issue(issue int64) *rietveld.Issue {
	f.m.Lock()
	defer f.m.Unlock()
	return f.issues[issue]
}

// SetPatch sets the patchset served by Patch. A nil set means an empty
// diff.
func (f *Fake) SetPatch(issue, patchset int64, s *patch.Set) {
	f.m.Lock()
	defer f.m.Unlock()
	f.patches[[2]int64{issue, patchset}] = s
}

// FailOn makes the named operation (e.g. "set_flag") return err.
//
// A nil err clears a previous failure.
func (f *Fake) FailOn(op string, err error) {
	f.m.Lock()
	defer f.m.Unlock()
	if err == nil {
		delete(f.errs, op)
	} else {
		f.errs[op] = err
	}
}

// Calls returns the recorded mutations and resets the record.
func (f *Fake) Calls() []string {
	f.m.Lock()
	defer f.m.Unlock()
	out := f.calls
	f.calls = nil
	return out
}

func (f *Fake) URL() string   { return f.ServerURL }
func (f *Fake) Email() string { return f.Account }

// PendingIssues returns issues with the commit flag set and not closed.
func (f *Fake) PendingIssues(ctx context.Context) ([]int64, error) {
	f.m.Lock()
	defer f.m.Unlock()
	if err := f.errs["pending_issues"]; err != nil {
		return nil, err
	}
	var out []int64
	for id, i := range f.issues {
		if i.Commit && !i.Closed {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out, nil
}

// IssueProperties returns a copy of the stored issue.
func (f *Fake) IssueProperties(ctx context.Context, issue int64, messages bool) (*rietveld.Issue, error) {
	f.m.Lock()
	defer f.m.Unlock()
	if err := f.errs["issue_properties"]; err != nil {
		return nil, err
	}
	i, ok := f.issues[issue]
	if !ok {
		return nil, errors.Reason("issue %d not found", issue).Err()
	}
	cpy := *i
	cpy.Reviewers = append([]string(nil), i.Reviewers...)
	cpy.Patchsets = append([]int64(nil), i.Patchsets...)
	if messages {
		cpy.Messages = append([]rietveld.Message(nil), i.Messages...)
	} else {
		cpy.Messages = nil
	}
	return &cpy, nil
}

// Patch returns the patch set with SetPatch, or a single-file patch.
func (f *Fake) Patch(ctx context.Context, issue, patchset int64) (*patch.Set, error) {
	f.m.Lock()
	defer f.m.Unlock()
	if err := f.errs["get_patch"]; err != nil {
		return nil, err
	}
	if s, ok := f.patches[[2]int64{issue, patchset}]; ok {
		if s == nil {
			return nil, nil
		}
		cpy := &patch.Set{}
		for _, p := range s.Patches {
			fp := *p
			cpy.Patches = append(cpy.Patches, &fp)
		}
		return cpy, nil
	}
	return &patch.Set{Patches: []*patch.FilePatch{{
		Filename: "chrome/file.cc",
		Diff:     "Index: chrome/file.cc\n",
	}}}, nil
}

func (f *Fake) record(op, call string) error {
	f.m.Lock()
	defer f.m.Unlock()
	if err := f.errs[op]; err != nil {
		return err
	}
	f.calls = append(f.calls, call)
	return nil
}

// CloseIssue records the call and marks the issue closed.
func (f *Fake) CloseIssue(ctx context.Context, issue int64) error {
	if err := f.record("close_issue", fmt.Sprintf("close_issue(%d)", issue)); err != nil {
		return err
	}
	f.m.Lock()
	defer f.m.Unlock()
	if i, ok := f.issues[issue]; ok {
		i.Closed = true
	}
	return nil
}

// UpdateDescription records the call and updates the issue.
func (f *Fake) UpdateDescription(ctx context.Context, issue int64, description string) error {
	if err := f.record("update_description", fmt.Sprintf("update_description(%d, %q)", issue, description)); err != nil {
		return err
	}
	f.m.Lock()
	defer f.m.Unlock()
	if i, ok := f.issues[issue]; ok {
		i.Description = description
	}
	return nil
}

// AddComment records the call.
func (f *Fake) AddComment(ctx context.Context, issue int64, message string) error {
	return f.record("add_comment", fmt.Sprintf("add_comment(%d, %q)", issue, message))
}

// SetFlag records the call and updates the commit flag.
func (f *Fake) SetFlag(ctx context.Context, issue, patchset int64, flag, value string) error {
	if err := f.record("set_flag", fmt.Sprintf("set_flag(%d, %d, '%s', '%s')", issue, patchset, flag, value)); err != nil {
		return err
	}
	f.m.Lock()
	defer f.m.Unlock()
	if i, ok := f.issues[issue]; ok && flag == "commit" {
		i.Commit = value == "True"
	}
	return nil
}
