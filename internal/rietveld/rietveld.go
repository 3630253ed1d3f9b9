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

// Package rietveld implements the subset of the Rietveld code review API
// used by the commit queue.
package rietveld

import (
	"context"
	"strings"

	"go.chromium.org/commitqueue/internal/patch"
)

// Client defines the subset of the code review API used by the commit queue.
type Client interface {
	// URL is the root URL of the code review server, without trailing slash.
	URL() string
	// Email is the account the commit queue runs as.
	Email() string

	// PendingIssues lists issues with the commit flag set that are not closed.
	PendingIssues(ctx context.Context) ([]int64, error)
	// IssueProperties loads an issue, optionally with its messages.
	IssueProperties(ctx context.Context, issue int64, messages bool) (*Issue, error)
	// Patch downloads a patchset.
	Patch(ctx context.Context, issue, patchset int64) (*patch.Set, error)

	// CloseIssue marks the issue closed.
	CloseIssue(ctx context.Context, issue int64) error
	// UpdateDescription replaces the issue description.
	UpdateDescription(ctx context.Context, issue int64, description string) error
	// AddComment publishes a message on the issue.
	AddComment(ctx context.Context, issue int64, message string) error
	// SetFlag sets a flag, e.g. "commit", on the patchset.
	SetFlag(ctx context.Context, issue, patchset int64, flag, value string) error
}

// Issue is the metadata of a code review issue.
type Issue struct {
	Issue       int64     `json:"issue"`
	Owner       string    `json:"owner_email"`
	Reviewers   []string  `json:"reviewers"`
	Description string    `json:"description"`
	BaseURL     string    `json:"base_url"`
	Patchsets   []int64   `json:"patchsets"`
	Messages    []Message `json:"messages"`
	Commit      bool      `json:"commit"`
	Closed      bool      `json:"closed"`
}

// LastPatchset returns the most recent patchset, or 0 if there is none.
func (i *Issue) LastPatchset() int64 {
	if len(i.Patchsets) == 0 {
		return 0
	}
	return i.Patchsets[len(i.Patchsets)-1]
}

// NormalizedDescription strips carriage returns.
func (i *Issue) NormalizedDescription() string {
	return strings.ReplaceAll(i.Description, "\r", "")
}

// IsApprover returns true if sender left an approving message.
func (i *Issue) IsApprover(sender string) bool {
	for _, m := range i.Messages {
		if m.Approval && m.Sender == sender {
			return true
		}
	}
	return false
}

// Message is one message posted on an issue.
type Message struct {
	Sender   string `json:"sender"`
	Approval bool   `json:"approval"`
	Text     string `json:"text,omitempty"`
}

// DriveBys returns the reviewers of the issue missing from known who did
// not approve it, in the issue's order. Reviewers in exclude never count.
func (i *Issue) DriveBys(known []string, exclude ...string) []string {
	skip := make(map[string]bool, len(known)+len(exclude))
	for _, r := range known {
		skip[r] = true
	}
	for _, r := range exclude {
		skip[r] = true
	}
	var out []string
	for _, r := range i.Reviewers {
		if !skip[r] && !i.IsApprover(r) {
			skip[r] = true
			out = append(out, r)
		}
	}
	return out
}
