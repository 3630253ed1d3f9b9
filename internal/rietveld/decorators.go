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

package rietveld

import (
	"context"

	"go.chromium.org/luci/common/logging"
)

// ReadOnly wraps a Client so that every mutation is logged and dropped.
//
// If onlyIssue is non-zero, PendingIssues returns at most that issue.
func ReadOnly(c Client, onlyIssue int64) Client {
	return &readOnly{Client: c, onlyIssue: onlyIssue}
}

type readOnly struct {
	Client
	onlyIssue int64
}

func (r *readOnly) PendingIssues(ctx context.Context) ([]int64, error) {
	issues, err := r.Client.PendingIssues(ctx)
	if err != nil || r.onlyIssue == 0 {
		return issues, err
	}
	for _, i := range issues {
		if i == r.onlyIssue {
			return []int64{i}, nil
		}
	}
	return nil, nil
}

func (r *readOnly) CloseIssue(ctx context.Context, issue int64) error {
	logging.Infof(ctx, "read-only: close_issue(%d)", issue)
	return nil
}

func (r *readOnly) UpdateDescription(ctx context.Context, issue int64, description string) error {
	logging.Infof(ctx, "read-only: update_description(%d, %q)", issue, description)
	return nil
}

func (r *readOnly) AddComment(ctx context.Context, issue int64, message string) error {
	logging.Infof(ctx, "read-only: add_comment(%d, %q)", issue, message)
	return nil
}

func (r *readOnly) SetFlag(ctx context.Context, issue, patchset int64, flag, value string) error {
	logging.Infof(ctx, "read-only: set_flag(%d, %d, %q, %q)", issue, patchset, flag, value)
	return nil
}

// OnlyIssue wraps a Client to work on a single issue regardless of its
// commit flag.
//
// The issue is reported as pending and with the commit flag set until the
// commit queue clears the flag itself.
func OnlyIssue(c Client, issue int64) Client {
	return &onlyIssue{Client: c, issue: issue, commit: true}
}

type onlyIssue struct {
	Client
	issue  int64
	commit bool
}

func (o *onlyIssue) PendingIssues(ctx context.Context) ([]int64, error) {
	if !o.commit {
		return nil, nil
	}
	return []int64{o.issue}, nil
}

func (o *onlyIssue) IssueProperties(ctx context.Context, issue int64, messages bool) (*Issue, error) {
	props, err := o.Client.IssueProperties(ctx, issue, messages)
	if err != nil {
		return nil, err
	}
	if issue == o.issue {
		props.Commit = o.commit
	}
	return props, nil
}

func (o *onlyIssue) SetFlag(ctx context.Context, issue, patchset int64, flag, value string) error {
	if issue == o.issue && flag == "commit" {
		o.commit = value == "True"
		return nil
	}
	return o.Client.SetFlag(ctx, issue, patchset, flag, value)
}
