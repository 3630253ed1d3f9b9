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

// Package reviewerlgtm requires an approval from a valid reviewer.
package reviewerlgtm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/commitqueue/internal/model"
	"go.chromium.org/commitqueue/internal/rietveld"
	"go.chromium.org/commitqueue/internal/verification"
)

// Name of the verifier.
const Name = "reviewer_lgtm"

// Messages set on failures.
const (
	NoReviewer = "No reviewers yet."
	NoComment  = "No comments yet."
	NoLGTM     = "No LGTM from a valid reviewer yet. Only full committers are accepted.\n" +
		"Even if an LGTM may have been provided, it was from a non-committer or\n" +
		"a lowly provisional committer, _not_ a full super star committer.\n" +
		"See http://www.chromium.org/getting-involved/become-a-committer\n" +
		"Note that this has nothing to do with OWNERS files."
)

var tbrRe = regexp.MustCompile(`(?m)^TBR=.*$`)

// Status remembers who approved the commit and the reviewers at that time.
type Status struct {
	Current   verification.State `json:"state"`
	Message   string             `json:"error_message,omitempty"`
	Approvers []string           `json:"approvers,omitempty"`
	// Reviewers is the reviewer list when the commit was approved, nil if
	// it never was.
	Reviewers []string `json:"reviewers"`
}

var _ verification.Status = (*Status)(nil)

// PersistentType implements model.Persistent.
func (*Status) PersistentType() string { return "LgtmStatus" }

// State implements verification.Status.
func (s *Status) State() verification.State { return s.Current }

// ErrorMessage implements verification.Status.
func (s *Status) ErrorMessage() string { return s.Message }

// WhyNot implements verification.Status.
func (s *Status) WhyNot() string { return "" }

func init() {
	model.Register("LgtmStatus", func() model.Persistent { return &Status{Current: verification.Processing} })
}

// Verifier needs an approval from a reviewer matching the whitelist and not
// the blacklist. The owner of the issue never counts.
//
// Once approved, reviewers added later must approve too.
type Verifier struct {
	review    rietveld.Client
	whitelist []*regexp.Regexp
	blacklist []*regexp.Regexp
}

var _ verification.Verifier = (*Verifier)(nil)

// New compiles the reviewer regexps. They match from the start of the
// email.
func New(review rietveld.Client, whitelist, blacklist []string) (*Verifier, error) {
	v := &Verifier{review: review}
	var err error
	if v.whitelist, err = compile(whitelist); err != nil {
		return nil, errors.Annotate(err, "whitelist").Err()
	}
	if v.blacklist, err = compile(blacklist); err != nil {
		return nil, errors.Annotate(err, "blacklist").Err()
	}
	return v, nil
}

func compile(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)`)
		if err != nil {
			return nil, errors.Annotate(err, "bad regexp %q", p).Err()
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(value string, list []*regexp.Regexp) bool {
	for _, re := range list {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

func (v *Verifier) valid(email, owner string) bool {
	return email != owner && matchAny(email, v.whitelist) && !matchAny(email, v.blacklist)
}

// Name implements verification.Verifier.
func (v *Verifier) Name() string { return Name }

// Verify implements verification.Verifier.
func (v *Verifier) Verify(ctx context.Context, p *verification.Pending) error {
	s := v.check(ctx, p)
	if s.Current == verification.Succeeded {
		s.Reviewers = append([]string{}, p.Reviewers...)
	}
	p.Verifications.Set(Name, s)
	return nil
}

func (v *Verifier) check(ctx context.Context, p *verification.Pending) *Status {
	s := &Status{}
	for _, m := range p.Messages {
		if m.Approval && v.valid(m.Sender, p.Owner) {
			s.Approvers = append(s.Approvers, m.Sender)
		}
	}
	switch {
	case tbrRe.MatchString(p.Description) && matchAny(p.Owner, v.whitelist) && !matchAny(p.Owner, v.blacklist):
		logging.Debugf(ctx, "%s is TBR", p.PendingName())
		s.Current = verification.Succeeded
	case len(p.Reviewers) == 0:
		s.Current, s.Message = verification.Failed, NoReviewer
	case len(p.Messages) == 0:
		s.Current, s.Message = verification.Failed, NoComment
	case len(s.Approvers) > 0:
		logging.Infof(ctx, "%s: found lgtm by %s", p.PendingName(), s.Approvers[0])
		s.Current = verification.Succeeded
	default:
		s.Current, s.Message = verification.Failed, NoLGTM
	}
	return s
}

// UpdateStatus re-reads the reviewers and messages of every commit
// verified so far and detects drive-by reviewers.
func (v *Verifier) UpdateStatus(ctx context.Context, queue []*verification.Pending) error {
	var merr errors.MultiError
	for _, p := range queue {
		prev, ok := p.Verifications.Get(Name).(*Status)
		if !ok || prev.Current == verification.Ignored {
			continue
		}
		issue, err := v.review.IssueProperties(ctx, p.Issue, true)
		if err != nil {
			merr = append(merr, errors.Annotate(err, "refreshing reviewers of %s", p.PendingName()).Err())
			continue
		}
		p.Reviewers = append([]string(nil), issue.Reviewers...)
		p.Messages = p.Messages[:0]
		for _, m := range issue.Messages {
			p.Messages = append(p.Messages, verification.Message{Sender: m.Sender, Approval: m.Approval})
		}

		s := v.check(ctx, p)
		if s.Current == verification.Succeeded {
			s.Reviewers = append([]string{}, p.Reviewers...)
			if prev.Reviewers != nil {
				if drivers := issue.DriveBys(prev.Reviewers, v.review.Email(), p.Owner); len(drivers) > 0 {
					logging.Warningf(ctx, "%s: drive-by from %s", p.PendingName(), drivers)
					s.Current = verification.Failed
					s.Message = fmt.Sprintf("List of reviewers changed. %s did a drive-by without LGTM'ing!", strings.Join(drivers, ","))
					s.Reviewers = prev.Reviewers
				}
			}
		} else if prev.Reviewers != nil {
			s.Reviewers = prev.Reviewers
		}
		p.Verifications.Set(Name, s)
	}
	if len(merr) > 0 {
		return merr
	}
	return nil
}
