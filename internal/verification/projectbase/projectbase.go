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

// Package projectbase restricts a commit queue to the issues uploaded
// against one of its projects.
package projectbase

import (
	"context"
	"regexp"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/commitqueue/internal/verification"
)

// Name of the verifier.
const Name = "project_bases"

// Verifier matches the base URL of an issue against a list of regexps.
//
// The first capture group of the first matching regexp, if any, becomes
// the relative path of the patch in the checkout. Issues matching none
// are ignored.
type Verifier struct {
	bases []*regexp.Regexp
}

var _ verification.Verifier = (*Verifier)(nil)

// New compiles the project base regexps.
func New(patterns []string) (*Verifier, error) {
	v := &Verifier{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Annotate(err, "project base %q", p).Err()
		}
		v.bases = append(v.bases, re)
	}
	return v, nil
}

// Name implements verification.Verifier.
func (v *Verifier) Name() string { return Name }

// Verify implements verification.Verifier.
func (v *Verifier) Verify(ctx context.Context, p *verification.Pending) error {
	p.Relpath = ""
	for _, re := range v.bases {
		m := re.FindStringSubmatch(p.BaseURL)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			p.Relpath = m[1]
		}
		p.Verifications.Set(Name, verification.NewStatus(verification.Succeeded, ""))
		return nil
	}
	logging.Debugf(ctx, "%s: base url %q matches no project base", p.PendingName(), p.BaseURL)
	p.Verifications.Set(Name, verification.NewStatus(verification.Ignored, ""))
	return nil
}

// UpdateStatus implements verification.Verifier.
func (v *Verifier) UpdateStatus(ctx context.Context, queue []*verification.Pending) error {
	return nil
}
