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

// Package treestatus delays landing while the tree is closed.
package treestatus

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/commitqueue/internal/common"
	"go.chromium.org/commitqueue/internal/verification"
)

// Name is the verifier name.
const Name = "tree status"

// State of the tree, as reported by the tree status app.
type State int8

const (
	StateUnknown State = iota
	Open
	Closed
	Throttled
	InMaintenance
)

func toState(s string) State {
	switch s {
	case "open":
		return Open
	case "close", "closed":
		return Closed
	case "throttled":
		return Throttled
	case "maintenance":
		return InMaintenance
	default:
		return StateUnknown
	}
}

var noTreeChecks = regexp.MustCompile(`(?m)^NOTREECHECKS=true$`)

// Verifier always succeeds, and postpones landing while the tree isn't
// open.
type Verifier struct {
	url string
	hc  *http.Client
}

var (
	_ verification.Verifier  = (*Verifier)(nil)
	_ verification.Postponer = (*Verifier)(nil)
)

// New returns a Verifier polling the tree status app at url.
func New(url string, hc *http.Client) *Verifier {
	return &Verifier{url: strings.TrimSuffix(url, "/"), hc: hc}
}

// Name implements verification.Verifier.
func (v *Verifier) Name() string { return Name }

// Verify implements verification.Verifier.
func (v *Verifier) Verify(ctx context.Context, p *verification.Pending) error {
	p.Verifications.Set(Name, verification.NewStatus(verification.Succeeded, ""))
	return nil
}

// UpdateStatus implements verification.Verifier.
func (v *Verifier) UpdateStatus(ctx context.Context, queue []*verification.Pending) error {
	return nil
}

// Postpone implements verification.Postponer.
//
// Throttled counts as open. A commit with NOTREECHECKS=true is never
// postponed.
func (v *Verifier) Postpone(ctx context.Context, p *verification.Pending) bool {
	if noTreeChecks.MatchString(p.Description) {
		return false
	}
	s, err := v.Fetch(ctx)
	if err != nil {
		logging.Warningf(ctx, "tree status unavailable, postponing %s: %s", p.PendingName(), err)
		return true
	}
	switch s {
	case Open, Throttled:
		return false
	default:
		logging.Infof(ctx, "tree is not open, postponing %s", p.PendingName())
		return true
	}
}

// Fetch returns the current state of the tree.
func (v *Verifier) Fetch(ctx context.Context) (State, error) {
	var raw struct {
		State string `json:"general_state"`
	}
	if err := common.GetJSON(ctx, v.hc, "tree status", v.url+"/current?format=json", &raw); err != nil {
		return StateUnknown, errors.Annotate(err, "fetching tree status").Err()
	}
	return toState(raw.State), nil
}
