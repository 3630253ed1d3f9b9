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

package checkout

import (
	"context"
	"fmt"
	"sync"

	"go.chromium.org/luci/common/logging"

	"go.chromium.org/commitqueue/internal/patch"
)

// ReadOnly wraps a Checkout so that Commit is logged and returns a fake
// revision instead of landing anything.
func ReadOnly(c Checkout) Checkout {
	return &readOnly{Checkout: c}
}

type readOnly struct {
	Checkout
}

func (r *readOnly) Commit(ctx context.Context, message, user string) (int64, error) {
	logging.Infof(ctx, "read-only: commit as %s:\n%s", user, message)
	return FakeCommitRevision, nil
}

// FakeCommitRevision is the revision returned by fake commits.
const FakeCommitRevision = 125

// Fake is a Checkout recording every call.
//
// Calls are formatted as "prepare(None)", "prepare(42)",
// "apply_patch(<patch set>)" and "commit(<message>, <user>)".
type Fake struct {
	// Path is returned by ProjectPath.
	Path string
	// Head is the revision Prepare(0) syncs to.
	Head int64
	// CommitRevision is returned by Commit.
	CommitRevision int64
	// ViewVC is returned by ViewVCURL.
	ViewVC string
	// ApplyErr is returned by ApplyPatch if set.
	ApplyErr error

	m     sync.Mutex
	calls []string
}

var _ Checkout = (*Fake)(nil)

// NewFake returns a Fake at head 124 committing as 125.
func NewFake() *Fake {
	return &Fake{Path: "/fake/checkout", Head: 124, CommitRevision: FakeCommitRevision}
}

// Calls returns the recorded calls and resets the record.
func (f *Fake) Calls() []string {
	f.m.Lock()
	defer f.m.Unlock()
	out := f.calls
	f.calls = nil
	return out
}

func (f *Fake) record(c string) {
	f.m.Lock()
	defer f.m.Unlock()
	f.calls = append(f.calls, c)
}

// ProjectPath implements Checkout.
func (f *Fake) ProjectPath() string { return f.Path }

// ViewVCURL implements Checkout.
func (f *Fake) ViewVCURL() string { return f.ViewVC }

// Prepare implements Checkout.
func (f *Fake) Prepare(ctx context.Context, revision int64) (int64, error) {
	if revision == 0 {
		f.record("prepare(None)")
		return f.Head, nil
	}
	f.record(fmt.Sprintf("prepare(%d)", revision))
	return revision, nil
}

// ApplyPatch implements Checkout.
func (f *Fake) ApplyPatch(ctx context.Context, s *patch.Set) error {
	f.record(fmt.Sprintf("apply_patch(%s)", s))
	return f.ApplyErr
}

// Commit implements Checkout.
func (f *Fake) Commit(ctx context.Context, message, user string) (int64, error) {
	f.record(fmt.Sprintf("commit(%q, %s)", message, user))
	return f.CommitRevision, nil
}
