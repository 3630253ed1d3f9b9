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

// Package verification defines pending commits and the verifiers that
// decide whether they can be committed.
package verification

import (
	"context"

	"go.chromium.org/commitqueue/internal/checkout"
	"go.chromium.org/commitqueue/internal/rietveld"
	"go.chromium.org/commitqueue/internal/status"
)

// Verifier is a check run on every pending commit.
//
// Verifiers keep no per commit state: it lives in Pending.Verifications
// under the verifier's name.
type Verifier interface {
	// Name is unique among the verifiers of a commit queue.
	Name() string
	// Verify starts verifying a pending commit. It must set a status under
	// Name(), possibly Processing if the verdict comes later.
	Verify(ctx context.Context, p *Pending) error
	// UpdateStatus advances the Processing statuses of the given commits.
	// Calling it without new information must be a no-op.
	//
	// The returned error may be an errors.MultiError of *DiscardPending.
	UpdateStatus(ctx context.Context, queue []*Pending) error
}

// CheckoutVerifier is a Verifier that needs the patch applied to the
// checkout when Verify is called. It can't run before the patch.
type CheckoutVerifier interface {
	Verifier
	RequiresCheckout()
}

// Postponer is implemented by verifiers that can delay the commit of an
// otherwise successful pending commit.
type Postponer interface {
	// Postpone returns true if p must not be committed right now.
	// Called repeatedly, only when p succeeded.
	Postpone(ctx context.Context, p *Pending) bool
}

// Env gives verifiers access to the external systems.
type Env struct {
	Review   rietveld.Client
	Checkout checkout.Checkout
	Status   status.Sink
}

// SendStatus emits a status packet about p.
func (e *Env) SendStatus(ctx context.Context, p *Pending, verification string, payload map[string]any) {
	e.Status.Send(ctx, status.Packet{
		Issue:        p.Issue,
		Patchset:     p.Patchset,
		Owner:        p.Owner,
		Verification: verification,
		Payload:      payload,
	})
}
