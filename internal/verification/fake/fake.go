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

// Package fake implements verifiers with a preset verdict.
package fake

import (
	"context"

	"go.chromium.org/commitqueue/internal/verification"
)

// DefaultName is the name of fake verifiers created with an empty name.
const DefaultName = "fake"

// Verifier immediately sets a preset state.
type Verifier struct {
	name  string
	state verification.State
}

var _ verification.Verifier = (*Verifier)(nil)

// New returns a Verifier setting state on Verify.
func New(name string, state verification.State) *Verifier {
	if name == "" {
		name = DefaultName
	}
	return &Verifier{name: name, state: state}
}

// Name implements verification.Verifier.
func (v *Verifier) Name() string { return v.name }

// Verify implements verification.Verifier.
func (v *Verifier) Verify(ctx context.Context, p *verification.Pending) error {
	p.Verifications.Set(v.name, verification.NewStatus(v.state, message(v.state)))
	return nil
}

// UpdateStatus implements verification.Verifier.
func (v *Verifier) UpdateStatus(ctx context.Context, queue []*verification.Pending) error {
	return nil
}

// Deferred sets Processing on Verify and the preset state on the next
// UpdateStatus.
type Deferred struct {
	name  string
	state verification.State
}

var _ verification.Verifier = (*Deferred)(nil)

// NewDeferred returns a Deferred verifier.
func NewDeferred(name string, state verification.State) *Deferred {
	if name == "" {
		name = DefaultName
	}
	return &Deferred{name: name, state: state}
}

// Name implements verification.Verifier.
func (v *Deferred) Name() string { return v.name }

// Verify implements verification.Verifier.
func (v *Deferred) Verify(ctx context.Context, p *verification.Pending) error {
	p.Verifications.Set(v.name, verification.NewStatus(verification.Processing, ""))
	return nil
}

// UpdateStatus implements verification.Verifier. Only commits it verified
// and that are still processing get the preset state.
func (v *Deferred) UpdateStatus(ctx context.Context, queue []*verification.Pending) error {
	for _, p := range queue {
		if s := p.Verifications.Get(v.name); s != nil && s.State() == verification.Processing {
			p.Verifications.Set(v.name, verification.NewStatus(v.state, message(v.state)))
		}
	}
	return nil
}

// Checkout is a Verifier that requires the patch to be applied.
type Checkout struct {
	*Verifier
}

var _ verification.CheckoutVerifier = Checkout{}

// NewCheckout returns a checkout requiring Verifier.
func NewCheckout(name string, state verification.State) Checkout {
	return Checkout{New(name, state)}
}

// RequiresCheckout implements verification.CheckoutVerifier.
func (Checkout) RequiresCheckout() {}

func message(s verification.State) string {
	if s == verification.Failed {
		return "fake verifier failed"
	}
	return ""
}
