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

package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/retry/transient"

	"go.chromium.org/commitqueue/internal/checkout"
	"go.chromium.org/commitqueue/internal/model"
)

// Message is a code review message, trimmed to what verifiers need.
type Message struct {
	Sender   string `json:"sender"`
	Approval bool   `json:"approval"`
}

// Pending is a patch being processed by the commit queue.
type Pending struct {
	// Issue, Patchset and Description tell whether verifications must be
	// redone: they're never mutated.
	Issue       int64  `json:"issue"`
	Patchset    int64  `json:"patchset"`
	Description string `json:"description"`
	// Files is filled once the patch is applied.
	Files []string `json:"files"`

	// Cached from the code review server.
	Owner     string    `json:"owner"`
	Reviewers []string  `json:"reviewers"`
	BaseURL   string    `json:"base_url"`
	Messages  []Message `json:"messages"`

	// Relpath is the directory the patch applies to, set by the project
	// base URL verifier.
	Relpath string `json:"relpath"`
	// Revision is the revision the checkout was last prepared at, or the
	// committed revision once landed. 0 means head.
	Revision int64 `json:"revision"`

	// Verifications holds one Status per verifier name.
	Verifications Verifications `json:"verifications"`
}

var _ model.Persistent = (*Pending)(nil)

// PersistentType implements model.Persistent.
func (*Pending) PersistentType() string { return "PendingCommit" }

// MarshalJSON tags the commit with its type.
func (p *Pending) MarshalJSON() ([]byte, error) {
	type raw Pending
	return model.Tag(p.PersistentType(), (*raw)(p))
}

func init() {
	model.Register("PendingCommit", func() model.Persistent { return &Pending{} })
}

// PendingName is the name used for try jobs.
func (p *Pending) PendingName() string {
	return fmt.Sprintf("%d-%d", p.Issue, p.Patchset)
}

// State aggregates the state of every verification.
//
// Any error message means Failed. No verification yet means Processing.
// Otherwise the highest state in the order Ignored > Failed > Processing >
// Succeeded wins.
func (p *Pending) State() State {
	if p.ErrorMessage() != "" {
		return Failed
	}
	if p.Verifications.Len() == 0 {
		return Processing
	}
	out := Succeeded
	for _, name := range p.Verifications.Names() {
		if s := p.Verifications.Get(name).State(); s > out {
			out = s
		}
	}
	return out
}

// ErrorMessage concatenates the error messages of every verification.
func (p *Pending) ErrorMessage() string {
	var msgs []string
	for _, name := range p.Verifications.Names() {
		if m := p.Verifications.Get(name).ErrorMessage(); m != "" {
			msgs = append(msgs, m)
		}
	}
	return strings.Join(msgs, "\n\n")
}

// WhyNot explains why the commit is still processing.
func (p *Pending) WhyNot() string {
	var msgs []string
	for _, name := range p.Verifications.Names() {
		if m := p.Verifications.Get(name).WhyNot(); m != "" {
			msgs = append(msgs, m)
		}
	}
	return strings.Join(msgs, "\n")
}

// ApplyPatch applies the patch to the checkout, optionally preparing it at
// p.Revision first.
//
// Returns a *DiscardPending for problems with the patch itself.
func (p *Pending) ApplyPatch(ctx context.Context, env *Env, prepare bool) error {
	if prepare {
		if err := p.PrepareForPatch(ctx, env); err != nil {
			return err
		}
	}
	patches, err := env.Review.Patch(ctx, p.Issue, p.Patchset)
	switch {
	case transient.Tag.In(err):
		return errors.Annotate(err, "fetching patch of %s", p.PendingName()).Err()
	case err != nil:
		return Discard(p, "Failed to request the patch to try. Please note that binary files "+
			"are still unsupported at the moment, this is being worked on.\n\n"+
			"Thanks for your patience.\n\n"+err.Error())
	case patches == nil:
		return Discard(p, "No diff was found for this patchset.")
	}
	patches.SetRelpath(p.Relpath)
	p.Files = patches.Filenames()
	if len(p.Files) == 0 {
		return Discard(p, "No file was found in this patchset.")
	}
	if err := env.Checkout.ApplyPatch(ctx, patches); err != nil {
		var failed *checkout.PatchApplicationFailed
		if errors.As(err, &failed) {
			return Discard(p, failed.Error())
		}
		return Discard(p, "Failed to apply the patch.\n"+err.Error())
	}
	return nil
}

// PrepareForPatch syncs the checkout to p.Revision and records the revision
// actually synced to.
func (p *Pending) PrepareForPatch(ctx context.Context, env *Env) error {
	rev, err := env.Checkout.Prepare(ctx, p.Revision)
	if err != nil {
		return errors.Annotate(err, "preparing checkout for %s", p.PendingName()).Err()
	}
	p.Revision = rev
	if rev == 0 {
		return Discard(p, "Internal error: failed to checkout. Please try again.")
	}
	return nil
}

// Verifications maps verifier names to their Status, keeping insertion
// order.
type Verifications struct {
	names  []string
	byName map[string]Status
}

// Len returns the number of verifications.
func (v *Verifications) Len() int { return len(v.names) }

// Names returns the verifier names in insertion order.
func (v *Verifications) Names() []string {
	return append([]string(nil), v.names...)
}

// Get returns the status of a verifier, or nil.
func (v *Verifications) Get(name string) Status {
	return v.byName[name]
}

// Has returns true if the verifier has a status.
func (v *Verifications) Has(name string) bool {
	_, ok := v.byName[name]
	return ok
}

// Set adds or replaces the status of a verifier.
func (v *Verifications) Set(name string, s Status) {
	if v.byName == nil {
		v.byName = map[string]Status{}
	}
	if _, ok := v.byName[name]; !ok {
		v.names = append(v.names, name)
	}
	v.byName[name] = s
}

// Delete removes a verifier's status.
func (v *Verifications) Delete(name string) {
	if _, ok := v.byName[name]; !ok {
		return
	}
	delete(v.byName, name)
	for i, n := range v.names {
		if n == name {
			v.names = append(v.names[:i], v.names[i+1:]...)
			break
		}
	}
}

// MarshalJSON emits an object in insertion order with tagged statuses.
func (v Verifications) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range v.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := model.Marshal(v.byName[name])
		if err != nil {
			return nil, errors.Annotate(err, "verification %q", name).Err()
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes tagged statuses, keeping the document order.
func (v *Verifications) UnmarshalJSON(data []byte) error {
	*v = Verifications{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return errors.Reason("verifications must be an object").Err()
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return errors.Annotate(err, "verification %q", name).Err()
		}
		val, err := model.Decode(raw)
		if err != nil {
			return errors.Annotate(err, "verification %q", name).Err()
		}
		s, ok := val.(Status)
		if !ok {
			return errors.Reason("verification %q: %s is not a status", name, val.PersistentType()).Err()
		}
		v.Set(name, s)
	}
	return nil
}

// DiscardPending is returned when a pending commit must be dropped from
// the queue.
type DiscardPending struct {
	Pending *Pending
	// Message is posted on the issue, if not empty.
	Message string
}

func (d *DiscardPending) Error() string {
	if d.Message == "" {
		return fmt.Sprintf("discarding %s", d.Pending.PendingName())
	}
	return fmt.Sprintf("discarding %s: %s", d.Pending.PendingName(), d.Message)
}

// Discard returns a *DiscardPending error.
func Discard(p *Pending, message string) error {
	return &DiscardPending{Pending: p, Message: message}
}

// AsDiscard extracts a *DiscardPending from err.
func AsDiscard(err error) (*DiscardPending, bool) {
	var d *DiscardPending
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}
