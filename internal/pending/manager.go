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

// Package pending implements the commit queue: it finds issues ready to
// commit, runs the verifiers on them and lands those that pass.
//
// A Manager is driven by an external polling loop calling, in order,
// LookForNewPendingCommit, ProcessNewPendingCommit, UpdateStatus and
// ScanResults. None of them may be called concurrently.
package pending

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/commitqueue/internal/checkout"
	"go.chromium.org/commitqueue/internal/crash"
	"go.chromium.org/commitqueue/internal/metrics"
	"go.chromium.org/commitqueue/internal/model"
	"go.chromium.org/commitqueue/internal/status"
	"go.chromium.org/commitqueue/internal/verification"
)

// Messages posted on issues.
const (
	FailedNoMessage = "Commit queue patch verification failed without an error message.\n" +
		"Something went wrong, probably a crash, a hickup or simply\n" +
		"the monkeys went out for dinner.\n" +
		"Please email commit-bot@chromium.org with the CL url."
	InternalException = "Commit queue had an internal error.\n" +
		"Something went really wrong, probably a crash, a hickup or\n" +
		"simply the monkeys went out for dinner.\n" +
		"Please email commit-bot@chromium.org with the CL url."
	DescriptionUpdated = "Commit queue rejected this change because the description was changed\n" +
		"between the time the change entered the commit queue and the time it\n" +
		"was ready to commit. You can safely check the commit box again."
	TryingPatch = "CQ is trying da patch. Follow status at\n"
	NewPatchset = "Commit queue failed due to new patchset."
	Unchecked   = "CQ bit was unchecked on CL. Ignoring."
)

const (
	// DefaultMaxCommitBurst is the maximum number of commits landed within
	// DefaultCommitBurstDelay.
	DefaultMaxCommitBurst = 4
	// DefaultCommitBurstDelay is the window of the commit burst limiter.
	DefaultCommitBurstDelay = 10 * time.Minute
)

// Options tune a Manager.
type Options struct {
	// Project names the commit queue in metrics.
	Project string
	// MaxCommitBurst is the maximum number of commits landed within
	// CommitBurstDelay. Defaults to DefaultMaxCommitBurst.
	MaxCommitBurst int
	// CommitBurstDelay defaults to DefaultCommitBurstDelay.
	CommitBurstDelay time.Duration
	// Crash receives the errors the manager recovers from. Defaults to
	// crash.Log.
	Crash crash.Reporter
}

// Manager owns the queue of pending commits.
type Manager struct {
	// Queue is the current state. Replaced by Load.
	Queue *Queue

	env       *verification.Env
	prePatch  []verification.Verifier
	verifiers []verification.Verifier
	opts      Options

	// Timestamps of the last commits, to pace them.
	recentCommits []time.Time
}

// New returns a Manager with an empty queue.
//
// prePatch verifiers run before the patch is applied; they can't require
// the checkout. verifiers run after.
func New(env *verification.Env, prePatch, verifiers []verification.Verifier, opts Options) (*Manager, error) {
	if len(prePatch)+len(verifiers) == 0 {
		return nil, errors.Reason("at least one verifier is required").Err()
	}
	names := stringset.New(len(prePatch) + len(verifiers))
	for _, v := range append(append([]verification.Verifier(nil), prePatch...), verifiers...) {
		if !names.Add(v.Name()) {
			return nil, errors.Reason("verifier %q is used twice", v.Name()).Err()
		}
	}
	for _, v := range prePatch {
		if _, ok := v.(verification.CheckoutVerifier); ok {
			return nil, errors.Reason("verifier %q requires the checkout and can't run before the patch", v.Name()).Err()
		}
	}
	if opts.MaxCommitBurst <= 0 {
		opts.MaxCommitBurst = DefaultMaxCommitBurst
	}
	if opts.CommitBurstDelay <= 0 {
		opts.CommitBurstDelay = DefaultCommitBurstDelay
	}
	if opts.Crash == nil {
		opts.Crash = crash.Log{}
	}
	return &Manager{
		Queue:     &Queue{},
		env:       env,
		prePatch:  prePatch,
		verifiers: verifiers,
		opts:      opts,
	}, nil
}

func (m *Manager) all() []verification.Verifier {
	return append(append([]verification.Verifier(nil), m.prePatch...), m.verifiers...)
}

// VerifierNames lists the verifiers in the order they run.
func (m *Manager) VerifierNames() []string {
	var out []string
	for _, v := range m.all() {
		out = append(out, v.Name())
	}
	return out
}

// WhyNot explains what every commit still processing is waiting for, in
// queue order.
func (m *Manager) WhyNot() []string {
	var out []string
	for _, p := range m.Queue.PendingCommits {
		if p.State() != verification.Processing {
			continue
		}
		if why := p.WhyNot(); why != "" {
			out = append(out, fmt.Sprintf("Issue %d: %s", p.Issue, why))
		}
	}
	return out
}

// needsCheckout is true if a post-patch verifier works on the patched
// checkout.
func (m *Manager) needsCheckout() bool {
	for _, v := range m.verifiers {
		if _, ok := v.(verification.CheckoutVerifier); ok {
			return true
		}
	}
	return false
}

// LookForNewPendingCommit syncs the queue with the issues that have the
// commit flag set.
//
// Issues that lost the flag are dropped without touching the issue. New
// issues are appended to the queue without verification.
func (m *Manager) LookForNewPendingCommit(ctx context.Context) error {
	ids, err := m.env.Review.PendingIssues(ctx)
	if err != nil {
		return errors.Annotate(err, "fetching pending issues").Err()
	}
	current := make(map[int64]bool, len(ids))
	for _, id := range ids {
		current[id] = true
	}

	for _, p := range append([]*verification.Pending(nil), m.Queue.PendingCommits...) {
		if current[p.Issue] {
			continue
		}
		logging.Infof(ctx, "Flushing issue %d", p.Issue)
		m.env.SendStatus(ctx, p, status.Abort, map[string]any{"output": Unchecked})
		m.remove(ctx, p, metrics.ResultIgnored)
	}
	ignored := m.Queue.Ignored[:0]
	for _, id := range m.Queue.Ignored {
		if current[id] {
			ignored = append(ignored, id)
		}
	}
	m.Queue.Ignored = ignored

	var merr errors.MultiError
	for _, id := range ids {
		if m.Queue.Get(id) != nil || m.Queue.isIgnored(id) {
			continue
		}
		issue, err := m.env.Review.IssueProperties(ctx, id, true)
		if err != nil {
			merr = append(merr, errors.Annotate(err, "loading issue %d", id).Err())
			continue
		}
		if len(issue.Patchsets) == 0 || !issue.Commit {
			continue
		}
		logging.Infof(ctx, "Found new issue %d", issue.Issue)
		p := &verification.Pending{
			Issue:       issue.Issue,
			Patchset:    issue.LastPatchset(),
			Description: issue.NormalizedDescription(),
			Owner:       issue.Owner,
			Reviewers:   issue.Reviewers,
			BaseURL:     issue.BaseURL,
		}
		for _, msg := range issue.Messages {
			p.Messages = append(p.Messages, verification.Message{Sender: msg.Sender, Approval: msg.Approval})
		}
		m.Queue.PendingCommits = append(m.Queue.PendingCommits, p)
	}
	m.updateCount(ctx)
	if len(merr) > 0 {
		return merr
	}
	return nil
}

// ProcessNewPendingCommit starts the verifications of commits missing some.
func (m *Manager) ProcessNewPendingCommit(ctx context.Context) {
	all := m.all()
	for _, p := range append([]*verification.Pending(nil), m.Queue.PendingCommits...) {
		var missing []string
		for _, v := range all {
			if !p.Verifications.Has(v.Name()) {
				missing = append(missing, v.Name())
			}
		}
		if len(missing) == 0 || p.State() != verification.Processing {
			continue
		}
		logging.Infof(ctx, "Processing issue %d (%s)", p.Issue, strings.Join(missing, ", "))
		if err := m.verifyPending(ctx, p); err != nil {
			if d, ok := verification.AsDiscard(err); ok {
				m.discard(ctx, d.Pending, d.Message, metrics.ResultFailed)
			} else {
				m.report(ctx, errors.Annotate(err, "processing %s", p.PendingName()).Err())
			}
		}
	}
}

// verifyPending runs every verifier on p, applying the patch in between
// if needed.
func (m *Manager) verifyPending(ctx context.Context, p *verification.Pending) error {
	switch ok, err := m.runVerifiers(ctx, p, m.prePatch); {
	case err != nil:
		return err
	case !ok:
		return nil
	}

	needsCheckout := m.needsCheckout()
	if needsCheckout {
		if err := p.PrepareForPatch(ctx, m.env); err != nil {
			return err
		}
	}

	// The commit is real business: tell the author before applying the
	// patch.
	m.env.SendStatus(ctx, p, status.Initial, map[string]any{"revision": p.Revision})
	if url := m.env.Status.URL(); url != "" {
		msg := TryingPatch + fmt.Sprintf("%s/%s/%d/%d\n", url, p.Owner, p.Issue, p.Patchset)
		if err := m.env.Review.AddComment(ctx, p.Issue, msg); err != nil {
			return errors.Annotate(err, "posting trying comment").Err()
		}
	}

	if needsCheckout {
		if err := p.ApplyPatch(ctx, m.env, false); err != nil {
			return err
		}
	}
	_, err := m.runVerifiers(ctx, p, m.verifiers)
	return err
}

// runVerifiers runs verifiers on p in order.
//
// Returns false if p turned out to be ignored. A failed commit is returned
// as a *verification.DiscardPending.
func (m *Manager) runVerifiers(ctx context.Context, p *verification.Pending, verifiers []verification.Verifier) (bool, error) {
	for _, v := range verifiers {
		if p.Verifications.Has(v.Name()) {
			logging.Warningf(ctx, "Re-running verifier %s for issue %d", v.Name(), p.Issue)
		}
		if err := v.Verify(ctx, p); err != nil {
			return false, errors.Annotate(err, "verifier %s", v.Name()).Err()
		}
		if !p.Verifications.Has(v.Name()) {
			return false, errors.Reason("verifier %s set no status on %s", v.Name(), p.PendingName()).Err()
		}
		switch p.State() {
		case verification.Ignored:
			// Only the reason to ignore it is kept.
			for _, name := range p.Verifications.Names() {
				if name != v.Name() {
					p.Verifications.Delete(name)
				}
			}
			return false, nil
		case verification.Failed:
			return false, verification.Discard(p, orDefault(p.ErrorMessage(), FailedNoMessage))
		}
	}
	return true, nil
}

// UpdateStatus lets every verifier advance its processing verifications.
func (m *Manager) UpdateStatus(ctx context.Context) {
	for _, v := range m.all() {
		for _, err := range flatten(v.UpdateStatus(ctx, m.Queue.PendingCommits)) {
			switch d, ok := verification.AsDiscard(err); {
			case !ok:
				m.report(ctx, errors.Annotate(err, "updating %s", v.Name()).Err())
			case m.Queue.contains(d.Pending):
				m.discard(ctx, d.Pending, d.Message, metrics.ResultDiscarded)
			}
		}
	}
}

// ScanResults lands the commits that succeeded and drops those that
// failed or are ignored.
//
// Landing is throttled by the commit burst limiter and by verifiers
// implementing verification.Postponer.
func (m *Manager) ScanResults(ctx context.Context) {
	for _, p := range append([]*verification.Pending(nil), m.Queue.PendingCommits...) {
		switch p.State() {
		case verification.Failed:
			m.discard(ctx, p, orDefault(p.ErrorMessage(), FailedNoMessage), metrics.ResultFailed)

		case verification.Ignored:
			logging.Infof(ctx, "Ignoring issue %d", p.Issue)
			m.remove(ctx, p, metrics.ResultIgnored)
			if !m.Queue.isIgnored(p.Issue) {
				m.Queue.Ignored = append(m.Queue.Ignored, p.Issue)
			}

		case verification.Succeeded:
			if m.throttle(ctx, p) {
				continue
			}
			// Removed right away so that a crash in the middle of the land
			// never lands twice.
			m.Queue.remove(p)
			if err := m.land(ctx, p); err != nil {
				if d, ok := verification.AsDiscard(err); ok {
					m.discard(ctx, d.Pending, d.Message, metrics.ResultDiscarded)
				} else {
					m.report(ctx, errors.Annotate(err, "committing %s", p.PendingName()).Err())
					m.discard(ctx, p, InternalException, metrics.ResultDiscarded)
				}
			}
		}
	}
	m.updateCount(ctx)
}

// throttle returns true if landing p must wait.
func (m *Manager) throttle(ctx context.Context, p *verification.Pending) bool {
	for _, v := range m.all() {
		if pp, ok := v.(verification.Postponer); ok && pp.Postpone(ctx, p) {
			logging.Debugf(ctx, "%s postpones %s", v.Name(), p.PendingName())
			return true
		}
	}
	cutoff := clock.Now(ctx).Add(-m.opts.CommitBurstDelay)
	burst := 0
	for _, t := range m.recentCommits {
		if t.After(cutoff) {
			burst++
		}
	}
	return burst >= m.opts.MaxCommitBurst
}

// lastMinuteChecks verifies that the issue didn't change since it was
// verified.
func (m *Manager) lastMinuteChecks(ctx context.Context, p *verification.Pending) error {
	issue, err := m.env.Review.IssueProperties(ctx, p.Issue, true)
	if err != nil {
		return errors.Annotate(err, "reloading issue %d", p.Issue).Err()
	}
	if !issue.Commit || issue.Closed {
		return verification.Discard(p, "")
	}
	if p.Description != issue.NormalizedDescription() {
		return verification.Discard(p, DescriptionUpdated)
	}
	// A new reviewer who approved isn't a problem.
	if driveBys := issue.DriveBys(p.Reviewers, m.env.Review.Email()); len(driveBys) > 0 {
		return verification.Discard(p, fmt.Sprintf(
			"List of reviewers changed. %s did a drive-by without LGTM'ing!", strings.Join(driveBys, ",")))
	}
	if p.Patchset != issue.LastPatchset() {
		return verification.Discard(p, NewPatchset)
	}
	return nil
}

// land commits p on the head of the checkout and closes its issue.
func (m *Manager) land(ctx context.Context, p *verification.Pending) error {
	if err := m.lastMinuteChecks(ctx, p); err != nil {
		return err
	}
	p.Revision = 0
	if err := p.ApplyPatch(ctx, m.env, true); err != nil {
		return err
	}
	message := fmt.Sprintf("%s\n\nReview URL: %s/%d", p.Description, m.env.Review.URL(), p.Issue)
	rev, err := m.env.Checkout.Commit(ctx, message, p.Owner)
	if err != nil {
		var failed *checkout.PatchApplicationFailed
		if errors.As(err, &failed) {
			return verification.Discard(p, failed.Error())
		}
		return errors.Annotate(err, "committing").Err()
	}
	p.Revision = rev

	m.recentCommits = append(m.recentCommits, clock.Now(ctx))
	if extra := len(m.recentCommits) - (m.opts.MaxCommitBurst + 1); extra > 0 {
		m.recentCommits = m.recentCommits[extra:]
	}
	if rev == 0 {
		return verification.Discard(p, "Failed to commit patch.")
	}
	return m.closeIssue(ctx, p)
}

// closeIssue closes the issue of a landed commit.
func (m *Manager) closeIssue(ctx context.Context, p *verification.Pending) error {
	description := p.Description
	output := fmt.Sprintf("Committed: %d", p.Revision)
	url := ""
	if viewvc := m.env.Checkout.ViewVCURL(); viewvc != "" {
		url = fmt.Sprintf("%s%d", strings.TrimRight(viewvc, "/"), p.Revision)
		output = "Committed: " + url
		description += "\n\n" + output
	}
	m.env.SendStatus(ctx, p, status.Commit, map[string]any{
		"revision": p.Revision,
		"output":   output,
		"url":      url,
	})
	logging.Infof(ctx, "Committed %s as %d", p.PendingName(), p.Revision)
	metrics.Pending.Results.Add(ctx, 1, m.opts.Project, metrics.ResultCommitted)

	review := m.env.Review
	if err := review.CloseIssue(ctx, p.Issue); err != nil {
		return errors.Annotate(err, "closing issue %d", p.Issue).Err()
	}
	if err := review.UpdateDescription(ctx, p.Issue, description); err != nil {
		return errors.Annotate(err, "updating description of %d", p.Issue).Err()
	}
	if err := review.AddComment(ctx, p.Issue, fmt.Sprintf("Change committed as %d", p.Revision)); err != nil {
		return errors.Annotate(err, "commenting on %d", p.Issue).Err()
	}
	return nil
}

// discard removes p from the queue, clearing its commit flag unless it's
// ignored and posting message if not empty.
//
// Failures to update the issue are reported but never keep p in the queue.
func (m *Manager) discard(ctx context.Context, p *verification.Pending, message, result string) {
	logging.Debugf(ctx, "discarding %s: %q", p.PendingName(), message)
	if p.State() != verification.Ignored {
		if err := m.env.Review.SetFlag(ctx, p.Issue, p.Patchset, "commit", "False"); err != nil {
			logging.Errorf(ctx, "Failed to set the flag to False for %s with message %q", p.PendingName(), message)
			m.report(ctx, errors.Annotate(err, "clearing commit flag of %s", p.PendingName()).Err())
		}
	}
	if message != "" {
		if err := m.env.Review.AddComment(ctx, p.Issue, message); err != nil {
			logging.Errorf(ctx, "Failed to add comment for %s with message %q", p.PendingName(), message)
			m.report(ctx, errors.Annotate(err, "commenting on %s", p.PendingName()).Err())
		}
		m.env.SendStatus(ctx, p, status.Abort, map[string]any{"output": message})
	}
	m.remove(ctx, p, result)
}

// remove drops p from the queue and counts it.
func (m *Manager) remove(ctx context.Context, p *verification.Pending, result string) {
	m.Queue.remove(p)
	metrics.Pending.Results.Add(ctx, 1, m.opts.Project, result)
}

func (m *Manager) report(ctx context.Context, err error) {
	m.opts.Crash.Report(ctx, err)
}

func (m *Manager) updateCount(ctx context.Context) {
	metrics.Pending.Count.Set(ctx, int64(len(m.Queue.PendingCommits)), m.opts.Project)
}

// Load replaces the queue with the one saved in path.
func (m *Manager) Load(path string) error {
	q := &Queue{}
	if err := model.Load(path, q); err != nil {
		return err
	}
	m.Queue = q
	return nil
}

// Save writes the queue to path, keeping the previous file as path.old, and
// flushes the status sink.
func (m *Manager) Save(ctx context.Context, path string) error {
	if err := model.Save(path, m.Queue); err != nil {
		return errors.Annotate(err, "saving queue").Err()
	}
	m.env.Status.Close(ctx)
	return nil
}

// flatten returns the errors in err, expanding multi errors.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	var merr errors.MultiError
	if !errors.As(err, &merr) {
		return []error{err}
	}
	var out []error
	for _, e := range merr {
		out = append(out, flatten(e)...)
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
