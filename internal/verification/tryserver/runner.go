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

// Package tryserver verifies pending commits by running try jobs on a
// buildbot try server.
package tryserver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/commitqueue/internal/buildbot"
	"go.chromium.org/commitqueue/internal/lkgr"
	"go.chromium.org/commitqueue/internal/metrics"
	"go.chromium.org/commitqueue/internal/rietveld"
	"go.chromium.org/commitqueue/internal/verification"
)

// Name of the verifier, also used for its status events.
const Name = "try server"

const (
	retrySuffix = " (retry)"
	lostSuffix  = " (previous was lost)"
)

var noTryRe = regexp.MustCompile(`(?m)^NOTRY=true$`)

// Options configures a Runner.
type Options struct {
	// Builders lists the builders to try on and their tests, in order.
	Builders []buildbot.BuilderTests
	// IgnoredSteps never fail a job.
	IgnoredSteps []string
	// Solution prefixes revisions sent to the try server, e.g. "src".
	Solution string
	// Extra arguments passed to the try server.
	Extra []string
	// LKGR returns the last known good revision, used for retries.
	LKGR lkgr.Func
	// LostTryJobDelay is the time after which a job that didn't start is
	// sent again.
	LostTryJobDelay time.Duration
	// MaxResends is the number of resends allowed per job.
	MaxResends int
}

// Runner sends try jobs for pending commits and tracks their builds.
type Runner struct {
	env     *verification.Env
	client  buildbot.Client
	opts    Options
	db      *StepDB
	ignored stringset.Set
	tests   map[string]stringset.Set
}

var _ verification.CheckoutVerifier = (*Runner)(nil)

// New returns a Runner.
func New(env *verification.Env, client buildbot.Client, opts Options) *Runner {
	r := &Runner{
		env:     env,
		client:  client,
		opts:    opts,
		db:      NewStepDB(client),
		ignored: stringset.NewFromSlice(opts.IgnoredSteps...),
		tests:   map[string]stringset.Set{},
	}
	for _, bt := range opts.Builders {
		r.tests[bt.Builder] = stringset.NewFromSlice(bt.Tests...)
	}
	return r
}

// Name implements verification.Verifier.
func (r *Runner) Name() string { return Name }

// RequiresCheckout implements verification.CheckoutVerifier. Jobs are sent
// at the revision the patch was applied to.
func (r *Runner) RequiresCheckout() {}

// StepDB returns the build cache shared by every commit.
func (r *Runner) StepDB() *StepDB { return r.db }

// Verify sends one grouped try job for every builder at the revision the
// checkout was prepared at.
func (r *Runner) Verify(ctx context.Context, p *verification.Pending) error {
	if noTryRe.MatchString(p.Description) {
		logging.Infof(ctx, "%s: NOTRY=true, skipping try jobs", p.PendingName())
		p.Verifications.Set(Name, &Status{NoTry: true})
		return nil
	}
	s := &Status{}
	for _, bt := range r.opts.Builders {
		s.Jobs = append(s.Jobs, newJob(bt.Builder, p.Revision, bt.Tests))
	}
	p.Verifications.Set(Name, s)
	return r.sendJobs(ctx, p, s.Jobs, p.PendingName(), metrics.KindInitial)
}

// sendJobs submits jobs as a single try request named name.
//
// The jobs must share their revision and clobber flag. Jobs sent before
// count as resent; too many resends discard the commit.
func (r *Runner) sendJobs(ctx context.Context, p *verification.Pending, jobs []*Job, name, kind string) error {
	for _, j := range jobs {
		if !j.Sent.IsZero() && j.Resends >= r.opts.MaxResends {
			return verification.Discard(p, "Retried try job too often")
		}
	}
	now := clock.Now(ctx)
	req := &buildbot.TryRequest{
		Name:     name,
		Issue:    p.Issue,
		Patchset: p.Patchset,
		PatchURL: rietveld.PatchURL(r.env.Review.URL(), p.Issue, p.Patchset),
		Email:    p.Owner,
		User:     user(p.Owner),
		Revision: fmt.Sprintf("%s@%d", r.opts.Solution, jobs[0].Revision),
		Clobber:  jobs[0].Clobber,
		Extra:    r.opts.Extra,
	}
	for _, j := range jobs {
		if !j.Sent.IsZero() {
			j.Resends++
		}
		j.Name = name
		j.Sent = now
		j.Build = NoBuild
		j.Current = verification.Processing
		req.Bots = append(req.Bots, buildbot.BuilderTests{Builder: j.Builder, Tests: j.Tests})
	}
	if err := r.client.SendTryJob(ctx, req); err != nil {
		return errors.Annotate(err, "sending try job %q", name).Err()
	}
	for _, j := range jobs {
		metrics.TryJobs.Sent.Add(ctx, 1, j.Builder, kind)
		r.sendStatus(ctx, p, j, "sent", nil)
	}
	return nil
}

func (r *Runner) sendStatus(ctx context.Context, p *verification.Pending, j *Job, state string, b *buildbot.Build) {
	payload := map[string]any{
		"builder":  j.Builder,
		"name":     j.Name,
		"revision": j.Revision,
		"clobber":  j.Clobber,
		"tests":    j.Tests,
		"state":    state,
	}
	if b != nil {
		payload["build"] = b.Number
		payload["url"] = r.buildURL(j.Builder, b.Number)
	}
	r.env.SendStatus(ctx, p, Name, payload)
}

func (r *Runner) buildURL(builder string, number int) string {
	return fmt.Sprintf("%s/buildstatus?builder=%s&number=%d", r.client.URL(), builder, number)
}

// RetryRevision returns the revision to retry a job on: the newest of the
// last good revision of the builder and the LKGR.
func (r *Runner) RetryRevision(ctx context.Context, builder string) int64 {
	rev := r.db.LastGoodRevision(builder)
	if r.opts.LKGR != nil {
		switch l, err := r.opts.LKGR(ctx); {
		case err != nil:
			logging.Warningf(ctx, "failed to get the lkgr: %s", err)
		case l > rev:
			rev = l
		}
	}
	return rev
}

type tracked struct {
	p   *verification.Pending
	s   *Status
	job *Job
}

// UpdateStatus polls the try server for the builds of every processing
// job, resending lost and failed jobs.
func (r *Runner) UpdateStatus(ctx context.Context, queue []*verification.Pending) error {
	var jobs []tracked
	for _, p := range queue {
		s, ok := p.Verifications.Get(Name).(*Status)
		if !ok || s.State() != verification.Processing {
			continue
		}
		for _, j := range s.Jobs {
			if j.Current == verification.Processing {
				jobs = append(jobs, tracked{p, s, j})
			}
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	// Builders with jobs not matched to a build yet, and incomplete builds
	// of matched jobs, in job order.
	var unmatched []string
	seen := stringset.New(0)
	var refreshOrder []string
	refresh := map[string][]int{}
	for _, t := range jobs {
		b := t.job.Builder
		if t.job.Build == NoBuild {
			if seen.Add(b) {
				unmatched = append(unmatched, b)
			}
			continue
		}
		if build := r.db.Build(b, t.job.Build); build == nil || !build.Complete() {
			if _, ok := refresh[b]; !ok {
				refreshOrder = append(refreshOrder, b)
			}
			refresh[b] = append(refresh[b], t.job.Build)
		}
	}

	var summaries map[string]*buildbot.BuilderSummary
	if len(unmatched) > 0 {
		var err error
		if summaries, err = r.client.Builders(ctx, unmatched); err != nil {
			return errors.Annotate(err, "fetching builders %s", unmatched).Err()
		}
		for _, b := range unmatched {
			if err := r.db.FetchAll(ctx, b); err != nil {
				return err
			}
		}
	}
	for _, b := range refreshOrder {
		if err := r.db.Refresh(ctx, b, refresh[b]); err != nil {
			return err
		}
	}

	u := &updater{r: r, summaries: summaries, pending: map[string][]*buildbot.PendingBuild{}}
	var merr errors.MultiError
	failed := map[*verification.Pending]bool{}
	for _, t := range jobs {
		if failed[t.p] {
			continue
		}
		if err := u.update(ctx, t); err != nil {
			failed[t.p] = true
			merr = append(merr, err)
		}
	}
	if len(merr) > 0 {
		return merr
	}
	return nil
}

// updater holds the try server data fetched during one UpdateStatus.
type updater struct {
	r         *Runner
	summaries map[string]*buildbot.BuilderSummary
	pending   map[string][]*buildbot.PendingBuild
}

func (u *updater) update(ctx context.Context, t tracked) error {
	r, j := u.r, t.job
	if j.Build == NoBuild {
		b := r.match(j)
		if b == nil {
			return u.checkLost(ctx, t)
		}
		j.Build = b.Number
		logging.Debugf(ctx, "%s: job %q on %s is build %d", t.p.PendingName(), j.Name, j.Builder, b.Number)
		r.sendStatus(ctx, t.p, j, "running", b)
	}

	build := r.db.Build(j.Builder, j.Build)
	if build == nil {
		return nil
	}
	if failed := r.failedSteps(j, build); len(failed) > 0 {
		r.sendStatus(ctx, t.p, j, "failure", build)
		return r.jobFailed(ctx, t, build, failed)
	}
	if build.Complete() {
		j.Current = verification.Succeeded
		r.sendStatus(ctx, t.p, j, "success", build)
	}
	return nil
}

// match returns the newest build running job, if any.
func (r *Runner) match(j *Job) *buildbot.Build {
	var out *buildbot.Build
	for _, b := range r.db.Builds(j.Builder) {
		if b.Reason == j.Name && b.Revision() == j.Revision {
			out = b
		}
	}
	return out
}

// failedSteps returns the failed steps of build that matter for j.
//
// Ignored steps and tests of the builder the job didn't ask for don't.
func (r *Runner) failedSteps(j *Job, b *buildbot.Build) []string {
	wanted := stringset.NewFromSlice(j.Tests...)
	var out []string
	for _, s := range b.Steps {
		if !s.Results.Failed() || r.ignored.Has(s.Name) {
			continue
		}
		if tests, ok := r.tests[j.Builder]; ok && tests.Has(s.Name) && !wanted.Has(s.Name) {
			continue
		}
		out = append(out, s.Name)
	}
	return out
}

// checkLost resends a job that never started within LostTryJobDelay.
func (u *updater) checkLost(ctx context.Context, t tracked) error {
	r, j := u.r, t.job
	if clock.Now(ctx).Sub(j.Sent) <= r.opts.LostTryJobDelay {
		return nil
	}
	if s := u.summaries[j.Builder]; s != nil && s.PendingBuilds > 0 {
		pending, ok := u.pending[j.Builder]
		if !ok {
			var err error
			if pending, err = r.client.PendingBuilds(ctx, j.Builder); err != nil {
				return errors.Annotate(err, "fetching pending builds of %s", j.Builder).Err()
			}
			u.pending[j.Builder] = pending
		}
		for _, pb := range pending {
			if pb.Reason == j.Name {
				return nil
			}
		}
	}
	logging.Warningf(ctx, "%s: job %q on %s was lost, sending it again", t.p.PendingName(), j.Name, j.Builder)
	j.Lost++
	return r.resend(ctx, t.p, j, t.p.PendingName()+lostSuffix, metrics.KindLost)
}

// jobFailed retries a job once, unless its update step failed.
func (r *Runner) jobFailed(ctx context.Context, t tracked, b *buildbot.Build, failed []string) error {
	j := t.job
	previous := j.FailedSteps
	j.FailedSteps = failed
	stepsFailed := stringset.NewFromSlice(failed...)

	if j.Retries == 0 && !stepsFailed.Has("update") {
		j.Retries++
		steps, builds := r.db.RevisionQuality(j.Builder, j.Revision)
		logging.Infof(ctx, "%s: revision %d is %s on %s over %d builds",
			t.p.PendingName(), j.Revision, StepsQuality(steps), j.Builder, builds)
		if rev := r.RetryRevision(ctx, j.Builder); rev > 0 {
			j.Revision = rev
		}
		if stepsFailed.Has("compile") {
			j.Clobber = true
		} else {
			var tests []string
			for _, name := range j.Tests {
				if stepsFailed.Has(name) {
					tests = append(tests, name)
				}
			}
			if len(tests) > 0 {
				j.Tests = tests
			}
		}
		logging.Infof(ctx, "%s: retrying %s at %d after %s failed", t.p.PendingName(), j.Builder, j.Revision, failed)
		return r.resend(ctx, t.p, j, t.p.PendingName()+retrySuffix, metrics.KindRetry)
	}

	j.Current = verification.Failed
	url := r.buildURL(j.Builder, b.Number)
	if j.Retries == 0 {
		t.s.Message = fmt.Sprintf(
			"Try job failure for %s on %s for step \"update\".\n%s\n\n"+
				"Step \"update\" is always a major failure.\n"+
				"Look at the try server FAQ for more details.",
			j.Name, j.Builder, url)
	} else {
		extra := ""
		if j.Clobber {
			extra = " (clobber build)"
		}
		t.s.Message = fmt.Sprintf(
			"Try job failure for %s on %s for step \"%s\"%s.\n"+
				"It's a second try, previously, step \"%s\" failed.\n%s\n",
			j.Name, j.Builder, strings.Join(failed, ", "), extra, strings.Join(previous, ", "), url)
	}
	logging.Warningf(ctx, "%s: try job %q failed on %s", t.p.PendingName(), j.Name, j.Builder)
	return nil
}

// resend prepares the checkout at the job revision to make sure the patch
// still applies, then sends the job again.
func (r *Runner) resend(ctx context.Context, p *verification.Pending, j *Job, name, kind string) error {
	p.Revision = j.Revision
	if err := p.ApplyPatch(ctx, r.env, true); err != nil {
		return err
	}
	j.Revision = p.Revision
	return r.sendJobs(ctx, p, []*Job{j}, name, kind)
}

func user(email string) string {
	u, _, _ := strings.Cut(email, "@")
	return u
}
