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

// Package project assembles a commit queue from its configuration.
package project

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/commitqueue/internal/buildbot"
	"go.chromium.org/commitqueue/internal/checkout"
	"go.chromium.org/commitqueue/internal/config"
	"go.chromium.org/commitqueue/internal/crash"
	"go.chromium.org/commitqueue/internal/lkgr"
	"go.chromium.org/commitqueue/internal/pending"
	"go.chromium.org/commitqueue/internal/rietveld"
	"go.chromium.org/commitqueue/internal/status"
	"go.chromium.org/commitqueue/internal/verification"
	"go.chromium.org/commitqueue/internal/verification/presubmit"
	"go.chromium.org/commitqueue/internal/verification/projectbase"
	"go.chromium.org/commitqueue/internal/verification/reviewerlgtm"
	"go.chromium.org/commitqueue/internal/verification/treestatus"
	"go.chromium.org/commitqueue/internal/verification/tryserver"
)

const (
	// DefaultPushInterval is the delay between two pushes to the status
	// dashboard.
	DefaultPushInterval = 10 * time.Second
	// SyncDelay is the delay between two syncs of an idle checkout.
	SyncDelay = 5 * time.Minute
)

// Options control how a project talks to the outside world.
type Options struct {
	// Workdir holds the checkouts and the saved queues.
	Workdir string
	// DryRun never mutates the code review server nor the repository, and
	// stores status events on disk. The try server is still used.
	DryRun bool
	// OnlyIssue restricts the commit queue to a single issue, faking its
	// commit flag.
	OnlyIssue int64
	// Fake uses an in-memory checkout. Only honored in dry-run.
	Fake bool
	// NoTry disables try jobs.
	NoTry bool
	// HTTPClient is used for every server. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// StatusPassword authenticates status pushes.
	StatusPassword string
	// PushInterval defaults to DefaultPushInterval.
	PushInterval time.Duration
	// Crash receives recovered errors. Defaults to crash.Log.
	Crash crash.Reporter
}

// Project is a ready to run commit queue.
type Project struct {
	Name    string
	Manager *pending.Manager
	Env     *verification.Env
	// StatePath is where the queue is saved between runs.
	StatePath string

	crash crash.Reporter
}

// New builds the commit queue of cfg.
func New(ctx context.Context, cfg *config.Project, opts Options) (*Project, error) {
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = DefaultPushInterval
	}
	if opts.Crash == nil {
		opts.Crash = crash.Log{}
	}

	env := &verification.Env{
		Review:   newReview(ctx, cfg, opts, hc),
		Checkout: newCheckout(ctx, cfg, opts),
		Status:   newStatus(ctx, cfg, opts, hc),
	}

	prePatch, err := prePatchVerifiers(cfg, env.Review, hc)
	if err != nil {
		return nil, err
	}
	var verifiers []verification.Verifier
	if ps := cfg.Presubmit; ps != nil {
		v, err := presubmit.New(env, ps.Command, ps.Timeout)
		if err != nil {
			return nil, errors.Annotate(err, "project %s", cfg.Name).Err()
		}
		verifiers = append(verifiers, v)
	}
	if t := cfg.TryServer; t != nil && !opts.NoTry {
		verifiers = append(verifiers, newTryRunner(env, t, hc))
	}

	m, err := pending.New(env, prePatch, verifiers, pending.Options{
		Project:          cfg.Name,
		MaxCommitBurst:   cfg.MaxCommitBurst,
		CommitBurstDelay: cfg.CommitBurstDelay,
		Crash:            opts.Crash,
	})
	if err != nil {
		return nil, errors.Annotate(err, "project %s", cfg.Name).Err()
	}
	return &Project{
		Name:      cfg.Name,
		Manager:   m,
		Env:       env,
		StatePath: filepath.Join(opts.Workdir, cfg.Name+".json"),
		crash:     opts.Crash,
	}, nil
}

// LoadState restores the queue saved by a previous run, if any.
func (p *Project) LoadState(ctx context.Context) error {
	if _, err := os.Stat(p.StatePath); os.IsNotExist(err) {
		logging.Infof(ctx, "No saved queue at %s", p.StatePath)
		return nil
	}
	if err := p.Manager.Load(p.StatePath); err != nil {
		return err
	}
	logging.Infof(ctx, "Loaded %d pending commits", len(p.Manager.Queue.PendingCommits))
	return nil
}

// Save writes the queue to StatePath and flushes the status sink.
func (p *Project) Save(ctx context.Context) error {
	logging.Infof(ctx, "Saving the queue to %s", p.StatePath)
	return p.Manager.Save(ctx, p.StatePath)
}

// Tick runs one iteration of the commit queue.
func (p *Project) Tick(ctx context.Context) {
	if err := p.Manager.LookForNewPendingCommit(ctx); err != nil {
		p.crash.Report(ctx, err)
	}
	p.Manager.ProcessNewPendingCommit(ctx)
	p.Manager.UpdateStatus(ctx)
	p.Manager.ScanResults(ctx)
}

// Run ticks at most every pollInterval until ctx is done, then saves the
// queue.
//
// The checkout is synced every SyncDelay when there is at least a second to
// wait, starting on the second iteration.
func (p *Project) Run(ctx context.Context, pollInterval time.Duration) error {
	nextSync := clock.Now(ctx).Add(2 * pollInterval)
	for ctx.Err() == nil {
		nextLoop := clock.Now(ctx).Add(pollInterval)
		p.Tick(ctx)

		now := clock.Now(ctx)
		if nextLoop.Sub(now) >= time.Second && !now.Before(nextSync) {
			logging.Debugf(ctx, "Syncing the checkout while waiting")
			if _, err := p.Env.Checkout.Prepare(ctx, 0); err != nil {
				p.crash.Report(ctx, errors.Annotate(err, "syncing the checkout").Err())
			}
			nextSync = clock.Now(ctx).Add(SyncDelay)
		}

		// Always wait at least a second.
		wait := nextLoop.Sub(clock.Now(ctx))
		if wait < time.Second {
			wait = time.Second
		}
		if r := <-clock.After(ctx, wait); r.Err != nil {
			break
		}
	}
	return p.Save(ctx)
}

func newReview(ctx context.Context, cfg *config.Project, opts Options, hc *http.Client) rietveld.Client {
	review := rietveld.New(cfg.ReviewURL, cfg.ReviewEmail, hc)
	switch {
	case opts.DryRun:
		logging.Infof(ctx, "Using read-only code review")
		return rietveld.ReadOnly(review, opts.OnlyIssue)
	case opts.OnlyIssue != 0:
		logging.Warningf(ctx, "The commit queue is going to commit issue %d", opts.OnlyIssue)
		return rietveld.OnlyIssue(review, opts.OnlyIssue)
	default:
		logging.Warningf(ctx, "The commit queue is going to commit stuff")
		return review
	}
}

func newCheckout(ctx context.Context, cfg *config.Project, opts Options) checkout.Checkout {
	co := &checkout.Git{
		Path:   filepath.Join(opts.Workdir, cfg.Checkout.Path),
		Remote: cfg.Checkout.Remote,
		Branch: cfg.Checkout.Branch,
		ViewVC: cfg.Checkout.ViewVCURL,
	}
	switch {
	case !opts.DryRun:
		return co
	case opts.Fake:
		logging.Infof(ctx, "Using no checkout")
		fake := checkout.NewFake()
		fake.Path = co.Path
		return fake
	default:
		logging.Infof(ctx, "Using read-only checkout")
		return checkout.ReadOnly(co)
	}
}

func newStatus(ctx context.Context, cfg *config.Project, opts Options, hc *http.Client) status.Sink {
	switch {
	case opts.DryRun:
		return status.NewStore(filepath.Join(opts.Workdir, cfg.Name+".status.jsonl"))
	case cfg.StatusURL != "":
		return status.NewAsyncPush(ctx, cfg.StatusURL, opts.StatusPassword, hc, opts.PushInterval)
	default:
		return status.Noop{}
	}
}

func prePatchVerifiers(cfg *config.Project, review rietveld.Client, hc *http.Client) ([]verification.Verifier, error) {
	var out []verification.Verifier
	if len(cfg.ProjectBases) > 0 {
		v, err := projectbase.New(cfg.ProjectBases)
		if err != nil {
			return nil, errors.Annotate(err, "project %s", cfg.Name).Err()
		}
		out = append(out, v)
	}
	if r := cfg.Reviewers; r != nil {
		// The commit queue never approves a change itself.
		blacklist := append([]string{regexp.QuoteMeta(cfg.ReviewEmail)}, r.Blacklist...)
		v, err := reviewerlgtm.New(review, r.Whitelist, blacklist)
		if err != nil {
			return nil, errors.Annotate(err, "project %s", cfg.Name).Err()
		}
		out = append(out, v)
	}
	if cfg.TreeStatusURL != "" {
		out = append(out, treestatus.New(cfg.TreeStatusURL, hc))
	}
	return out, nil
}

func newTryRunner(env *verification.Env, t *config.TryServer, hc *http.Client) *tryserver.Runner {
	opts := tryserver.Options{
		IgnoredSteps:    t.IgnoredSteps,
		Solution:        t.Solution,
		Extra:           t.Extra,
		LostTryJobDelay: t.LostTryJobDelay,
		MaxResends:      t.MaxResends,
	}
	for _, b := range t.Builders {
		opts.Builders = append(opts.Builders, buildbot.BuilderTests{Builder: b.Name, Tests: b.Tests})
	}
	if t.LKGRURL != "" {
		opts.LKGR = lkgr.HTTP(t.LKGRURL, hc)
	}
	return tryserver.New(env, buildbot.New(t.URL, hc), opts)
}
