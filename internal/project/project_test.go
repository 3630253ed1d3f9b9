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

package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/clock/testclock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/tsmon"

	"go.chromium.org/commitqueue/internal/checkout"
	"go.chromium.org/commitqueue/internal/config"
	"go.chromium.org/commitqueue/internal/crash"
	"go.chromium.org/commitqueue/internal/pending"
	"go.chromium.org/commitqueue/internal/rietveld"
	"go.chromium.org/commitqueue/internal/rietveld/rietveldfake"
	"go.chromium.org/commitqueue/internal/status"
	"go.chromium.org/commitqueue/internal/verification"
	"go.chromium.org/commitqueue/internal/verification/fake"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"
)

const sample = `
projects:
- name: chromium
  review_url: https://codereview.example.com
  review_email: commit-bot@chromium.org
  tree_status_url: https://tree.example.com
  checkout:
    remote: https://git.example.com/chromium
  project_bases:
  - '^svn://svn\.example\.com/chrome/trunk/src(|/.*)$'
  reviewers:
    whitelist: ['^.+@chromium\.org$']
  presubmit:
    command: [presubmit_support.py]
  try_server:
    url: https://build.example.com/tryserver
    builders:
    - name: linux
      tests: [unit_tests]
    lkgr_url: https://lkgr.example.com
`

func TestNew(t *testing.T) {
	t.Parallel()

	Convey("New", t, func() {
		ctx := context.Background()
		cfg, err := config.Parse(ctx, "cq.yaml", []byte(sample))
		So(err, ShouldBeNil)
		pcfg := cfg.Project("chromium")
		workdir := t.TempDir()

		Convey("dry run with a fake checkout", func() {
			p, err := New(ctx, pcfg, Options{Workdir: workdir, DryRun: true, Fake: true})
			So(err, ShouldBeNil)
			So(p.Name, ShouldEqual, "chromium")
			So(p.StatePath, ShouldEqual, filepath.Join(workdir, "chromium.json"))
			So(p.Manager.VerifierNames(), ShouldResemble, []string{
				"project_bases", "reviewer_lgtm", "tree status", "presubmit", "try server",
			})
			fake, ok := p.Env.Checkout.(*checkout.Fake)
			So(ok, ShouldBeTrue)
			So(fake.Path, ShouldEqual, filepath.Join(workdir, "chromium"))
			So(p.Env.Status, ShouldHaveSameTypeAs, &status.Store{})
			So(p.Env.Review.URL(), ShouldEqual, "https://codereview.example.com")
		})

		Convey("dry run keeps a read-only git checkout", func() {
			p, err := New(ctx, pcfg, Options{Workdir: workdir, DryRun: true})
			So(err, ShouldBeNil)
			_, isGit := p.Env.Checkout.(*checkout.Git)
			So(isGit, ShouldBeFalse)
			So(p.Env.Checkout.ProjectPath(), ShouldEqual, filepath.Join(workdir, "chromium"))
		})

		Convey("no try", func() {
			p, err := New(ctx, pcfg, Options{Workdir: workdir, DryRun: true, NoTry: true})
			So(err, ShouldBeNil)
			So(p.Manager.VerifierNames(), ShouldResemble, []string{
				"project_bases", "reviewer_lgtm", "tree status", "presubmit",
			})
		})

		Convey("real run", func() {
			p, err := New(ctx, pcfg, Options{Workdir: workdir})
			So(err, ShouldBeNil)
			co, ok := p.Env.Checkout.(*checkout.Git)
			So(ok, ShouldBeTrue)
			So(co.Remote, ShouldEqual, "https://git.example.com/chromium")
			So(co.Branch, ShouldEqual, "main")
			So(p.Env.Status, ShouldResemble, status.Noop{})
		})

		Convey("status dashboard", func() {
			pcfg.StatusURL = "https://status.example.com"
			p, err := New(ctx, pcfg, Options{Workdir: workdir, NoTry: true})
			So(err, ShouldBeNil)
			defer p.Env.Status.Close(ctx)
			So(p.Env.Status.URL(), ShouldEqual, "https://status.example.com")
		})

		Convey("minimal project", func() {
			p, err := New(ctx, &config.Project{
				Name:        "mini",
				ReviewURL:   "https://codereview.example.com",
				ReviewEmail: "cq@example.com",
				Reviewers:   &config.Reviewers{},
			}, Options{Workdir: workdir, DryRun: true, Fake: true})
			So(err, ShouldBeNil)
			So(p.Manager.VerifierNames(), ShouldResemble, []string{"reviewer_lgtm"})
		})

		Convey("no verifier", func() {
			_, err := New(ctx, &config.Project{Name: "empty"}, Options{Workdir: workdir, DryRun: true, Fake: true})
			So(err, ShouldErrLike, "project empty: at least one verifier is required")
		})
	})
}

func TestLoop(t *testing.T) {
	t.Parallel()

	Convey("Project loop", t, func() {
		ctx, tc := testclock.UseTime(context.Background(), testclock.TestRecentTimeUTC)
		ctx, _ = tsmon.WithDummyInMemory(ctx)
		review := rietveldfake.New()
		co := checkout.NewFake()
		env := &verification.Env{Review: review, Checkout: co, Status: &status.Memory{}}
		reporter := &crash.Memory{}
		m, err := pending.New(env, nil, []verification.Verifier{fake.New("", verification.Succeeded)},
			pending.Options{Project: "test", Crash: reporter})
		So(err, ShouldBeNil)
		p := &Project{
			Name:      "test",
			Manager:   m,
			Env:       env,
			StatePath: filepath.Join(t.TempDir(), "test.json"),
			crash:     reporter,
		}

		Convey("Tick lands a ready commit", func() {
			review.AddIssue(&rietveld.Issue{
				Issue:       1,
				Owner:       "author@example.com",
				Description: "foo",
				Patchsets:   []int64{1},
				Commit:      true,
			})
			p.Tick(ctx)
			So(m.Queue.PendingCommits, ShouldBeEmpty)
			So(co.Calls(), ShouldContain,
				`commit("foo\n\nReview URL: http://nowhere/1", author@example.com)`)
			So(reporter.Errors(), ShouldBeEmpty)
		})

		Convey("Tick reports listing errors", func() {
			review.FailOn("pending_issues", errors.New("boom"))
			p.Tick(ctx)
			So(reporter.Errors(), ShouldHaveLength, 1)
			So(reporter.Errors()[0], ShouldErrLike, "boom")
		})

		Convey("LoadState without a saved queue", func() {
			So(p.LoadState(ctx), ShouldBeNil)
			So(m.Queue.PendingCommits, ShouldBeEmpty)
		})

		Convey("LoadState restores a saved queue", func() {
			m.Queue.PendingCommits = append(m.Queue.PendingCommits, &verification.Pending{Issue: 7, Patchset: 1})
			So(p.Save(ctx), ShouldBeNil)
			m.Queue = &pending.Queue{}
			So(p.LoadState(ctx), ShouldBeNil)
			So(m.Queue.Get(7), ShouldNotBeNil)
		})

		Convey("Run syncs the idle checkout and saves on exit", func() {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			timers := 0
			tc.SetTimerCallback(func(d time.Duration, t clock.Timer) {
				timers++
				if timers < 3 {
					tc.Add(d)
				} else {
					cancel()
				}
			})
			So(p.Run(ctx, 10*time.Second), ShouldBeNil)
			So(timers, ShouldEqual, 3)
			So(co.Calls(), ShouldResemble, []string{"prepare(None)"})
			_, err := os.Stat(p.StatePath)
			So(err, ShouldBeNil)
		})
	})
}
