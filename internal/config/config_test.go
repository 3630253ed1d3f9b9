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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/config/validation"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"
)

const sample = `
projects:
- name: chromium
  review_url: https://codereview.chromium.org
  review_email: commit-bot@chromium.org
  status_url: https://chromium-status.appspot.com/cq
  tree_status_url: https://chromium-status.appspot.com
  checkout:
    path: src
    viewvc_url: http://src.chromium.org/viewvc/chrome?view=rev&revision=
  project_bases:
  - ^svn://svn\.chromium\.org/chrome/trunk/src(|/.*)$
  reviewers:
    whitelist: ['.*@chromium\.org']
    blacklist: ['commit-bot@chromium\.org']
  presubmit:
    command: [python, presubmit_shim.py]
  try_server:
    url: http://build.chromium.org/p/tryserver.chromium
    solution: src
    lkgr_url: https://chromium-status.appspot.com/lkgr
    builders:
    - name: linux
      tests: [base_unittests, browser_tests]
    - name: mac
    ignored_steps: [svnkill, update_scripts]
    lost_try_job_delay: 30m
`

func TestConfig(t *testing.T) {
	t.Parallel()

	Convey("Config", t, func() {
		ctx := context.Background()

		Convey("sample with defaults", func() {
			cfg, err := Parse(ctx, "cq.yaml", []byte(sample))
			So(err, ShouldBeNil)
			So(cfg.Projects, ShouldHaveLength, 1)
			p := cfg.Project("chromium")
			So(p, ShouldNotBeNil)
			So(cfg.Project("nope"), ShouldBeNil)

			So(p.MaxCommitBurst, ShouldEqual, DefaultMaxCommitBurst)
			So(p.CommitBurstDelay, ShouldEqual, DefaultCommitBurstDelay)
			So(p.Checkout, ShouldResemble, Checkout{
				Path:      "src",
				Branch:    DefaultBranch,
				ViewVCURL: "http://src.chromium.org/viewvc/chrome?view=rev&revision=",
			})
			So(p.Presubmit.Command, ShouldResemble, []string{"python", "presubmit_shim.py"})
			So(p.Presubmit.Timeout, ShouldEqual, DefaultPresubmitTimeout)
			So(p.TryServer.Builders, ShouldResemble, []Builder{
				{Name: "linux", Tests: []string{"base_unittests", "browser_tests"}},
				{Name: "mac"},
			})
			So(p.TryServer.LostTryJobDelay, ShouldEqual, 30*time.Minute)
			So(p.TryServer.MaxResends, ShouldEqual, DefaultMaxTryResends)
		})

		Convey("Load", func() {
			path := filepath.Join(t.TempDir(), "cq.yaml")
			So(os.WriteFile(path, []byte(sample), 0644), ShouldBeNil)
			cfg, err := Load(ctx, path)
			So(err, ShouldBeNil)
			So(cfg.Projects[0].Name, ShouldEqual, "chromium")

			_, err = Load(ctx, path+".missing")
			So(err, ShouldErrLike, "reading")
		})

		Convey("unknown fields are rejected", func() {
			_, err := Parse(ctx, "cq.yaml", []byte("projects:\n- name: x\n  bogus: 1\n"))
			So(err, ShouldErrLike, "parsing cq.yaml")
		})

		Convey("validation", func() {
			errs := func(cfg string) errors.MultiError {
				_, err := Parse(ctx, "cq.yaml", []byte(cfg))
				So(err, ShouldNotBeNil)
				return errors.MultiError(err.(*validation.Error).Errors)
			}

			Convey("no project", func() {
				So(errs("projects: []\n"), ShouldContainErr, "no project")
			})

			Convey("missing fields", func() {
				e := errs("projects:\n- try_server: {}\n")
				So(e, ShouldContainErr, "name is required")
				So(e, ShouldContainErr, "review_url is required")
				So(e, ShouldContainErr, "review_email is required")
				So(e, ShouldContainErr, "url is required")
				So(e, ShouldContainErr, "no builder")
			})

			Convey("duplicates", func() {
				e := errs(`
projects:
- {name: a, review_url: u, review_email: e}
- name: a
  review_url: u
  review_email: e
  try_server:
    url: u
    builders: [{name: linux}, {name: linux}]
`)
				So(e, ShouldContainErr, `project "a" is defined twice`)
				So(e, ShouldContainErr, `builder "linux" is defined twice`)
			})

			Convey("bad regexps", func() {
				e := errs(`
projects:
- name: a
  review_url: u
  review_email: e
  project_bases: ['(']
  reviewers: {whitelist: ['[']}
  presubmit: {}
`)
				So(e, ShouldContainErr, `invalid regexp "("`)
				So(e, ShouldContainErr, `invalid regexp "["`)
				So(e, ShouldContainErr, "command is required")
			})
		})
	})
}
