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

package reviewerlgtm

import (
	"context"
	"encoding/json"
	"testing"

	"go.chromium.org/luci/common/errors"

	"go.chromium.org/commitqueue/internal/model"
	"go.chromium.org/commitqueue/internal/rietveld"
	"go.chromium.org/commitqueue/internal/rietveld/rietveldfake"
	"go.chromium.org/commitqueue/internal/verification"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"
)

func TestReviewerLgtm(t *testing.T) {
	t.Parallel()

	Convey("ReviewerLgtm", t, func() {
		ctx := context.Background()
		review := rietveldfake.New()
		v, err := New(review, []string{`.*@chromium\.org`}, []string{`evil@chromium\.org`})
		So(err, ShouldBeNil)

		issue := &rietveld.Issue{
			Issue:     42,
			Owner:     "owner@chromium.org",
			Reviewers: []string{"a@chromium.org"},
			Patchsets: []int64{23},
			Commit:    true,
			Messages:  []rietveld.Message{{Sender: "a@chromium.org", Approval: true}},
		}
		review.AddIssue(issue)
		p := &verification.Pending{
			Issue:     42,
			Patchset:  23,
			Owner:     "owner@chromium.org",
			Reviewers: []string{"a@chromium.org"},
			Messages:  []verification.Message{{Sender: "a@chromium.org", Approval: true}},
		}
		state := func() verification.State { return p.Verifications.Get(Name).State() }
		message := func() string { return p.Verifications.Get(Name).ErrorMessage() }

		Convey("approved", func() {
			So(v.Verify(ctx, p), ShouldBeNil)
			So(state(), ShouldEqual, verification.Succeeded)
			So(p.Verifications.Get(Name).(*Status).Approvers, ShouldResemble, []string{"a@chromium.org"})
		})

		Convey("no reviewer", func() {
			p.Reviewers = nil
			So(v.Verify(ctx, p), ShouldBeNil)
			So(state(), ShouldEqual, verification.Failed)
			So(message(), ShouldEqual, NoReviewer)
		})

		Convey("no comment", func() {
			p.Messages = nil
			So(v.Verify(ctx, p), ShouldBeNil)
			So(message(), ShouldEqual, NoComment)
		})

		Convey("owner and blacklisted approvals don't count", func() {
			p.Messages = []verification.Message{
				{Sender: "owner@chromium.org", Approval: true},
				{Sender: "evil@chromium.org", Approval: true},
				{Sender: "a@example.com", Approval: true},
				{Sender: "a@chromium.org"},
			}
			So(v.Verify(ctx, p), ShouldBeNil)
			So(state(), ShouldEqual, verification.Failed)
			So(message(), ShouldEqual, NoLGTM)
		})

		Convey("TBR from a committer", func() {
			p.Reviewers = nil
			p.Description = "Fix it.\nTBR=a@chromium.org\n"
			So(v.Verify(ctx, p), ShouldBeNil)
			So(state(), ShouldEqual, verification.Succeeded)

			Convey("but not from an outsider", func() {
				p.Owner = "someone@example.com"
				So(v.Verify(ctx, p), ShouldBeNil)
				So(message(), ShouldEqual, NoReviewer)
			})
		})

		Convey("drive-by", func() {
			So(v.Verify(ctx, p), ShouldBeNil)
			So(v.UpdateStatus(ctx, []*verification.Pending{p}), ShouldBeNil)
			So(state(), ShouldEqual, verification.Succeeded)

			issue.Reviewers = append(issue.Reviewers, "b@chromium.org", review.Email())
			So(v.UpdateStatus(ctx, []*verification.Pending{p}), ShouldBeNil)
			So(state(), ShouldEqual, verification.Failed)
			So(message(), ShouldEqual, "List of reviewers changed. b@chromium.org did a drive-by without LGTM'ing!")
			So(p.Reviewers, ShouldResemble, issue.Reviewers)

			Convey("then approved", func() {
				issue.Messages = append(issue.Messages, rietveld.Message{Sender: "b@chromium.org", Approval: true})
				So(v.UpdateStatus(ctx, []*verification.Pending{p}), ShouldBeNil)
				So(state(), ShouldEqual, verification.Succeeded)
				So(message(), ShouldEqual, "")
			})
		})

		Convey("late approval", func() {
			p.Messages = []verification.Message{{Sender: "a@chromium.org"}}
			So(v.Verify(ctx, p), ShouldBeNil)
			So(state(), ShouldEqual, verification.Failed)
			So(v.UpdateStatus(ctx, []*verification.Pending{p}), ShouldBeNil)
			So(state(), ShouldEqual, verification.Succeeded)
		})

		Convey("commits not verified yet are left alone", func() {
			other := &verification.Pending{Issue: 7, Patchset: 1}
			So(v.UpdateStatus(ctx, []*verification.Pending{other}), ShouldBeNil)
			So(other.Verifications.Len(), ShouldEqual, 0)
		})

		Convey("fetch errors are returned", func() {
			So(v.Verify(ctx, p), ShouldBeNil)
			review.FailOn("issue_properties", errors.New("boom"))
			err := v.UpdateStatus(ctx, []*verification.Pending{p})
			So(err, ShouldErrLike, "refreshing reviewers of 42-23")
			So(state(), ShouldEqual, verification.Succeeded)
		})

		Convey("status survives persistence", func() {
			So(v.Verify(ctx, p), ShouldBeNil)
			raw, err := json.Marshal(p)
			So(err, ShouldBeNil)
			back, err := model.Decode(raw)
			So(err, ShouldBeNil)
			s := back.(*verification.Pending).Verifications.Get(Name).(*Status)
			So(s.Reviewers, ShouldResemble, []string{"a@chromium.org"})
			So(s.State(), ShouldEqual, verification.Succeeded)
		})

		Convey("bad regexp", func() {
			_, err := New(review, []string{"("}, nil)
			So(err, ShouldErrLike, "whitelist")
		})
	})
}
