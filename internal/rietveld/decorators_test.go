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

package rietveld_test

import (
	"context"
	"testing"

	"go.chromium.org/commitqueue/internal/rietveld"
	"go.chromium.org/commitqueue/internal/rietveld/rietveldfake"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDecorators(t *testing.T) {
	t.Parallel()

	Convey("Decorators", t, func() {
		ctx := context.Background()
		f := rietveldfake.New()
		f.AddIssue(&rietveld.Issue{Issue: 1, Patchsets: []int64{1}, Commit: true})
		f.AddIssue(&rietveld.Issue{Issue: 2, Patchsets: []int64{1}, Commit: true})
		f.AddIssue(&rietveld.Issue{Issue: 3, Patchsets: []int64{1}})

		Convey("ReadOnly drops mutations", func() {
			r := rietveld.ReadOnly(f, 0)
			So(r.AddComment(ctx, 1, "x"), ShouldBeNil)
			So(r.SetFlag(ctx, 1, 1, "commit", "False"), ShouldBeNil)
			So(r.CloseIssue(ctx, 1), ShouldBeNil)
			So(r.UpdateDescription(ctx, 1, "d"), ShouldBeNil)
			So(f.Calls(), ShouldBeEmpty)
			issues, err := r.PendingIssues(ctx)
			So(err, ShouldBeNil)
			So(issues, ShouldResemble, []int64{1, 2})
		})

		Convey("ReadOnly with an issue filter", func() {
			issues, err := rietveld.ReadOnly(f, 2).PendingIssues(ctx)
			So(err, ShouldBeNil)
			So(issues, ShouldResemble, []int64{2})

			issues, err = rietveld.ReadOnly(f, 3).PendingIssues(ctx)
			So(err, ShouldBeNil)
			So(issues, ShouldBeEmpty)
		})

		Convey("OnlyIssue fakes the commit flag", func() {
			o := rietveld.OnlyIssue(f, 3)
			issues, err := o.PendingIssues(ctx)
			So(err, ShouldBeNil)
			So(issues, ShouldResemble, []int64{3})
			props, err := o.IssueProperties(ctx, 3, false)
			So(err, ShouldBeNil)
			So(props.Commit, ShouldBeTrue)

			So(o.SetFlag(ctx, 3, 1, "commit", "False"), ShouldBeNil)
			issues, err = o.PendingIssues(ctx)
			So(err, ShouldBeNil)
			So(issues, ShouldBeEmpty)
			So(f.Calls(), ShouldBeEmpty)
		})
	})
}
