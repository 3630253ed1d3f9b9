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

package rietveld

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestIssue(t *testing.T) {
	t.Parallel()

	Convey("Issue", t, func() {
		i := &Issue{
			Description: "foo\r\nbar",
			Reviewers:   []string{"a@x", "b@x", "c@x", "bot@x"},
			Patchsets:   []int64{1, 5},
			Messages: []Message{
				{Sender: "a@x", Approval: true},
				{Sender: "c@x", Approval: true},
				{Sender: "b@x"},
			},
		}

		So(i.LastPatchset(), ShouldEqual, 5)
		So((&Issue{}).LastPatchset(), ShouldEqual, 0)
		So(i.NormalizedDescription(), ShouldEqual, "foo\nbar")
		So(i.IsApprover("a@x"), ShouldBeTrue)
		So(i.IsApprover("b@x"), ShouldBeFalse)

		Convey("DriveBys", func() {
			So(i.DriveBys([]string{"a@x"}, "bot@x"), ShouldResemble, []string{"b@x"})
			So(i.DriveBys([]string{"a@x", "b@x"}, "bot@x"), ShouldBeEmpty)
			So(i.DriveBys(nil), ShouldResemble, []string{"b@x", "bot@x"})
		})
	})
}
