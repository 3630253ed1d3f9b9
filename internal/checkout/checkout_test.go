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

package checkout

import (
	"context"
	"testing"

	"go.chromium.org/commitqueue/internal/patch"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"
)

func TestCheckout(t *testing.T) {
	t.Parallel()

	Convey("Fake", t, func() {
		ctx := context.Background()
		f := NewFake()

		rev, err := f.Prepare(ctx, 0)
		So(err, ShouldBeNil)
		So(rev, ShouldEqual, 124)
		rev, err = f.Prepare(ctx, 100)
		So(err, ShouldBeNil)
		So(rev, ShouldEqual, 100)
		So(f.ApplyPatch(ctx, &patch.Set{Patches: []*patch.FilePatch{{Filename: "a"}}}), ShouldBeNil)
		rev, err = f.Commit(ctx, "msg", "me@example.com")
		So(err, ShouldBeNil)
		So(rev, ShouldEqual, 125)
		So(f.Calls(), ShouldResemble, []string{
			"prepare(None)",
			"prepare(100)",
			"apply_patch(PatchSet[diff(a)])",
			`commit("msg", me@example.com)`,
		})
		So(f.Calls(), ShouldBeEmpty)

		Convey("ReadOnly doesn't commit", func() {
			r := ReadOnly(f)
			rev, err := r.Commit(ctx, "msg", "me@example.com")
			So(err, ShouldBeNil)
			So(rev, ShouldEqual, FakeCommitRevision)
			So(f.Calls(), ShouldBeEmpty)
		})
	})

	Convey("PatchApplicationFailed", t, func() {
		So(&PatchApplicationFailed{}, ShouldErrLike, "Failed to apply the patch.")
		So(&PatchApplicationFailed{Filename: "a.cc", Output: "conflict"}, ShouldErrLike, "Failed to apply the patch to a.cc.\nconflict")
	})
}
