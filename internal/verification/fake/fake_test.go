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

package fake

import (
	"context"
	"testing"

	"go.chromium.org/commitqueue/internal/verification"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFake(t *testing.T) {
	t.Parallel()

	Convey("Fake verifiers", t, func() {
		ctx := context.Background()
		p := &verification.Pending{Issue: 1, Patchset: 1}

		Convey("immediate", func() {
			v := New("", verification.Failed)
			So(v.Name(), ShouldEqual, DefaultName)
			So(v.Verify(ctx, p), ShouldBeNil)
			So(p.State(), ShouldEqual, verification.Failed)
			So(p.ErrorMessage(), ShouldEqual, "fake verifier failed")
		})

		Convey("deferred", func() {
			v := NewDeferred("later", verification.Succeeded)
			So(v.Verify(ctx, p), ShouldBeNil)
			So(p.State(), ShouldEqual, verification.Processing)
			So(v.UpdateStatus(ctx, []*verification.Pending{p}), ShouldBeNil)
			So(p.State(), ShouldEqual, verification.Succeeded)
		})

		Convey("deferred leaves other commits alone", func() {
			v := NewDeferred("later", verification.Failed)
			other := &verification.Pending{Issue: 2, Patchset: 1}
			done := &verification.Pending{Issue: 3, Patchset: 1}
			done.Verifications.Set("later", verification.NewStatus(verification.Succeeded, ""))
			So(v.Verify(ctx, p), ShouldBeNil)
			So(v.UpdateStatus(ctx, []*verification.Pending{other, p, done}), ShouldBeNil)
			So(other.Verifications.Has("later"), ShouldBeFalse)
			So(other.Verifications.Len(), ShouldEqual, 0)
			So(done.State(), ShouldEqual, verification.Succeeded)
			So(p.State(), ShouldEqual, verification.Failed)
		})

		Convey("checkout", func() {
			var v verification.Verifier = NewCheckout("co", verification.Succeeded)
			_, ok := v.(verification.CheckoutVerifier)
			So(ok, ShouldBeTrue)
			So(v.Verify(ctx, p), ShouldBeNil)
			So(p.Verifications.Get("co").State(), ShouldEqual, verification.Succeeded)
		})
	})
}
