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

package treestatus

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.chromium.org/commitqueue/internal/verification"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"
)

func serve(state string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/current" || r.URL.Query().Get("format") != "json" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"general_state": %q, "message": "whatever"}`, state)
	}))
}

func TestTreeStatus(t *testing.T) {
	t.Parallel()

	Convey("Tree status", t, func() {
		ctx := context.Background()
		p := &verification.Pending{Issue: 42, Patchset: 23, Description: "Fix it"}

		Convey("always succeeds", func() {
			v := New("http://unused", http.DefaultClient)
			So(v.Verify(ctx, p), ShouldBeNil)
			So(p.State(), ShouldEqual, verification.Succeeded)
			So(v.UpdateStatus(ctx, []*verification.Pending{p}), ShouldBeNil)
		})

		Convey("open", func() {
			srv := serve("open")
			defer srv.Close()
			v := New(srv.URL+"/", srv.Client())
			s, err := v.Fetch(ctx)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, Open)
			So(v.Postpone(ctx, p), ShouldBeFalse)
		})

		Convey("throttled", func() {
			srv := serve("throttled")
			defer srv.Close()
			So(New(srv.URL, srv.Client()).Postpone(ctx, p), ShouldBeFalse)
		})

		Convey("closed", func() {
			srv := serve("closed")
			defer srv.Close()
			v := New(srv.URL, srv.Client())
			So(v.Postpone(ctx, p), ShouldBeTrue)

			Convey("unless tree checks are disabled", func() {
				p.Description = "Fix it\nNOTREECHECKS=true\n"
				So(v.Postpone(ctx, p), ShouldBeFalse)
			})
		})

		Convey("fetch errors postpone", func() {
			srv := serve("open")
			defer srv.Close()
			v := New(srv.URL+"/nope", srv.Client())
			_, err := v.Fetch(ctx)
			So(err, ShouldErrLike, "fetching tree status")
			So(v.Postpone(ctx, p), ShouldBeTrue)
		})
	})
}
