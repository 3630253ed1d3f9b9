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

package lkgr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"
)

func TestLKGR(t *testing.T) {
	t.Parallel()

	Convey("LKGR", t, func() {
		ctx := context.Background()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/lkgr" {
				w.Write([]byte("123\n"))
			} else {
				w.Write([]byte("<html>"))
			}
		}))
		defer srv.Close()
		get := HTTP(srv.URL+"/lkgr", srv.Client())

		Convey("parses the revision", func() {
			rev, err := get(ctx)
			So(err, ShouldBeNil)
			So(rev, ShouldEqual, 123)
		})

		Convey("rejects garbage", func() {
			_, err := HTTP(srv.URL+"/bad", srv.Client())(ctx)
			So(err, ShouldErrLike, "bad lkgr")
		})

		Convey("static", func() {
			rev, err := Static(7)(ctx)
			So(err, ShouldBeNil)
			So(rev, ShouldEqual, 7)
		})
	})
}
