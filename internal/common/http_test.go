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

package common

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/clock/testclock"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"
)

func TestHTTP(t *testing.T) {
	t.Parallel()

	Convey("HTTP helpers", t, func() {
		ctx, tc := testclock.UseTime(context.Background(), testclock.TestRecentTimeUTC)
		tc.SetTimerCallback(func(d time.Duration, t clock.Timer) { tc.Add(d) })

		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&hits, 1)
			switch r.URL.Path {
			case "/json":
				w.Write([]byte(`{"a": 1}`))
			case "/form":
				body, _ := io.ReadAll(r.Body)
				w.Write([]byte(r.Header.Get("X-Extra") + ":" + string(body)))
			case "/flaky":
				if n == 1 {
					http.Error(w, "oops", http.StatusInternalServerError)
					return
				}
				w.Write([]byte("ok"))
			case "/busy":
				if n == 1 {
					http.Error(w, "later", http.StatusTooManyRequests)
					return
				}
				w.Write([]byte("ok"))
			case "/broken":
				http.Error(w, "oops", http.StatusInternalServerError)
			default:
				http.Error(w, "nope", http.StatusNotFound)
			}
		}))
		defer srv.Close()

		Convey("GetJSON", func() {
			var out struct{ A int }
			So(GetJSON(ctx, srv.Client(), "get", srv.URL+"/json", &out), ShouldBeNil)
			So(out.A, ShouldEqual, 1)
		})

		Convey("PostForm", func() {
			bs, err := PostForm(ctx, srv.Client(), "post", srv.URL+"/form", url.Values{"k": {"v"}}, map[string]string{"X-Extra": "x"})
			So(err, ShouldBeNil)
			So(string(bs), ShouldEqual, "x:k=v")
		})

		Convey("4xx is not retried", func() {
			_, err := Get(ctx, srv.Client(), "get", srv.URL+"/missing")
			So(err, ShouldErrLike, "Not Found")
			So(IsHTTPError(err), ShouldBeTrue)
			So(atomic.LoadInt32(&hits), ShouldEqual, 1)
		})

		Convey("5xx GET is retried", func() {
			bs, err := Get(ctx, srv.Client(), "get", srv.URL+"/flaky")
			So(err, ShouldBeNil)
			So(string(bs), ShouldEqual, "ok")
			So(atomic.LoadInt32(&hits), ShouldEqual, 2)
		})

		Convey("5xx POST is sent once", func() {
			_, err := PostForm(ctx, srv.Client(), "post", srv.URL+"/broken", url.Values{"message": {"hi"}}, nil)
			So(err, ShouldErrLike, "Internal Server Error")
			So(IsHTTPError(err), ShouldBeTrue)
			So(atomic.LoadInt32(&hits), ShouldEqual, 1)
		})

		Convey("429 POST is retried", func() {
			bs, err := PostForm(ctx, srv.Client(), "post", srv.URL+"/busy", url.Values{"message": {"hi"}}, nil)
			So(err, ShouldBeNil)
			So(string(bs), ShouldEqual, "ok")
			So(atomic.LoadInt32(&hits), ShouldEqual, 2)
		})
	})

	Convey("JoinURL", t, func() {
		So(JoinURL("http://a/", "/b"), ShouldEqual, "http://a/b")
		So(JoinURL("http://a", "b"), ShouldEqual, "http://a/b")
	})
}
