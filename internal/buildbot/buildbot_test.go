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

package buildbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"
)

func TestOutcome(t *testing.T) {
	t.Parallel()

	Convey("Outcome", t, func() {
		var o Outcome
		So(json.Unmarshal([]byte(`null`), &o), ShouldBeNil)
		So(o.Known, ShouldBeFalse)

		So(json.Unmarshal([]byte(`2`), &o), ShouldBeNil)
		So(o, ShouldResemble, Done(Failure))
		So(o.Failed(), ShouldBeTrue)

		So(json.Unmarshal([]byte(`[1, ["warnings"]]`), &o), ShouldBeNil)
		So(o.Passed(), ShouldBeTrue)

		So(json.Unmarshal([]byte(`[null, []]`), &o), ShouldBeNil)
		So(o.Known, ShouldBeFalse)
		So(o.Passed() || o.Failed(), ShouldBeFalse)

		So(json.Unmarshal([]byte(`"x"`), &o), ShouldErrLike, "bad result")

		bs, err := json.Marshal(Done(Skipped))
		So(err, ShouldBeNil)
		So(string(bs), ShouldEqual, "[3]")
	})

	Convey("ParseRevision", t, func() {
		So(ParseRevision("src@123"), ShouldEqual, 123)
		So(ParseRevision("42"), ShouldEqual, 42)
		So(ParseRevision("deadbeef"), ShouldEqual, 0)
	})

	Convey("BuilderTests", t, func() {
		So(BuilderTests{Builder: "linux", Tests: []string{"a", "b"}}.String(), ShouldEqual, "linux:a,b")
		So(BuilderTests{Builder: "mac"}.String(), ShouldEqual, "mac")
	})
}

func TestHTTPClient(t *testing.T) {
	t.Parallel()

	Convey("HTTP client", t, func() {
		ctx := context.Background()
		var form map[string][]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("filter") != "1" && r.Method == http.MethodGet {
				http.Error(w, "no filter", http.StatusBadRequest)
				return
			}
			switch r.URL.Path {
			case "/json/builders/":
				w.Write([]byte(`{"linux": {"cachedBuilds": [0, 1], "pendingBuilds": 2}}`))
			case "/json/builders/linux/builds/_all":
				w.Write([]byte(`{
					"1": {"reason": "42-23", "sourceStamp": {"revision": "src@123"},
					      "steps": [{"name": "update", "results": [0, []]}], "results": 0},
					"0": {"reason": "other", "sourceStamp": {"revision": "src@120"},
					      "steps": [{"name": "update", "results": [null, []]}]}
				}`))
			case "/json/builders/linux/builds/":
				if r.URL.Query()["select"][0] != "1" {
					http.Error(w, "bad select", http.StatusBadRequest)
					return
				}
				w.Write([]byte(`{"1": {"reason": "42-23", "results": 2}}`))
			case "/json/builders/linux/pendingBuilds":
				w.Write([]byte(`[{"reason": "42-23", "source": {"revision": "src@123"}}]`))
			case "/send_try_patch":
				r.ParseForm()
				form = r.PostForm
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()
		c := New(srv.URL, srv.Client())

		Convey("Builders", func() {
			b, err := c.Builders(ctx, []string{"linux"})
			So(err, ShouldBeNil)
			So(b["linux"], ShouldResemble, &BuilderSummary{CachedBuilds: []int{0, 1}, PendingBuilds: 2})
		})

		Convey("AllBuilds", func() {
			bs, err := c.AllBuilds(ctx, "linux")
			So(err, ShouldBeNil)
			So(bs, ShouldHaveLength, 2)
			So(bs[0].Number, ShouldEqual, 0)
			So(bs[0].Complete(), ShouldBeFalse)
			So(bs[1].Number, ShouldEqual, 1)
			So(bs[1].Complete(), ShouldBeTrue)
			So(bs[1].Revision(), ShouldEqual, 123)
			So(bs[1].Steps[0].Results.Passed(), ShouldBeTrue)
		})

		Convey("Builds", func() {
			bs, err := c.Builds(ctx, "linux", []int{1})
			So(err, ShouldBeNil)
			So(bs, ShouldHaveLength, 1)
			So(bs[0].Results.Failed(), ShouldBeTrue)
		})

		Convey("PendingBuilds", func() {
			ps, err := c.PendingBuilds(ctx, "linux")
			So(err, ShouldBeNil)
			So(ps[0].Reason, ShouldEqual, "42-23")
		})

		Convey("SendTryJob", func() {
			err := c.SendTryJob(ctx, &TryRequest{
				Name:     "42-23",
				Issue:    42,
				Patchset: 23,
				Revision: "src@123",
				Clobber:  true,
				Bots: []BuilderTests{
					{Builder: "linux", Tests: []string{"test1", "test2"}},
					{Builder: "mac"},
				},
			})
			So(err, ShouldBeNil)
			So(form["bot"], ShouldResemble, []string{"linux:test1,test2", "mac"})
			So(form["clobber"], ShouldResemble, []string{"true"})
			So(form["issue"], ShouldResemble, []string{"42"})
		})
	})
}
