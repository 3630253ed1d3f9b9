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
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/commitqueue/internal/common"
)

type httpClient struct {
	url string
	hc  *http.Client
}

// New returns a Client for the try server at serverURL.
func New(serverURL string, hc *http.Client) Client {
	return &httpClient{url: strings.TrimSuffix(serverURL, "/"), hc: hc}
}

func (c *httpClient) URL() string { return c.url }

func (c *httpClient) jsonURL(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("filter", "1")
	return c.url + "/json/" + path + "?" + q.Encode()
}

// Builders implements Client.
func (c *httpClient) Builders(ctx context.Context, names []string) (map[string]*BuilderSummary, error) {
	out := map[string]*BuilderSummary{}
	if len(names) == 0 {
		return out, nil
	}
	u := c.jsonURL("builders/", url.Values{"select": names})
	if err := common.GetJSON(ctx, c.hc, "builders", u, &out); err != nil {
		return nil, errors.Annotate(err, "failed to fetch builders %q", names).Err()
	}
	return out, nil
}

// AllBuilds implements Client.
func (c *httpClient) AllBuilds(ctx context.Context, builder string) ([]*Build, error) {
	return c.builds(ctx, builder, "_all", nil)
}

// Builds implements Client.
func (c *httpClient) Builds(ctx context.Context, builder string, numbers []int) ([]*Build, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	sel := make([]string, len(numbers))
	for i, n := range numbers {
		sel[i] = strconv.Itoa(n)
	}
	return c.builds(ctx, builder, "", url.Values{"select": sel})
}

func (c *httpClient) builds(ctx context.Context, builder, suffix string, q url.Values) ([]*Build, error) {
	u := c.jsonURL("builders/"+url.PathEscape(builder)+"/builds/"+suffix, q)
	byNumber := map[string]*Build{}
	if err := common.GetJSON(ctx, c.hc, "builds", u, &byNumber); err != nil {
		return nil, errors.Annotate(err, "failed to fetch builds of %s", builder).Err()
	}
	out := make([]*Build, 0, len(byNumber))
	for key, b := range byNumber {
		if b == nil {
			continue
		}
		n, err := strconv.Atoi(key)
		if err != nil {
			logging.Warningf(ctx, "ignoring build %q of %s", key, builder)
			continue
		}
		b.Number = n
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// PendingBuilds implements Client.
func (c *httpClient) PendingBuilds(ctx context.Context, builder string) ([]*PendingBuild, error) {
	var out []*PendingBuild
	u := c.jsonURL("builders/"+url.PathEscape(builder)+"/pendingBuilds", nil)
	if err := common.GetJSON(ctx, c.hc, "pending_builds", u, &out); err != nil {
		return nil, errors.Annotate(err, "failed to fetch pending builds of %s", builder).Err()
	}
	return out, nil
}

// SendTryJob implements Client.
func (c *httpClient) SendTryJob(ctx context.Context, req *TryRequest) error {
	v := url.Values{
		"name":      {req.Name},
		"user":      {req.User},
		"email":     {req.Email},
		"revision":  {req.Revision},
		"issue":     {strconv.FormatInt(req.Issue, 10)},
		"patchset":  {strconv.FormatInt(req.Patchset, 10)},
		"patch_url": {req.PatchURL},
	}
	for _, b := range req.Bots {
		v.Add("bot", b.String())
	}
	if req.Clobber {
		v.Set("clobber", "true")
	}
	for _, e := range req.Extra {
		v.Add("extra", e)
	}
	logging.Infof(ctx, "sending try job %q for %d/%d to %s", req.Name, req.Issue, req.Patchset, c.url)
	_, err := common.PostForm(ctx, c.hc, "send_try_patch", c.url+"/send_try_patch", v, nil)
	return errors.Annotate(err, "failed to send try job %q", req.Name).Err()
}
