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
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/commitqueue/internal/common"
	"go.chromium.org/commitqueue/internal/patch"
)

// searchPageSize is the number of issues requested per search page.
const searchPageSize = 1000

type httpClient struct {
	url   string
	email string
	hc    *http.Client
}

// New returns a Client talking to the Rietveld instance at serverURL.
//
// hc must already be authenticated as email.
func New(serverURL, email string, hc *http.Client) Client {
	return &httpClient{url: strings.TrimSuffix(serverURL, "/"), email: email, hc: hc}
}

func (c *httpClient) URL() string   { return c.url }
func (c *httpClient) Email() string { return c.email }

// PendingIssues implements Client.
func (c *httpClient) PendingIssues(ctx context.Context) ([]int64, error) {
	var out []int64
	cursor := ""
	for {
		q := url.Values{
			"format":    {"json"},
			"commit":    {"2"},
			"closed":    {"3"},
			"keys_only": {"True"},
			"limit":     {strconv.Itoa(searchPageSize)},
			"order":     {"__key__"},
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var page struct {
			Results []int64 `json:"results"`
			Cursor  string  `json:"cursor"`
		}
		if err := common.GetJSON(ctx, c.hc, "search", c.url+"/search?"+q.Encode(), &page); err != nil {
			return nil, errors.Annotate(err, "failed to search pending issues").Err()
		}
		out = append(out, page.Results...)
		if len(page.Results) < searchPageSize || page.Cursor == "" {
			return out, nil
		}
		cursor = page.Cursor
	}
}

// IssueProperties implements Client.
func (c *httpClient) IssueProperties(ctx context.Context, issue int64, messages bool) (*Issue, error) {
	u := fmt.Sprintf("%s/api/%d", c.url, issue)
	if messages {
		u += "?messages=true"
	}
	out := &Issue{}
	if err := common.GetJSON(ctx, c.hc, "issue_properties", u, out); err != nil {
		return nil, errors.Annotate(err, "failed to fetch issue %d", issue).Err()
	}
	return out, nil
}

// Patch implements Client.
func (c *httpClient) Patch(ctx context.Context, issue, patchset int64) (*patch.Set, error) {
	bs, err := common.Get(ctx, c.hc, "get_patch", PatchURL(c.url, issue, patchset))
	if err != nil {
		return nil, errors.Annotate(err, "failed to download %d/%d", issue, patchset).Err()
	}
	return patch.ParseSVN(string(bs))
}

// PatchURL is the raw diff URL of a patchset.
func PatchURL(serverURL string, issue, patchset int64) string {
	return fmt.Sprintf("%s/download/issue%d_%d.diff", strings.TrimSuffix(serverURL, "/"), issue, patchset)
}

// CloseIssue implements Client.
func (c *httpClient) CloseIssue(ctx context.Context, issue int64) error {
	logging.Infof(ctx, "closing issue %d", issue)
	return c.post(ctx, "close_issue", fmt.Sprintf("/%d/close", issue), url.Values{})
}

// UpdateDescription implements Client.
func (c *httpClient) UpdateDescription(ctx context.Context, issue int64, description string) error {
	logging.Infof(ctx, "updating description of issue %d", issue)
	return c.post(ctx, "update_description", fmt.Sprintf("/%d/description", issue), url.Values{
		"description": {description},
	})
}

// AddComment implements Client.
func (c *httpClient) AddComment(ctx context.Context, issue int64, message string) error {
	logging.Infof(ctx, "commenting on issue %d", issue)
	return c.post(ctx, "add_comment", fmt.Sprintf("/%d/publish", issue), url.Values{
		"message":      {message},
		"message_only": {"True"},
		"send_mail":    {"True"},
		"no_redirect":  {"True"},
	})
}

// SetFlag implements Client.
func (c *httpClient) SetFlag(ctx context.Context, issue, patchset int64, flag, value string) error {
	logging.Infof(ctx, "set_flag(%d, %d, %q, %q)", issue, patchset, flag, value)
	bs, err := c.postRaw(ctx, "set_flag", fmt.Sprintf("/%d/edit_flags", issue), url.Values{
		"last_patchset": {strconv.FormatInt(patchset, 10)},
		flag:            {value},
	})
	if err != nil {
		return err
	}
	if resp := strings.TrimSpace(string(bs)); resp != "OK" {
		return errors.Reason("failed to set flag %s=%s on %d: %q", flag, value, issue, resp).Err()
	}
	return nil
}

func (c *httpClient) post(ctx context.Context, op, path string, values url.Values) error {
	_, err := c.postRaw(ctx, op, path, values)
	return err
}

func (c *httpClient) postRaw(ctx context.Context, op, path string, values url.Values) ([]byte, error) {
	token, err := c.xsrfToken(ctx)
	if err != nil {
		return nil, err
	}
	values.Set("xsrf_token", token)
	bs, err := common.PostForm(ctx, c.hc, op, c.url+path, values, nil)
	return bs, errors.Annotate(err, "%s failed", op).Err()
}

func (c *httpClient) xsrfToken(ctx context.Context) (string, error) {
	bs, err := common.Fetch(ctx, c.hc, "xsrf_token", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/xsrf_token", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Requesting-XSRF-Token", "1")
		return req, nil
	})
	if err != nil {
		return "", errors.Annotate(err, "failed to get xsrf token").Err()
	}
	return strings.TrimSpace(string(bs)), nil
}
