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

// Package common contains helpers shared by the HTTP clients of the commit
// queue.
package common

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry"
	"go.chromium.org/luci/common/retry/transient"
)

// HTTPError is returned when the server replies with an error status.
type HTTPError struct {
	URL  string
	Code int
	Body string
}

func (e *HTTPError) Error() string {
	return "HTTP " + http.StatusText(e.Code) + " from " + e.URL
}

// IsHTTPError returns true if err is an error status returned by a server.
func IsHTTPError(err error) bool {
	var h *HTTPError
	return errors.As(err, &h)
}

// Fetch sends the request built by newReq, retrying transient failures.
//
// newReq is called on every attempt since a request body can be consumed
// only once. 429 responses are transient. Transport errors and 5xx or 408
// responses are transient only for GET and HEAD requests: the server may
// have acted on anything else already.
func Fetch(ctx context.Context, hc *http.Client, op string, newReq func() (*http.Request, error)) ([]byte, error) {
	var body []byte
	err := retry.Retry(ctx, transient.Only(retry.Default), func() error {
		req, err := newReq()
		if err != nil {
			return errors.Annotate(err, "failed to create new request").Err()
		}
		idempotent := req.Method == http.MethodGet || req.Method == http.MethodHead
		resp, err := hc.Do(req)
		if err != nil {
			return tagIf(errors.Annotate(err, "failed to call %s", req.URL), idempotent)
		}
		defer resp.Body.Close()
		bs, err := io.ReadAll(resp.Body)
		if err != nil {
			return tagIf(errors.Annotate(err, "failed to read response body from %s", req.URL), idempotent)
		}
		if code := resp.StatusCode; code >= 400 {
			logging.Errorf(ctx, "received error response when calling %s; response body: %q", req.URL, string(bs))
			ann := errors.Annotate(&HTTPError{URL: req.URL.String(), Code: code, Body: string(bs)}, "%s", op)
			retriable := code == http.StatusRequestTimeout || code >= 500
			return tagIf(ann, code == http.StatusTooManyRequests || (retriable && idempotent))
		}
		body = bs
		return nil
	}, retry.LogCallback(ctx, op))
	return body, err
}

func tagIf(ann *errors.Annotator, isTransient bool) error {
	if isTransient {
		ann = ann.Tag(transient.Tag)
	}
	return ann.Err()
}

// Get fetches a URL.
func Get(ctx context.Context, hc *http.Client, op, u string) ([]byte, error) {
	return Fetch(ctx, hc, op, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
}

// GetJSON fetches a URL and decodes its JSON body into out.
func GetJSON(ctx context.Context, hc *http.Client, op, u string, out any) error {
	bs, err := Get(ctx, hc, op, u)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(bs, out); err != nil {
		return errors.Annotate(err, "failed to unmarshal JSON %q", string(bs)).Err()
	}
	return nil
}

// PostForm posts url encoded values, adding headers to every attempt.
func PostForm(ctx context.Context, hc *http.Client, op, u string, values url.Values, headers map[string]string) ([]byte, error) {
	encoded := values.Encode()
	return Fetch(ctx, hc, op, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
}

// JoinURL appends a path to a base URL, normalizing the slash.
func JoinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
