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

// Package lkgr fetches the last known good revision of a project.
package lkgr

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.chromium.org/luci/common/errors"

	"go.chromium.org/commitqueue/internal/common"
)

// Func returns the last known good revision.
type Func func(ctx context.Context) (int64, error)

// Static returns a Func always returning rev.
func Static(rev int64) Func {
	return func(context.Context) (int64, error) { return rev, nil }
}

// HTTP returns a Func reading the revision as plain text from url, e.g.
// "https://chromium-status.appspot.com/lkgr".
func HTTP(url string, hc *http.Client) Func {
	return func(ctx context.Context) (int64, error) {
		bs, err := common.Get(ctx, hc, "fetching lkgr", url)
		if err != nil {
			return 0, err
		}
		rev, err := strconv.ParseInt(strings.TrimSpace(string(bs)), 10, 64)
		if err != nil {
			return 0, errors.Annotate(err, "bad lkgr %q from %s", string(bs), url).Err()
		}
		return rev, nil
	}
}
