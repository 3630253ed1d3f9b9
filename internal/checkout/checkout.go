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

// Package checkout abstracts the local source checkout patches are applied
// to and committed from.
package checkout

import (
	"context"
	"fmt"

	"go.chromium.org/commitqueue/internal/patch"
)

// Checkout is a working copy the commit queue can patch and commit.
//
// Calls are never concurrent.
type Checkout interface {
	// ProjectPath is the root directory of the working copy.
	ProjectPath() string
	// Prepare reverts local changes and syncs to revision, or to the head
	// if revision is 0. Returns the revision synced to.
	Prepare(ctx context.Context, revision int64) (int64, error)
	// ApplyPatch applies every file of s to the working copy.
	//
	// Returns a *PatchApplicationFailed if the patch doesn't apply.
	ApplyPatch(ctx context.Context, s *patch.Set) error
	// Commit commits the working copy on behalf of user.
	// Returns the new revision.
	Commit(ctx context.Context, message, user string) (int64, error)
	// ViewVCURL is the URL prefix to browse a committed revision, or "".
	ViewVCURL() string
}

// PatchApplicationFailed is returned when a patch can't be applied.
type PatchApplicationFailed struct {
	// Filename is the file that failed, if known.
	Filename string
	// Output is the output of the failed command.
	Output string
}

func (e *PatchApplicationFailed) Error() string {
	msg := "Failed to apply the patch."
	if e.Filename != "" {
		msg = fmt.Sprintf("Failed to apply the patch to %s.", e.Filename)
	}
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}
