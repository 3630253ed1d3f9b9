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

package checkout

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/commitqueue/internal/patch"
)

// Git is a git working copy tracking a single remote branch.
//
// Revisions are the number of first-parent commits of the branch, so they
// increase monotonically like the svn revisions the try server expects.
type Git struct {
	// Path is the working copy root.
	Path string
	// Remote is the remote name, "origin" if empty.
	Remote string
	// Branch is the branch to land on, "main" if empty.
	Branch string
	// ViewVC is the URL prefix to browse a revision, optional.
	ViewVC string
}

var _ Checkout = (*Git)(nil)

func (g *Git) remote() string {
	if g.Remote == "" {
		return "origin"
	}
	return g.Remote
}

func (g *Git) branch() string {
	if g.Branch == "" {
		return "main"
	}
	return g.Branch
}

func (g *Git) upstream() string { return g.remote() + "/" + g.branch() }

// ProjectPath implements Checkout.
func (g *Git) ProjectPath() string { return g.Path }

// ViewVCURL implements Checkout.
func (g *Git) ViewVCURL() string { return g.ViewVC }

// Prepare implements Checkout.
func (g *Git) Prepare(ctx context.Context, revision int64) (int64, error) {
	if _, err := g.git(ctx, nil, "fetch", g.remote()); err != nil {
		return 0, err
	}
	if _, err := g.git(ctx, nil, "reset", "--hard", "-q"); err != nil {
		return 0, err
	}
	if _, err := g.git(ctx, nil, "clean", "-fdxq"); err != nil {
		return 0, err
	}
	target := g.upstream()
	if revision != 0 {
		out, err := g.git(ctx, nil, "rev-list", "--first-parent", "--reverse", g.upstream())
		if err != nil {
			return 0, err
		}
		commits := strings.Fields(out)
		if revision < 0 || revision > int64(len(commits)) {
			return 0, errors.Reason("revision %d is out of range (head is %d)", revision, len(commits)).Err()
		}
		target = commits[revision-1]
	}
	if _, err := g.git(ctx, nil, "checkout", "-q", "-B", "commit-queue", target); err != nil {
		return 0, err
	}
	return g.head(ctx)
}

// ApplyPatch implements Checkout.
func (g *Git) ApplyPatch(ctx context.Context, s *patch.Set) error {
	for _, p := range s.Patches {
		switch {
		case p.IsBinary:
			return &PatchApplicationFailed{Filename: p.Filename, Output: "Binary files are not supported."}
		case p.IsDelete:
			if out, err := g.git(ctx, nil, "rm", "-q", "-f", "--", p.Filename); err != nil {
				return &PatchApplicationFailed{Filename: p.Filename, Output: out}
			}
		default:
			args := []string{"apply", "--index", "-p0", "--whitespace=nowarn"}
			if p.Relpath != "" {
				args = append(args, "--directory="+p.Relpath)
			}
			if out, err := g.git(ctx, []byte(p.Diff), append(args, "-")...); err != nil {
				return &PatchApplicationFailed{Filename: p.Filename, Output: out}
			}
		}
	}
	return nil
}

// Commit implements Checkout.
func (g *Git) Commit(ctx context.Context, message, user string) (int64, error) {
	author := fmt.Sprintf("%s <%s>", user, user)
	if _, err := g.git(ctx, nil, "commit", "-q", "--author", author, "-m", message); err != nil {
		return 0, err
	}
	if _, err := g.git(ctx, nil, "push", g.remote(), "HEAD:refs/heads/"+g.branch()); err != nil {
		return 0, err
	}
	return g.head(ctx)
}

func (g *Git) head(ctx context.Context) (int64, error) {
	out, err := g.git(ctx, nil, "rev-list", "--count", "--first-parent", "HEAD")
	if err != nil {
		return 0, err
	}
	rev, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	return rev, errors.Annotate(err, "parsing revision %q", out).Err()
}

// git runs a git command in the working copy and returns its combined
// output.
func (g *Git) git(ctx context.Context, stdin []byte, args ...string) (string, error) {
	logging.Debugf(ctx, "git %s", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Path
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), errors.Annotate(err, "git %s failed: %s", args[0], out).Err()
	}
	return string(out), nil
}
