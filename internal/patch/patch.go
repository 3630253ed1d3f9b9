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

// Package patch models a patchset downloaded from the code review server.
package patch

import (
	"fmt"
	"path"
	"strings"

	"go.chromium.org/luci/common/errors"
)

// FilePatch is the change to a single file.
type FilePatch struct {
	// Filename is relative to the checkout root once a relpath is applied.
	Filename string
	// Relpath is the directory Diff's own paths are relative to.
	Relpath string
	// Diff is the unified diff of the file, including its header. Its paths
	// are not rewritten by SetRelpath.
	Diff string
	// IsDelete is true when the file is removed.
	IsDelete bool
	// IsBinary is true when the diff can't be represented as text.
	IsBinary bool
}

func (f *FilePatch) String() string {
	switch {
	case f.IsDelete:
		return fmt.Sprintf("delete(%s)", f.Filename)
	case f.IsBinary:
		return fmt.Sprintf("binary(%s)", f.Filename)
	default:
		return fmt.Sprintf("diff(%s)", f.Filename)
	}
}

// Set is an ordered list of file patches.
type Set struct {
	Patches []*FilePatch
}

// Filenames returns the files touched by the set, in order.
func (s *Set) Filenames() []string {
	out := make([]string, len(s.Patches))
	for i, p := range s.Patches {
		out[i] = p.Filename
	}
	return out
}

// SetRelpath moves every file under relpath.
func (s *Set) SetRelpath(relpath string) {
	if relpath == "" {
		return
	}
	for _, p := range s.Patches {
		p.Filename = path.Join(relpath, p.Filename)
		p.Relpath = path.Join(relpath, p.Relpath)
	}
}

// String is used by fakes to record which set was applied.
func (s *Set) String() string {
	parts := make([]string, len(s.Patches))
	for i, p := range s.Patches {
		parts[i] = p.String()
	}
	return "PatchSet[" + strings.Join(parts, ", ") + "]"
}

const indexPrefix = "Index: "

// ParseSVN splits a svn-style multi-file diff, as served by the review
// server's raw download endpoint, into one FilePatch per file.
//
// Returns nil for a blank diff.
func ParseSVN(diff string) (*Set, error) {
	if strings.TrimSpace(diff) == "" {
		return nil, nil
	}
	s := &Set{}
	var cur *FilePatch
	var body strings.Builder
	flush := func() {
		if cur == nil {
			return
		}
		cur.Diff = body.String()
		if strings.Contains(cur.Diff, "Cannot display: file marked as a binary type.") ||
			strings.Contains(cur.Diff, "GIT binary patch") {
			cur.IsBinary = true
		}
		if strings.Contains(cur.Diff, "\n+++ /dev/null") || strings.Contains(cur.Diff, "(deleted)") {
			cur.IsDelete = true
		}
		s.Patches = append(s.Patches, cur)
		body.Reset()
	}
	for _, line := range strings.SplitAfter(diff, "\n") {
		if strings.HasPrefix(line, indexPrefix) {
			flush()
			name := strings.TrimSpace(strings.TrimPrefix(line, indexPrefix))
			if name == "" {
				return nil, errors.Reason("empty filename in diff header %q", line).Err()
			}
			cur = &FilePatch{Filename: name}
		}
		if cur == nil {
			if strings.TrimSpace(line) != "" {
				return nil, errors.Reason("unexpected content before the first file header: %q", line).Err()
			}
			continue
		}
		body.WriteString(line)
	}
	flush()
	return s, nil
}
