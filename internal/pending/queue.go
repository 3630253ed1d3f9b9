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

package pending

import (
	"go.chromium.org/commitqueue/internal/model"
	"go.chromium.org/commitqueue/internal/verification"
)

// Queue is the persisted state of the commit queue.
type Queue struct {
	// PendingCommits are the commits being verified, in discovery order.
	PendingCommits []*verification.Pending `json:"pending_commits"`
	// Ignored lists issues that aren't this commit queue's business. They
	// are remembered so that they're not processed on every tick.
	Ignored []int64 `json:"ignored,omitempty"`
}

var _ model.Persistent = (*Queue)(nil)

// PersistentType implements model.Persistent.
func (*Queue) PersistentType() string { return "PendingQueue" }

// MarshalJSON tags the queue with its type.
func (q *Queue) MarshalJSON() ([]byte, error) {
	type raw Queue
	cpy := raw(*q)
	if cpy.PendingCommits == nil {
		cpy.PendingCommits = []*verification.Pending{}
	}
	return model.Tag(q.PersistentType(), &cpy)
}

func init() {
	model.Register("PendingQueue", func() model.Persistent { return &Queue{} })
}

// Get returns the pending commit for issue, or nil.
func (q *Queue) Get(issue int64) *verification.Pending {
	for _, p := range q.PendingCommits {
		if p.Issue == issue {
			return p
		}
	}
	return nil
}

func (q *Queue) contains(p *verification.Pending) bool {
	for _, c := range q.PendingCommits {
		if c == p {
			return true
		}
	}
	return false
}

func (q *Queue) remove(p *verification.Pending) {
	for i, c := range q.PendingCommits {
		if c == p {
			q.PendingCommits = append(q.PendingCommits[:i], q.PendingCommits[i+1:]...)
			return
		}
	}
}

func (q *Queue) isIgnored(issue int64) bool {
	for _, i := range q.Ignored {
		if i == issue {
			return true
		}
	}
	return false
}
