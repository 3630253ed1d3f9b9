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

package verification

import (
	"fmt"

	"go.chromium.org/commitqueue/internal/model"
)

// State is the verdict of a verifier on a pending commit.
//
// States are ordered by priority: when aggregating, the highest wins.
type State int

const (
	// Succeeded means the verifier is fine with committing the patch.
	Succeeded State = iota
	// Processing means no decision was made yet.
	Processing
	// Failed means the patch must not be committed.
	Failed
	// Ignored means the patch is not this commit queue's business and must
	// be left alone without comment.
	Ignored
)

func (s State) String() string {
	switch s {
	case Succeeded:
		return "SUCCEEDED"
	case Processing:
		return "PROCESSING"
	case Failed:
		return "FAILED"
	case Ignored:
		return "IGNORED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is the per pending commit state kept by a verifier.
//
// Implementations must be registered with model.Register so that they
// survive a save and load of the queue.
type Status interface {
	model.Persistent
	// State returns the current verdict.
	State() State
	// ErrorMessage explains a Failed state. Empty otherwise.
	ErrorMessage() string
	// WhyNot explains a Processing state, if possible.
	WhyNot() string
}

// SimpleStatus is a Status for verifiers without extra state.
type SimpleStatus struct {
	Current State  `json:"state"`
	Message string `json:"error_message,omitempty"`
}

var _ Status = (*SimpleStatus)(nil)

// NewStatus returns a SimpleStatus in the given state.
func NewStatus(s State, message string) *SimpleStatus {
	return &SimpleStatus{Current: s, Message: message}
}

// PersistentType implements model.Persistent.
func (*SimpleStatus) PersistentType() string { return "SimpleStatus" }

// State implements Status.
func (s *SimpleStatus) State() State { return s.Current }

// ErrorMessage implements Status.
func (s *SimpleStatus) ErrorMessage() string { return s.Message }

// WhyNot implements Status.
func (s *SimpleStatus) WhyNot() string { return "" }

func init() {
	model.Register("SimpleStatus", func() model.Persistent { return &SimpleStatus{Current: Processing} })
}
