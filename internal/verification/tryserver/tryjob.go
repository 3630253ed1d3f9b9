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

package tryserver

import (
	"fmt"
	"strings"
	"time"

	"go.chromium.org/commitqueue/internal/model"
	"go.chromium.org/commitqueue/internal/verification"
)

// NoBuild is the Job.Build value until the job's build is seen.
const NoBuild = -1

// Job is a try job on one builder.
type Job struct {
	Builder  string   `json:"builder"`
	Revision int64    `json:"revision"`
	Tests    []string `json:"tests"`
	Clobber  bool     `json:"clobber"`
	// Name is the reason of the builds running the job.
	Name string `json:"name"`
	// Build is the number of the build running the job, or NoBuild.
	Build   int                `json:"build"`
	Current verification.State `json:"state"`
	// Sent is the last time the job was sent to the try server.
	Sent time.Time `json:"sent"`
	// FailedSteps are the required steps that failed on the last build.
	FailedSteps []string `json:"failed_steps,omitempty"`

	// Retries counts the resends after a failure.
	Retries int `json:"retries"`
	// Resends counts every resend, whatever the reason.
	Resends int `json:"resends"`
	// Lost counts the resends of jobs the try server never started.
	Lost int `json:"lost"`
}

func newJob(builder string, revision int64, tests []string) *Job {
	return &Job{
		Builder:  builder,
		Revision: revision,
		Tests:    append([]string(nil), tests...),
		Build:    NoBuild,
		Current:  verification.Processing,
	}
}

// Status is the state of the try jobs of a pending commit.
type Status struct {
	Jobs    []*Job `json:"try_jobs"`
	Message string `json:"error_message,omitempty"`
	// NoTry is set when the description opted out of try jobs.
	NoTry bool `json:"no_try,omitempty"`
}

var _ verification.Status = (*Status)(nil)

// PersistentType implements model.Persistent.
func (*Status) PersistentType() string { return "TryJobs" }

func init() {
	model.Register("TryJobs", func() model.Persistent { return &Status{} })
}

// State implements verification.Status.
//
// One failed job fails the verification, all jobs must succeed.
func (s *Status) State() verification.State {
	switch {
	case s.NoTry:
		return verification.Succeeded
	case s.Message != "":
		return verification.Failed
	case len(s.Jobs) == 0:
		return verification.Processing
	}
	out := verification.Succeeded
	for _, j := range s.Jobs {
		switch j.Current {
		case verification.Failed:
			return verification.Failed
		case verification.Processing:
			out = verification.Processing
		}
	}
	return out
}

// ErrorMessage implements verification.Status.
func (s *Status) ErrorMessage() string { return s.Message }

// WhyNot implements verification.Status.
func (s *Status) WhyNot() string {
	var waiting []string
	for _, j := range s.Jobs {
		if j.Current == verification.Processing {
			waiting = append(waiting, j.Builder)
		}
	}
	if len(waiting) == 0 {
		return ""
	}
	return fmt.Sprintf("Waiting for try jobs on %s.", strings.Join(waiting, ", "))
}
