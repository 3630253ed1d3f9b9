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
	"context"
	"sort"

	"go.chromium.org/luci/common/errors"

	"go.chromium.org/commitqueue/internal/buildbot"
)

// Quality is the merged verdict on a step.
type Quality int

const (
	// Unknown means no build finished the step.
	Unknown Quality = iota
	// Bad means the step failed and never passed.
	Bad
	// Good means the step passed at least once.
	Good
)

func (q Quality) String() string {
	switch q {
	case Bad:
		return "bad"
	case Good:
		return "good"
	}
	return "unknown"
}

// StepsQuality reduces step qualities: any Bad step is Bad, otherwise any
// Good step is Good.
func StepsQuality(steps []Quality) Quality {
	out := Unknown
	for _, q := range steps {
		switch q {
		case Bad:
			return Bad
		case Good:
			out = Good
		}
	}
	return out
}

// StepDB caches the builds of the try server builders.
//
// Complete builds are immutable and never fetched again. Incomplete builds
// are replaced on every fetch. It's shared by every pending commit.
type StepDB struct {
	client buildbot.Client
	builds map[string]map[int]*buildbot.Build
}

// NewStepDB returns an empty cache.
func NewStepDB(client buildbot.Client) *StepDB {
	return &StepDB{client: client, builds: map[string]map[int]*buildbot.Build{}}
}

func (db *StepDB) store(builder string, builds []*buildbot.Build) {
	m := db.builds[builder]
	if m == nil {
		m = map[int]*buildbot.Build{}
		db.builds[builder] = m
	}
	for _, b := range builds {
		if old := m[b.Number]; old != nil && old.Complete() {
			continue
		}
		m[b.Number] = b
	}
}

// FetchAll loads every build the builder still has.
func (db *StepDB) FetchAll(ctx context.Context, builder string) error {
	builds, err := db.client.AllBuilds(ctx, builder)
	if err != nil {
		return errors.Annotate(err, "fetching builds of %s", builder).Err()
	}
	db.store(builder, builds)
	return nil
}

// Refresh reloads the given builds, skipping the complete ones.
func (db *StepDB) Refresh(ctx context.Context, builder string, numbers []int) error {
	var stale []int
	for _, n := range numbers {
		if b := db.Build(builder, n); b == nil || !b.Complete() {
			stale = append(stale, n)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	builds, err := db.client.Builds(ctx, builder, stale)
	if err != nil {
		return errors.Annotate(err, "refreshing builds %v of %s", stale, builder).Err()
	}
	db.store(builder, builds)
	return nil
}

// Build returns a cached build, or nil.
func (db *StepDB) Build(builder string, number int) *buildbot.Build {
	return db.builds[builder][number]
}

// Builds returns the cached builds of a builder by increasing number.
func (db *StepDB) Builds(builder string) []*buildbot.Build {
	m := db.builds[builder]
	out := make([]*buildbot.Build, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// RevisionQuality merges the steps of every build of builder at revision
// and returns the number of such builds. Returns nil, 0 if there is none.
func (db *StepDB) RevisionQuality(builder string, revision int64) ([]Quality, int) {
	var steps []Quality
	count := 0
	for _, b := range db.Builds(builder) {
		if b.Revision() != revision {
			continue
		}
		count++
		for i, s := range b.Steps {
			if i == len(steps) {
				steps = append(steps, Unknown)
			}
			switch {
			case s.Results.Passed():
				steps[i] = Good
			case s.Results.Failed() && steps[i] == Unknown:
				steps[i] = Bad
			}
		}
	}
	return steps, count
}

// LastGoodRevision returns the highest revision with a build whose every
// step passed, or 0.
func (db *StepDB) LastGoodRevision(builder string) int64 {
	var best int64
	for _, b := range db.Builds(builder) {
		if rev := b.Revision(); rev > best && allPassed(b) {
			best = rev
		}
	}
	return best
}

func allPassed(b *buildbot.Build) bool {
	if len(b.Steps) == 0 {
		return false
	}
	for _, s := range b.Steps {
		if !s.Results.Passed() {
			return false
		}
	}
	return true
}
