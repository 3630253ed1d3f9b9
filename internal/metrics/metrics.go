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

// Package metrics contains the commit queue metric definitions.
package metrics

import (
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"
)

// Values of the "result" field of Pending.Results.
const (
	ResultCommitted = "committed"
	ResultFailed    = "failed"
	ResultDiscarded = "discarded"
	ResultIgnored   = "ignored"
)

// Values of the "kind" field of TryJobs.Sent.
const (
	KindInitial = "initial"
	KindRetry   = "retry"
	KindLost    = "lost"
	KindManual  = "manual"
)

// Pending contains metrics about pending commits.
var Pending = struct {
	Results metric.Counter
	Count   metric.Int
}{
	Results: metric.NewCounter(
		"commitqueue/pending/results",
		"Number of pending commits removed from the queue, by outcome.",
		nil,

		field.String("project"),
		field.String("result"), // One of the Result* constants.
	),
	Count: metric.NewInt(
		"commitqueue/pending/count",
		"Number of pending commits in the queue.",
		nil,

		field.String("project"),
	),
}

// TryJobs contains metrics about try jobs.
var TryJobs = struct {
	Sent metric.Counter
}{
	Sent: metric.NewCounter(
		"commitqueue/tryjobs/sent",
		"Number of try jobs sent to the try server.",
		nil,

		field.String("builder"),
		field.String("kind"), // One of the Kind* constants.
	),
}
