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

package crash

import (
	"context"
	"testing"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/logging/memlogger"

	. "github.com/smartystreets/goconvey/convey"
)

func TestReporters(t *testing.T) {
	t.Parallel()

	Convey("Log reporter logs the error", t, func() {
		ctx := memlogger.Use(context.Background())
		Log{}.Report(ctx, errors.New("boom"))
		log := logging.Get(ctx).(*memlogger.MemLogger)
		So(log.HasFunc(func(m *memlogger.LogEntry) bool {
			return m.Level == logging.Error
		}), ShouldBeTrue)
		So(Log{}.Close(), ShouldBeNil)
	})

	Convey("Memory keeps errors", t, func() {
		r := &Memory{}
		r.Report(context.Background(), errors.New("a"))
		r.Report(context.Background(), errors.New("b"))
		So(r.Errors(), ShouldHaveLength, 2)
	})
}
