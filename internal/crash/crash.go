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

// Package crash collects unexpected errors so that they are noticed even
// though the commit queue keeps running.
package crash

import (
	"context"
	"sync"

	"cloud.google.com/go/errorreporting"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
)

// Reporter receives errors the commit queue recovered from.
type Reporter interface {
	Report(ctx context.Context, err error)
	Close() error
}

// Log logs the error with its annotated stack.
type Log struct{}

// Report implements Reporter.
func (Log) Report(ctx context.Context, err error) {
	errors.Log(ctx, err)
}

// Close implements Reporter.
func (Log) Close() error { return nil }

// ErrorReporting sends errors to Cloud Error Reporting and logs them.
type ErrorReporting struct {
	client *errorreporting.Client
}

// NewErrorReporting creates a Cloud Error Reporting client for project.
func NewErrorReporting(ctx context.Context, project, service string) (*ErrorReporting, error) {
	client, err := errorreporting.NewClient(ctx, project, errorreporting.Config{
		ServiceName: service,
		OnError: func(err error) {
			logging.Errorf(ctx, "failed to report error: %s", err)
		},
	})
	if err != nil {
		return nil, errors.Annotate(err, "creating error reporting client").Err()
	}
	return &ErrorReporting{client: client}, nil
}

// Report implements Reporter.
func (r *ErrorReporting) Report(ctx context.Context, err error) {
	errors.Log(ctx, err)
	r.client.Report(errorreporting.Entry{Error: err})
}

// Close implements Reporter.
func (r *ErrorReporting) Close() error {
	return r.client.Close()
}

// Memory keeps reported errors for tests.
type Memory struct {
	m    sync.Mutex
	errs []error
}

// Report implements Reporter.
func (r *Memory) Report(ctx context.Context, err error) {
	r.m.Lock()
	defer r.m.Unlock()
	r.errs = append(r.errs, err)
}

// Close implements Reporter.
func (r *Memory) Close() error { return nil }

// Errors returns the reported errors.
func (r *Memory) Errors() []error {
	r.m.Lock()
	defer r.m.Unlock()
	return append([]error(nil), r.errs...)
}
