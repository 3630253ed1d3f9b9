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

// Package presubmit runs the project's presubmit checks on the patched
// checkout.
package presubmit

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/system/environ"

	"go.chromium.org/commitqueue/internal/verification"
)

// Name is the verifier name.
const Name = "presubmit"

// DefaultTimeout is the time limit of a presubmit run.
const DefaultTimeout = 6 * time.Minute

// Verifier runs a presubmit command synchronously in the checkout.
type Verifier struct {
	env     *verification.Env
	command []string
	timeout time.Duration
}

var _ verification.CheckoutVerifier = (*Verifier)(nil)

// New returns a presubmit verifier running command.
//
// command is the executable followed by its fixed arguments. A zero timeout
// means DefaultTimeout.
func New(env *verification.Env, command []string, timeout time.Duration) (*Verifier, error) {
	if len(command) == 0 {
		return nil, errors.Reason("presubmit command is empty").Err()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Verifier{env: env, command: command, timeout: timeout}, nil
}

// Name implements verification.Verifier.
func (v *Verifier) Name() string { return Name }

// RequiresCheckout implements verification.CheckoutVerifier.
func (v *Verifier) RequiresCheckout() {}

// UpdateStatus implements verification.Verifier.
func (v *Verifier) UpdateStatus(ctx context.Context, queue []*verification.Pending) error {
	return nil
}

// Verify implements verification.Verifier.
//
// A failing presubmit is a verdict, not an error: only a command that can't
// be started returns an error.
func (v *Verifier) Verify(ctx context.Context, p *verification.Pending) error {
	logging.Infof(ctx, "Presubmit check for %s", p.PendingName())
	start := clock.Now(ctx)
	v.env.SendStatus(ctx, p, Name, map[string]any{})

	out, code, timedOut, err := v.run(ctx, p)
	if err != nil {
		return errors.Annotate(err, "running presubmit for %s", p.PendingName()).Err()
	}
	duration := clock.Now(ctx).Sub(start)

	if code == 0 && !timedOut {
		p.Verifications.Set(Name, verification.NewStatus(verification.Succeeded, ""))
		v.env.SendStatus(ctx, p, Name, map[string]any{
			"duration": duration.Seconds(),
			"output":   out,
		})
		return nil
	}

	msg := fmt.Sprintf("Presubmit check for %s failed and returned exit status %d.\n", p.PendingName(), code)
	if timedOut {
		msg += fmt.Sprintf(
			"The presubmit check was hung. It took %2.1f seconds to execute and the time limit is %2.1f seconds.\n",
			duration.Seconds(), v.timeout.Seconds())
	}
	msg += "\n" + out
	p.Verifications.Set(Name, verification.NewStatus(verification.Failed, msg))
	v.env.SendStatus(ctx, p, Name, map[string]any{
		"duration":  duration.Seconds(),
		"output":    out,
		"return":    code,
		"timed_out": timedOut,
	})
	return nil
}

func (v *Verifier) args(ctx context.Context, p *verification.Pending) []string {
	args := append([]string(nil), v.command[1:]...)
	args = append(args,
		"--commit",
		"--author", p.Owner,
		"--issue", strconv.FormatInt(p.Issue, 10),
		"--patchset", strconv.FormatInt(p.Patchset, 10),
		"--name", p.PendingName(),
		"--description", p.Description,
		"--rietveld_url", v.env.Review.URL(),
	)
	if logging.IsLogging(ctx, logging.Debug) {
		args = append(args, "--verbose")
	}
	return append(args, p.Files...)
}

// run executes the command, returning its combined output and exit code.
func (v *Verifier) run(ctx context.Context, p *verification.Pending) (out string, code int, timedOut bool, err error) {
	ctx, cancel := clock.WithTimeout(ctx, v.timeout)
	defer cancel()

	env := environ.System()
	// No need to notify maintainers about crashes in presubmit scripts.
	env.Set("NO_BREAKPAD", "1")

	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, v.command[0], v.args(ctx, p)...)
	cmd.Dir = v.env.Checkout.ProjectPath()
	cmd.Env = env.Sorted()
	// The credentials are never passed on the command line.
	cmd.Stdin = bytes.NewBufferString(v.env.Review.Email() + "\n")
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	cmd.WaitDelay = time.Second

	runErr := cmd.Run()
	timedOut = ctx.Err() == context.DeadlineExceeded
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		code = exitErr.ExitCode()
	case timedOut:
		code = -1
	default:
		return "", 0, false, runErr
	}
	return buf.String(), code, timedOut, nil
}
