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

package main

import (
	"context"
	"time"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/system/signals"
)

// interruptedExitCode tells the wrapper script to stop restarting the
// commit queue.
const interruptedExitCode = 23

func cmdRun(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "run -project <name> [flags]",
		ShortDesc: "runs the commit queue until interrupted",
		LongDesc: `Polls the code review server for issues with the commit bit set,
verifies them and commits the ones that pass.

Runs in dry-run mode unless -no-dry-run is passed.`,
		CommandRun: func() subcommands.CommandRun {
			c := &runRun{}
			c.init(authOpts)
			c.Flags.DurationVar(&c.pollInterval, "poll-interval", 10*time.Second, "Minimum delay between each polling loop.")
			return c
		},
	}
}

type runRun struct {
	commonFlags
	pollInterval time.Duration
}

func (c *runRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	ctx, p, reporter, err := c.setup(ctx, args)
	if err != nil {
		errors.Log(ctx, err)
		return 1
	}
	defer reporter.Close()

	if c.noDryRun {
		logging.Warningf(ctx, "Running for real")
	} else {
		logging.Infof(ctx, "Running in dry-run mode")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer signals.HandleInterrupt(func() {
		logging.Warningf(ctx, "Interrupted, saving the queue")
		cancel()
	})()

	// Only an interruption stops the loop.
	if err := p.Run(ctx, c.pollInterval); err != nil {
		errors.Log(ctx, err)
		return 1
	}
	return interruptedExitCode
}
