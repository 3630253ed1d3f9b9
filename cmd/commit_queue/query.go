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
	"encoding/json"
	"fmt"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/errors"
)

func cmdQuery(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "query -project <name> [flags]",
		ShortDesc: "prints the refreshed queue",
		LongDesc:  "Syncs the queue with the code review server, updates the verifications and prints the queue as JSON. What the processing commits wait for goes to stderr.",
		CommandRun: func() subcommands.CommandRun {
			c := &queryRun{}
			c.init(authOpts)
			return c
		},
	}
}

type queryRun struct {
	commonFlags
}

func (c *queryRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	ctx, p, reporter, err := c.setup(ctx, args)
	if err != nil {
		errors.Log(ctx, err)
		return 1
	}
	defer reporter.Close()

	if err := p.Manager.LookForNewPendingCommit(ctx); err != nil {
		reporter.Report(ctx, err)
	}
	p.Manager.UpdateStatus(ctx)
	for _, why := range p.Manager.WhyNot() {
		fmt.Fprintln(a.GetErr(), why)
	}
	raw, err := json.MarshalIndent(p.Manager.Queue, "", "  ")
	if err == nil {
		fmt.Fprintln(a.GetOut(), string(raw))
		err = p.Save(ctx)
	}
	if err != nil {
		errors.Log(ctx, err)
		return 1
	}
	return 0
}
