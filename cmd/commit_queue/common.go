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
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/auth/client/authcli"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/commitqueue/internal/config"
	"go.chromium.org/commitqueue/internal/crash"
	"go.chromium.org/commitqueue/internal/project"
)

type commonFlags struct {
	subcommands.CommandRunBase
	authFlags authcli.Flags

	configPath         string
	projectName        string
	workdir            string
	noDryRun           bool
	onlyIssue          int64
	fake               bool
	noTry              bool
	verbose            bool
	statusPasswordFile string
	errorProject       string
}

func (c *commonFlags) init(authOpts auth.Options) {
	c.authFlags.Register(&c.Flags, authOpts)
	c.Flags.StringVar(&c.configPath, "config", "commit_queue.yaml", "Path to the projects configuration.")
	c.Flags.StringVar(&c.projectName, "project", "", "Project to run the commit queue against.")
	c.Flags.StringVar(&c.workdir, "workdir", "workdir", "Directory holding the checkouts and the saved queues.")
	c.Flags.BoolVar(&c.noDryRun, "no-dry-run", false,
		"Run for real instead of the default dry-run mode. WARNING: while the commit queue "+
			"doesn't touch the code review server in dry-run mode, the try server is still used, "+
			"so -only-issue is recommended.")
	c.Flags.Int64Var(&c.onlyIssue, "only-issue", 0,
		"Limits to a single issue. WARNING: it fakes that the issue has the commit bit set, "+
			"so only use an issue you don't mind about.")
	c.Flags.BoolVar(&c.fake, "fake", false, "Run with a fake checkout to speed up testing. Dry-run only.")
	c.Flags.BoolVar(&c.noTry, "no-try", false, "Don't send try jobs.")
	c.Flags.BoolVar(&c.verbose, "verbose", false, "Log debug messages.")
	c.Flags.StringVar(&c.statusPasswordFile, "status-password-file", "",
		"File holding the password of the status dashboard.")
	c.Flags.StringVar(&c.errorProject, "error-reporting-project", "",
		"Cloud project receiving crash reports. Crashes are only logged if unset.")
}

// setup parses the flags and builds the project.
//
// The returned reporter must be closed.
func (c *commonFlags) setup(ctx context.Context, args []string) (context.Context, *project.Project, crash.Reporter, error) {
	if len(args) != 0 {
		return ctx, nil, nil, errors.Reason("unexpected arguments %q", args).Err()
	}
	if c.projectName == "" {
		return ctx, nil, nil, errors.Reason("-project is required").Err()
	}
	if c.verbose {
		ctx = logging.SetLevel(ctx, logging.Debug)
	}

	cfg, err := config.Load(ctx, c.configPath)
	if err != nil {
		return ctx, nil, nil, err
	}
	pcfg := cfg.Project(c.projectName)
	if pcfg == nil {
		return ctx, nil, nil, errors.Reason("project %q is not in %s", c.projectName, c.configPath).Err()
	}

	hc, err := c.httpClient(ctx)
	if err != nil {
		return ctx, nil, nil, err
	}
	password, err := c.statusPassword()
	if err != nil {
		return ctx, nil, nil, err
	}

	var reporter crash.Reporter = crash.Log{}
	if c.errorProject != "" {
		if reporter, err = crash.NewErrorReporting(ctx, c.errorProject, "commit_queue"); err != nil {
			return ctx, nil, nil, err
		}
	}

	p, err := project.New(ctx, pcfg, project.Options{
		Workdir:        c.workdir,
		DryRun:         !c.noDryRun,
		OnlyIssue:      c.onlyIssue,
		Fake:           c.fake,
		NoTry:          c.noTry,
		HTTPClient:     hc,
		StatusPassword: password,
		Crash:          reporter,
	})
	if err == nil {
		err = p.LoadState(ctx)
	}
	if err != nil {
		reporter.Close()
		return ctx, nil, nil, err
	}
	logging.Infof(ctx, "Verifiers of %s: %s", p.Name, strings.Join(p.Manager.VerifierNames(), ", "))
	return ctx, p, reporter, nil
}

func (c *commonFlags) httpClient(ctx context.Context) (*http.Client, error) {
	opts, err := c.authFlags.Options()
	if err != nil {
		return nil, err
	}
	hc, err := auth.NewAuthenticator(ctx, auth.OptionalLogin, opts).Client()
	if err != nil {
		return nil, errors.Annotate(err, "creating the HTTP client").Err()
	}
	hc.Timeout = 5 * time.Minute
	return hc, nil
}

func (c *commonFlags) statusPassword() (string, error) {
	if c.statusPasswordFile == "" {
		return "", nil
	}
	raw, err := os.ReadFile(c.statusPasswordFile)
	if err != nil {
		return "", errors.Annotate(err, "reading the status password").Err()
	}
	return strings.TrimSpace(string(raw)), nil
}
