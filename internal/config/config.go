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

// Package config loads the commit queue project configuration.
package config

import (
	"context"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v2"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/config/validation"
)

// Defaults applied to unset fields.
const (
	DefaultMaxCommitBurst   = 4
	DefaultCommitBurstDelay = 10 * time.Minute
	DefaultLostTryJobDelay  = 15 * time.Minute
	DefaultPresubmitTimeout = 6 * time.Minute
	DefaultMaxTryResends    = 3
	DefaultBranch           = "main"
)

// Config is the root of the configuration file.
type Config struct {
	Projects []*Project `yaml:"projects"`
}

// Project configures the commit queue of one project.
type Project struct {
	Name string `yaml:"name"`

	// ReviewURL is the code review server.
	ReviewURL string `yaml:"review_url"`
	// ReviewEmail is the account the commit queue runs as.
	ReviewEmail string `yaml:"review_email"`
	// StatusURL receives status events, optional.
	StatusURL string `yaml:"status_url"`
	// TreeStatusURL postpones commits while the tree is closed, optional.
	TreeStatusURL string `yaml:"tree_status_url"`

	Checkout Checkout `yaml:"checkout"`

	// ProjectBases are regexps matching the base URL of the issues this
	// project handles. The first group is the path of the patch in the
	// checkout.
	ProjectBases []string `yaml:"project_bases"`

	Reviewers *Reviewers `yaml:"reviewers"`
	Presubmit *Presubmit `yaml:"presubmit"`
	TryServer *TryServer `yaml:"try_server"`

	MaxCommitBurst   int           `yaml:"max_commit_burst"`
	CommitBurstDelay time.Duration `yaml:"commit_burst_delay"`
}

// Checkout configures the git working copy patches land from.
type Checkout struct {
	// Path is relative to the working directory.
	Path   string `yaml:"path"`
	Remote string `yaml:"remote"`
	Branch string `yaml:"branch"`
	// ViewVCURL is prefixed to committed revisions, optional.
	ViewVCURL string `yaml:"viewvc_url"`
}

// Reviewers configures the LGTM verifier.
type Reviewers struct {
	Whitelist []string `yaml:"whitelist"`
	Blacklist []string `yaml:"blacklist"`
}

// Presubmit configures the presubmit verifier.
type Presubmit struct {
	// Command is run in the checkout root.
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// TryServer configures the try job verifier.
type TryServer struct {
	URL          string    `yaml:"url"`
	Builders     []Builder `yaml:"builders"`
	IgnoredSteps []string  `yaml:"ignored_steps"`
	Solution     string    `yaml:"solution"`
	Extra        []string  `yaml:"extra"`
	// LKGRURL returns the last known good revision, optional.
	LKGRURL         string        `yaml:"lkgr_url"`
	LostTryJobDelay time.Duration `yaml:"lost_try_job_delay"`
	MaxResends      int           `yaml:"max_try_resends"`
}

// Builder is a try builder and the tests to run on it.
type Builder struct {
	Name  string   `yaml:"name"`
	Tests []string `yaml:"tests"`
}

// Load reads, defaults and validates a configuration file.
func Load(ctx context.Context, path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotate(err, "reading %s", path).Err()
	}
	return Parse(ctx, path, raw)
}

// Parse decodes, defaults and validates a configuration. file is used in
// error messages.
func Parse(ctx context.Context, file string, raw []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return nil, errors.Annotate(err, "parsing %s", file).Err()
	}
	cfg.applyDefaults()
	vctx := &validation.Context{Context: ctx}
	vctx.SetFile(file)
	cfg.validate(vctx)
	if err := vctx.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Project returns the named project, or nil.
func (c *Config) Project(name string) *Project {
	for _, p := range c.Projects {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	for _, p := range c.Projects {
		if p == nil {
			continue
		}
		if p.MaxCommitBurst == 0 {
			p.MaxCommitBurst = DefaultMaxCommitBurst
		}
		if p.CommitBurstDelay == 0 {
			p.CommitBurstDelay = DefaultCommitBurstDelay
		}
		if p.Checkout.Branch == "" {
			p.Checkout.Branch = DefaultBranch
		}
		if p.Checkout.Path == "" {
			p.Checkout.Path = p.Name
		}
		if p.Presubmit != nil && p.Presubmit.Timeout == 0 {
			p.Presubmit.Timeout = DefaultPresubmitTimeout
		}
		if t := p.TryServer; t != nil {
			if t.LostTryJobDelay == 0 {
				t.LostTryJobDelay = DefaultLostTryJobDelay
			}
			if t.MaxResends == 0 {
				t.MaxResends = DefaultMaxTryResends
			}
		}
	}
}

func (c *Config) validate(ctx *validation.Context) {
	if len(c.Projects) == 0 {
		ctx.Errorf("no project")
		return
	}
	names := stringset.New(len(c.Projects))
	for i, p := range c.Projects {
		ctx.Enter("project #%d", i)
		switch {
		case p == nil:
			ctx.Errorf("empty project")
		case p.Name == "":
			ctx.Errorf("name is required")
		case !names.Add(p.Name):
			ctx.Errorf("project %q is defined twice", p.Name)
		}
		if p != nil {
			p.validate(ctx)
		}
		ctx.Exit()
	}
}

func (p *Project) validate(ctx *validation.Context) {
	if p.ReviewURL == "" {
		ctx.Errorf("review_url is required")
	}
	if p.ReviewEmail == "" {
		ctx.Errorf("review_email is required")
	}
	if p.MaxCommitBurst < 0 {
		ctx.Errorf("max_commit_burst must be positive")
	}
	if p.CommitBurstDelay < 0 {
		ctx.Errorf("commit_burst_delay must be positive")
	}
	validateRegexps(ctx, "project_bases", p.ProjectBases)
	if r := p.Reviewers; r != nil {
		ctx.Enter("reviewers")
		validateRegexps(ctx, "whitelist", r.Whitelist)
		validateRegexps(ctx, "blacklist", r.Blacklist)
		ctx.Exit()
	}
	if ps := p.Presubmit; ps != nil {
		ctx.Enter("presubmit")
		if len(ps.Command) == 0 {
			ctx.Errorf("command is required")
		}
		if ps.Timeout < 0 {
			ctx.Errorf("timeout must be positive")
		}
		ctx.Exit()
	}
	if t := p.TryServer; t != nil {
		t.validate(ctx)
	}
}

func (t *TryServer) validate(ctx *validation.Context) {
	ctx.Enter("try_server")
	defer ctx.Exit()
	if t.URL == "" {
		ctx.Errorf("url is required")
	}
	if len(t.Builders) == 0 {
		ctx.Errorf("no builder")
	}
	builders := stringset.New(len(t.Builders))
	for _, b := range t.Builders {
		switch {
		case b.Name == "":
			ctx.Errorf("builder name is required")
		case !builders.Add(b.Name):
			ctx.Errorf("builder %q is defined twice", b.Name)
		}
	}
	if t.LostTryJobDelay < 0 {
		ctx.Errorf("lost_try_job_delay must be positive")
	}
	if t.MaxResends < 0 {
		ctx.Errorf("max_try_resends must be positive")
	}
}

func validateRegexps(ctx *validation.Context, field string, patterns []string) {
	ctx.Enter(field)
	defer ctx.Exit()
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			ctx.Errorf("invalid regexp %q: %s", p, err)
		}
	}
}
