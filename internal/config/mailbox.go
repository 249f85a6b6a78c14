package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/brandon/mailsync/pkg/types"
)

// FolderConfig declares one folder to ingest and how.
type FolderConfig struct {
	Path  string            `yaml:"path"`
	Type  types.FolderType  `yaml:"type"`
	Fetch types.FetchPolicy `yaml:"fetch"`
}

// MailboxConfig is the YAML-declared folder list and filter rule set
// for one account.
type MailboxConfig struct {
	Folders []FolderConfig     `yaml:"folders"`
	Rules   []types.FilterRule `yaml:"rules"`
}

// LoadMailboxConfig reads and validates a mailbox declaration file.
func LoadMailboxConfig(path string) (*MailboxConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mailbox config: %w", err)
	}

	var cfg MailboxConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse mailbox config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultMailboxConfig is used when an account declares no mailbox file:
// incremental ingestion of INBOX with no filter rules.
func DefaultMailboxConfig() *MailboxConfig {
	return &MailboxConfig{
		Folders: []FolderConfig{
			{
				Path:  "INBOX",
				Type:  types.FolderInbox,
				Fetch: types.FetchPolicy{Mode: types.FetchIncremental},
			},
		},
	}
}

// Validate checks folder declarations and rule shapes.
func (c *MailboxConfig) Validate() error {
	if len(c.Folders) == 0 {
		return fmt.Errorf("mailbox config declares no folders")
	}

	for i := range c.Folders {
		f := &c.Folders[i]
		if f.Path == "" {
			return fmt.Errorf("folder %d: path is required", i)
		}
		if f.Type == "" {
			f.Type = types.FolderOther
		}
		if f.Fetch.Mode == "" {
			f.Fetch.Mode = types.FetchIncremental
		}
		switch f.Fetch.Mode {
		case types.FetchSearch, types.FetchUIDFrom, types.FetchUIDTo, types.FetchUIDRange, types.FetchIncremental:
		default:
			return fmt.Errorf("folder %s: unknown fetch mode %q", f.Path, f.Fetch.Mode)
		}
	}

	for i := range c.Rules {
		r := &c.Rules[i]
		if r.Field == "" {
			return fmt.Errorf("rule %d: field is required", i)
		}
		if r.Action == "" {
			r.Action = types.ActionContinue
		}
		if r.Action != types.ActionSkip && r.Action != types.ActionContinue {
			return fmt.Errorf("rule %d: unknown action %q", i, r.Action)
		}
		if r.Stage == "" {
			r.Stage = types.StageOverview
		}
	}

	return nil
}

// RulesForStage returns the declared-order subset of rules for a stage.
func (c *MailboxConfig) RulesForStage(stage types.FilterStage) []types.FilterRule {
	var out []types.FilterRule
	for _, r := range c.Rules {
		if r.Stage == stage {
			out = append(out, r)
		}
	}
	return out
}
