package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailsync/pkg/types"
)

const mailboxYAML = `
folders:
  - path: INBOX
    type: inbox
  - path: Sent
    type: sent
    fetch:
      mode: uid-from
      from: 100
  - path: Archive
    fetch:
      mode: search
      criteria:
        - op: FROM
          value: boss@corp.example

rules:
  - stage: overview
    field: from
    match:
      type: contains
      value: "@spam.example"
    action: skip
  - field: subject
    match:
      type: regex
      value: "(?i)invoice"
    categories: [billing]
`

func writeMailboxFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mailbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMailboxConfig(t *testing.T) {
	cfg, err := LoadMailboxConfig(writeMailboxFile(t, mailboxYAML))
	require.NoError(t, err)

	require.Len(t, cfg.Folders, 3)
	assert.Equal(t, "INBOX", cfg.Folders[0].Path)
	assert.Equal(t, types.FolderInbox, cfg.Folders[0].Type)
	assert.Equal(t, types.FetchIncremental, cfg.Folders[0].Fetch.Mode, "fetch mode defaults to incremental")

	assert.Equal(t, types.FetchUIDFrom, cfg.Folders[1].Fetch.Mode)
	assert.Equal(t, uint32(100), cfg.Folders[1].Fetch.From)

	assert.Equal(t, types.FolderOther, cfg.Folders[2].Type, "folder type defaults to other")
	assert.Equal(t, types.FetchSearch, cfg.Folders[2].Fetch.Mode)
	require.Len(t, cfg.Folders[2].Fetch.Criteria, 1)
	assert.Equal(t, "FROM", cfg.Folders[2].Fetch.Criteria[0].Op)
}

func TestLoadMailboxConfig_RuleDefaults(t *testing.T) {
	cfg, err := LoadMailboxConfig(writeMailboxFile(t, mailboxYAML))
	require.NoError(t, err)

	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, types.ActionSkip, cfg.Rules[0].Action)
	assert.Equal(t, types.ActionContinue, cfg.Rules[1].Action, "action defaults to continue")
	assert.Equal(t, types.StageOverview, cfg.Rules[1].Stage, "stage defaults to overview")
}

func TestLoadMailboxConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no folders", "rules: []"},
		{"missing path", "folders:\n  - type: inbox"},
		{"bad fetch mode", "folders:\n  - path: INBOX\n    fetch:\n      mode: everything"},
		{"rule without field", "folders:\n  - path: INBOX\nrules:\n  - action: skip"},
		{"bad action", "folders:\n  - path: INBOX\nrules:\n  - field: subject\n    action: explode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMailboxConfig(writeMailboxFile(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestRulesForStage(t *testing.T) {
	cfg := &MailboxConfig{
		Rules: []types.FilterRule{
			{Stage: types.StageHeader, Field: "uid"},
			{Stage: types.StageMessage, Field: "body"},
			{Stage: types.StageHeader, Field: "from"},
		},
	}

	header := cfg.RulesForStage(types.StageHeader)
	require.Len(t, header, 2)
	assert.Equal(t, "uid", header[0].Field)
	assert.Equal(t, "from", header[1].Field, "declared order is preserved")

	assert.Empty(t, cfg.RulesForStage(types.StageOverview))
}

func TestDefaultMailboxConfig(t *testing.T) {
	cfg := DefaultMailboxConfig()
	require.Len(t, cfg.Folders, 1)
	assert.Equal(t, "INBOX", cfg.Folders[0].Path)
	assert.Equal(t, types.FetchIncremental, cfg.Folders[0].Fetch.Mode)
	assert.Empty(t, cfg.Rules)
}
