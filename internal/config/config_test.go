package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_SingleAccount(t *testing.T) {
	t.Setenv("IMAP_HOST", "imap.example.com")
	t.Setenv("IMAP_USERNAME", "me@acct1.example")
	t.Setenv("IMAP_PASSWORD", "secret")
	t.Setenv("ACCOUNT_NAME", "acct1")
	t.Setenv("OWNED_ADDRESSES", "me@acct1.example, alias@acct1.example")
	t.Setenv("SYNC_INTERVAL", "90s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.SyncInterval)
	require.Len(t, cfg.Accounts, 1)

	acct := cfg.Accounts[0]
	assert.Equal(t, "acct1", acct.Name)
	assert.Equal(t, "imap.example.com", acct.IMAPHost)
	assert.Equal(t, 993, acct.IMAPPort, "port defaults to 993")
	assert.Equal(t, []string{"me@acct1.example", "alias@acct1.example"}, acct.OwnedAddresses)
	assert.True(t, acct.FetchBody, "body fetching defaults on")
	assert.Equal(t, "{account}/{folder}/{uid}", acct.MessagePattern)
}

func TestLoadConfig_MultipleAccounts(t *testing.T) {
	t.Setenv("ACCOUNT_1_NAME", "work")
	t.Setenv("ACCOUNT_1_IMAP_HOST", "imap.corp.example")
	t.Setenv("ACCOUNT_1_IMAP_USERNAME", "me@corp.example")
	t.Setenv("ACCOUNT_1_IMAP_PASSWORD", "s1")
	t.Setenv("ACCOUNT_2_NAME", "home")
	t.Setenv("ACCOUNT_2_IMAP_HOST", "imap.home.example")
	t.Setenv("ACCOUNT_2_IMAP_USERNAME", "me@home.example")
	t.Setenv("ACCOUNT_2_IMAP_PASSWORD", "s2")
	t.Setenv("ACCOUNT_2_FETCH_BODY", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Accounts, 2)

	assert.Equal(t, "work", cfg.Accounts[0].Name)
	assert.Equal(t, "home", cfg.Accounts[1].Name)
	assert.False(t, cfg.Accounts[1].FetchBody)

	acct, err := cfg.GetAccountByName("home")
	require.NoError(t, err)
	assert.Equal(t, "imap.home.example", acct.IMAPHost)

	_, err = cfg.GetAccountByName("missing")
	assert.Error(t, err)
}

func TestLoadConfig_NoAccounts(t *testing.T) {
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a@x", "b@x"}, splitList("a@x, b@x,"))
}
