package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Store settings
	StorePath string
	SpoolPath string
	LogLevel  string

	// Sync settings
	SyncInterval  time.Duration
	StaleJobAfter time.Duration

	// Accounts
	Accounts []AccountConfig
}

// AccountConfig holds configuration for a single mailbox account
type AccountConfig struct {
	Name string

	// IMAP settings
	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string

	// Addresses the mailbox recognizes as itself; grows as new
	// Delivered-To addresses are observed.
	OwnedAddresses []string

	// FetchBody enables the full-message pass after the header pass.
	FetchBody bool

	// IgnoreExisting skips messages whose target record already exists
	// instead of merging into them.
	IgnoreExisting bool

	// MailboxPath points to the YAML file declaring folders and
	// filter rules for this account.
	MailboxPath string

	// Naming formulas for derived records. Placeholders: {account},
	// {folder}, {uid}, {email}, {hash}.
	MessagePattern      string
	ContactPattern      string
	ConversationPattern string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		StorePath:     getEnv("STORE_PATH", "/data/mailsync.db"),
		SpoolPath:     getEnv("SPOOL_PATH", "/data/attachments"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
		StaleJobAfter: getEnvDuration("STALE_JOB_AFTER", 10*time.Minute),
	}

	accounts, err := loadAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no mailbox accounts configured")
	}

	cfg.Accounts = accounts
	return cfg, nil
}

// loadAccounts loads mailbox account configurations from environment variables
func loadAccounts() ([]AccountConfig, error) {
	var accounts []AccountConfig

	// First, try single account configuration (for backward compatibility)
	if getEnv("IMAP_HOST", "") != "" {
		account, err := loadAccount("")
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
		return accounts, nil
	}

	// Load multiple accounts (ACCOUNT_1_*, ACCOUNT_2_*, etc.)
	accountNum := 1
	for {
		account, err := loadAccount(fmt.Sprintf("ACCOUNT_%d_", accountNum))
		if err != nil {
			break // No more accounts
		}
		accounts = append(accounts, *account)
		accountNum++
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts found in environment variables")
	}

	return accounts, nil
}

// loadAccount loads one account using the given env prefix ("" for the
// single-account form)
func loadAccount(prefix string) (*AccountConfig, error) {
	imapHost := getEnv(prefix+"IMAP_HOST", "")
	imapPort := getEnvInt(prefix+"IMAP_PORT", 993)
	imapUsername := getEnv(prefix+"IMAP_USERNAME", "")
	imapPassword := getEnv(prefix+"IMAP_PASSWORD", "")

	if imapHost == "" {
		return nil, fmt.Errorf("account %q: IMAP_HOST is required", prefix)
	}
	if imapUsername == "" {
		return nil, fmt.Errorf("account %q: IMAP_USERNAME is required", prefix)
	}
	if imapPassword == "" {
		return nil, fmt.Errorf("account %q: IMAP_PASSWORD is required", prefix)
	}

	name := getEnv(prefix+"NAME", "")
	if name == "" {
		if prefix == "" {
			name = getEnv("ACCOUNT_NAME", "default")
		} else {
			return nil, fmt.Errorf("account %q: NAME is required", prefix)
		}
	}

	return &AccountConfig{
		Name:                name,
		IMAPHost:            imapHost,
		IMAPPort:            imapPort,
		IMAPUsername:        imapUsername,
		IMAPPassword:        imapPassword,
		OwnedAddresses:      splitList(getEnv(prefix+"OWNED_ADDRESSES", "")),
		FetchBody:           getEnvBool(prefix+"FETCH_BODY", true),
		IgnoreExisting:      getEnvBool(prefix+"IGNORE_EXISTING", false),
		MailboxPath:         getEnv(prefix+"MAILBOX_PATH", ""),
		MessagePattern:      getEnv(prefix+"MESSAGE_PATTERN", "{account}/{folder}/{uid}"),
		ContactPattern:      getEnv(prefix+"CONTACT_PATTERN", "{account}/contact/{email}"),
		ConversationPattern: getEnv(prefix+"CONVERSATION_PATTERN", "{account}/conversation/{hash}"),
	}, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetAccountByName finds an account by name
func (c *Config) GetAccountByName(name string) (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("account not found: %s", name)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("STORE_PATH is required")
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}

	for i := range c.Accounts {
		acc := &c.Accounts[i]
		if acc.IMAPHost == "" {
			return fmt.Errorf("account %s: IMAP_HOST is required", acc.Name)
		}
		if acc.IMAPPort < 1 || acc.IMAPPort > 65535 {
			return fmt.Errorf("account %s: invalid IMAP_PORT", acc.Name)
		}
	}

	return nil
}

// AccountNames returns a list of all account names
func (c *Config) AccountNames() []string {
	names := make([]string, len(c.Accounts))
	for i := range c.Accounts {
		names[i] = c.Accounts[i].Name
	}
	return names
}
