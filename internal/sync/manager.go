package sync

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/contact"
	"github.com/brandon/mailsync/internal/conversation"
	"github.com/brandon/mailsync/internal/filter"
	"github.com/brandon/mailsync/internal/imapmail"
	"github.com/brandon/mailsync/internal/message"
	"github.com/brandon/mailsync/internal/record"
	"github.com/brandon/mailsync/pkg/types"
)

// Services are the pluggable external collaborators of the pipeline.
// Nil fields fall back to the built-in defaults (no language detection,
// whitespace name parsing, quote-based reply stripping).
type Services struct {
	Detector   message.LanguageDetector
	NameParser message.NameParser
	Stripper   message.ReplyStripper
	Progress   ProgressFunc
}

// accountRuntime ties one account's configuration to its connection.
type accountRuntime struct {
	cfg     *config.AccountConfig
	mailbox *config.MailboxConfig
	conn    imapmail.Connection
}

// Manager owns the per-account ingestion pipelines. Distinct accounts
// may sync concurrently; within one account the run-lock serializes.
type Manager struct {
	cfg      *config.Config
	store    record.Store
	services Services
	lock     *RunLock
	filters  *filter.Engine
	accounts map[string]*accountRuntime
	logger   *logrus.Logger
}

// NewManager loads every account's mailbox declaration and prepares its
// IMAP client. No connections are opened yet.
func NewManager(cfg *config.Config, store record.Store, services Services, logger *logrus.Logger) (*Manager, error) {
	m := &Manager{
		cfg:      cfg,
		store:    store,
		services: services,
		lock:     NewRunLock(store, cfg.StaleJobAfter, logger),
		filters:  filter.NewEngine(logger),
		accounts: make(map[string]*accountRuntime),
		logger:   logger,
	}

	for i := range cfg.Accounts {
		acc := &cfg.Accounts[i]

		mailbox := config.DefaultMailboxConfig()
		if acc.MailboxPath != "" {
			loaded, err := config.LoadMailboxConfig(acc.MailboxPath)
			if err != nil {
				return nil, fmt.Errorf("account %s: %w", acc.Name, err)
			}
			mailbox = loaded
		}

		m.accounts[acc.Name] = &accountRuntime{
			cfg:     acc,
			mailbox: mailbox,
			conn:    imapmail.NewClient(acc, logger),
		}
	}

	return m, nil
}

// GetMessages runs one ingestion pass for the named account. Each run
// gets a fresh orchestrator so the contact cache is request-scoped.
func (m *Manager) GetMessages(accountName string) (*types.SyncReport, error) {
	rt, err := m.runtime(accountName)
	if err != nil {
		return nil, err
	}

	orch, err := m.buildOrchestrator(rt)
	if err != nil {
		return nil, err
	}

	return orch.GetMessages()
}

// GetFolders lists the live folders of the named account.
func (m *Manager) GetFolders(accountName string) ([]types.FolderInfo, error) {
	rt, err := m.runtime(accountName)
	if err != nil {
		return nil, err
	}
	return rt.conn.ListFolders()
}

// GetInfo reports the live status of one folder of the named account.
func (m *Manager) GetInfo(accountName, folder string) (*types.MailboxStatus, error) {
	rt, err := m.runtime(accountName)
	if err != nil {
		return nil, err
	}
	return rt.conn.Status(folder)
}

// Close closes all account connections.
func (m *Manager) Close() error {
	for _, rt := range m.accounts {
		if err := rt.conn.Close(); err != nil {
			m.logger.WithError(err).WithField("account", rt.cfg.Name).Warn("Failed to close connection")
		}
	}
	return nil
}

// AccountNames returns the managed account names.
func (m *Manager) AccountNames() []string {
	names := make([]string, 0, len(m.accounts))
	for name := range m.accounts {
		names = append(names, name)
	}
	return names
}

func (m *Manager) runtime(accountName string) (*accountRuntime, error) {
	rt, ok := m.accounts[accountName]
	if !ok {
		return nil, &types.NoMailboxError{Account: accountName}
	}
	return rt, nil
}

func (m *Manager) buildOrchestrator(rt *accountRuntime) (*Orchestrator, error) {
	parser := message.NewParser(m.cfg.SpoolPath, m.services.Stripper, m.services.Detector, m.logger)

	contacts, err := contact.NewResolver(m.store, m.services.NameParser, rt.cfg.ContactPattern, 512, m.logger)
	if err != nil {
		return nil, err
	}

	convs := conversation.NewEngine(m.store, rt.cfg.ConversationPattern, m.logger)

	return NewOrchestrator(
		rt.cfg, rt.mailbox, rt.conn, m.store,
		parser, contacts, convs, m.filters,
		m.lock, m.logger, m.services.Progress,
	), nil
}
