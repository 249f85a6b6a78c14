package imapmail

import (
	"crypto/tls"
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/pkg/types"
)

// Connection is the per-account IMAP session used by the ingestion
// pipeline. All network failures are reported as *types.ConnectionError,
// which the orchestrator treats as fatal for the mailbox run.
type Connection interface {
	Connect() error
	Close() error
	ListFolders() ([]types.FolderInfo, error)
	Status(folder string) (*types.MailboxStatus, error)
	FetchOverview(folder, rangeSpec string) ([]types.HeaderOverview, error)
	FetchRawMessage(folder string, uid uint32) ([]byte, error)
	Search(folder string, criteria *imap.SearchCriteria) ([]uint32, error)
}

// Client wraps an IMAP client connection
type Client struct {
	config    *config.AccountConfig
	client    *client.Client
	logger    *logrus.Logger
	selected  string
	connected bool
}

// NewClient creates a new IMAP client (does not connect immediately)
func NewClient(cfg *config.AccountConfig, logger *logrus.Logger) *Client {
	return &Client{
		config: cfg,
		logger: logger,
	}
}

// Connect establishes a connection to the IMAP server
func (c *Client) Connect() error {
	if c.connected && c.client != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.config.IMAPHost, c.config.IMAPPort)

	cl, err := client.DialTLS(addr, &tls.Config{
		ServerName: c.config.IMAPHost,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return &types.ConnectionError{Account: c.config.Name, Err: err}
	}

	c.client = cl

	if err := c.client.Login(c.config.IMAPUsername, c.config.IMAPPassword); err != nil {
		c.logger.WithError(err).Error("Failed to login to IMAP server")
		c.client.Logout() //nolint:errcheck
		c.client = nil
		return &types.ConnectionError{Account: c.config.Name, Err: err}
	}

	c.connected = true
	c.logger.WithField("account", c.config.Name).Info("Connected to IMAP server")
	return nil
}

// Close closes the IMAP connection
func (c *Client) Close() error {
	if c.client != nil {
		if err := c.client.Logout(); err != nil {
			return err
		}
		c.client = nil
		c.connected = false
		c.selected = ""
	}
	return nil
}

// ListFolders lists all mailboxes/folders
func (c *Client) ListFolders() ([]types.FolderInfo, error) {
	if err := c.Connect(); err != nil {
		return nil, err
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.client.List("", "*", mailboxes)
	}()

	var folders []types.FolderInfo
	for m := range mailboxes {
		folders = append(folders, types.FolderInfo{
			Name:       m.Name,
			Path:       m.Name,
			Delimiter:  m.Delimiter,
			Attributes: m.Attributes,
		})
	}

	if err := <-done; err != nil {
		return nil, &types.ConnectionError{Account: c.config.Name, Err: fmt.Errorf("failed to list folders: %w", err)}
	}

	return folders, nil
}

// Status selects a folder and reports its UID bookkeeping and counts
func (c *Client) Status(folder string) (*types.MailboxStatus, error) {
	mbox, err := c.selectFolder(folder)
	if err != nil {
		return nil, err
	}

	return &types.MailboxStatus{
		Folder:      folder,
		UIDValidity: mbox.UidValidity,
		UIDNext:     mbox.UidNext,
		Messages:    mbox.Messages,
		Recent:      mbox.Recent,
		Unseen:      mbox.Unseen,
	}, nil
}

// FetchOverview fetches the lightweight header summary for a UID range.
// MIME-encoded words are decoded here, once, before anything downstream
// sees the fields.
func (c *Client) FetchOverview(folder, rangeSpec string) ([]types.HeaderOverview, error) {
	if _, err := c.selectFolder(folder); err != nil {
		return nil, err
	}

	seqSet, err := imap.ParseSeqSet(rangeSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid uid range %q: %w", rangeSpec, err)
	}

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchInternalDate, imap.FetchRFC822Size, imap.FetchUid}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var overviews []types.HeaderOverview
	for msg := range messages {
		overviews = append(overviews, overviewFromMessage(msg))
	}

	if err := <-done; err != nil {
		return nil, &types.ConnectionError{Account: c.config.Name, Err: fmt.Errorf("failed to fetch overview: %w", err)}
	}

	return overviews, nil
}

// FetchRawMessage fetches the full RFC 822 bytes of one message by UID
func (c *Client) FetchRawMessage(folder string, uid uint32) ([]byte, error) {
	if _, err := c.selectFolder(folder); err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	for msg := range messages {
		if literal := msg.GetBody(section); literal != nil {
			raw = readLiteral(literal)
		}
	}

	if err := <-done; err != nil {
		return nil, &types.ConnectionError{Account: c.config.Name, Err: fmt.Errorf("failed to fetch message %d: %w", uid, err)}
	}

	if raw == nil {
		return nil, fmt.Errorf("uid %d: no body returned", uid)
	}

	return raw, nil
}

// Search runs a UID search against a folder
func (c *Client) Search(folder string, criteria *imap.SearchCriteria) ([]uint32, error) {
	if _, err := c.selectFolder(folder); err != nil {
		return nil, err
	}

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, &types.ConnectionError{Account: c.config.Name, Err: fmt.Errorf("failed to search: %w", err)}
	}

	return uids, nil
}

// selectFolder selects a folder read-only. Selection is never reused:
// the caller always gets a fresh UIDNEXT and UIDVALIDITY snapshot.
func (c *Client) selectFolder(folder string) (*imap.MailboxStatus, error) {
	if err := c.Connect(); err != nil {
		return nil, err
	}

	mbox, err := c.client.Select(folder, true)
	if err != nil {
		return nil, &types.ConnectionError{Account: c.config.Name, Err: fmt.Errorf("failed to select folder %s: %w", folder, err)}
	}
	c.selected = folder

	return mbox, nil
}

// overviewFromMessage converts an IMAP fetch result into a HeaderOverview
func overviewFromMessage(msg *imap.Message) types.HeaderOverview {
	ov := types.HeaderOverview{
		UID:   msg.Uid,
		Size:  msg.Size,
		Date:  msg.InternalDate,
		Flags: flagsFromIMAP(msg.Flags),
	}

	if env := msg.Envelope; env != nil {
		ov.Subject = DecodeHeader(env.Subject)
		ov.From = formatAddressList(env.From)
		ov.To = formatAddressList(env.To)
		if !env.Date.IsZero() {
			ov.Date = env.Date
		}
	}

	return ov
}

// flagsFromIMAP maps the IMAP system flags onto MessageFlags
func flagsFromIMAP(flags []string) types.MessageFlags {
	var out types.MessageFlags
	for _, f := range flags {
		switch f {
		case imap.SeenFlag:
			out.Seen = true
		case imap.AnsweredFlag:
			out.Answered = true
		case imap.FlaggedFlag:
			out.Flagged = true
		case imap.DeletedFlag:
			out.Deleted = true
		case imap.DraftFlag:
			out.Draft = true
		case imap.RecentFlag:
			out.Recent = true
		}
	}
	return out
}

// formatAddressList renders envelope addresses as a comma-joined list
// of decoded "name <address>" strings
func formatAddressList(addrs []*imap.Address) string {
	var out string
	for i, a := range addrs {
		if i > 0 {
			out += ", "
		}
		name := DecodeHeader(a.PersonalName)
		if name != "" {
			out += fmt.Sprintf("%s <%s>", name, a.Address())
		} else {
			out += a.Address()
		}
	}
	return out
}

// readLiteral reads content from an IMAP literal and returns bytes
func readLiteral(literal imap.Literal) []byte {
	body := make([]byte, 0, 8192)
	buf := make([]byte, 1024)
	for {
		n, err := literal.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
	}
	return body
}
