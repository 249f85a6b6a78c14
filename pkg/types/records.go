package types

import "time"

// FolderType classifies a folder for related-address derivation.
type FolderType string

const (
	FolderInbox FolderType = "inbox"
	FolderSent  FolderType = "sent"
	FolderDraft FolderType = "draft"
	FolderTrash FolderType = "trash"
	FolderSpam  FolderType = "spam"
	FolderOther FolderType = "other"
)

// FetchMode selects how the UID range for a folder pass is computed.
type FetchMode string

const (
	FetchSearch      FetchMode = "search"
	FetchUIDFrom     FetchMode = "uid-from"
	FetchUIDTo       FetchMode = "uid-to"
	FetchUIDRange    FetchMode = "uid-range"
	FetchIncremental FetchMode = "incremental"
)

// SearchCriterion is one typed IMAP search term. Date ops (SINCE, BEFORE,
// ON) use Date; text ops (FROM, TO, CC, BCC, SUBJECT, BODY, TEXT, KEYWORD,
// UNKEYWORD) use Value.
type SearchCriterion struct {
	Op    string    `json:"op" yaml:"op"`
	Value string    `json:"value,omitempty" yaml:"value,omitempty"`
	Date  time.Time `json:"date,omitempty" yaml:"date,omitempty"`
}

// FetchPolicy describes which UIDs of a folder should be ingested.
type FetchPolicy struct {
	Mode     FetchMode         `json:"mode" yaml:"mode"`
	From     uint32            `json:"from,omitempty" yaml:"from,omitempty"`
	To       uint32            `json:"to,omitempty" yaml:"to,omitempty"`
	Criteria []SearchCriterion `json:"criteria,omitempty" yaml:"criteria,omitempty"`
}

// FolderState is the per-folder sync bookkeeping persisted between runs.
// UIDValidity must match the server between runs; a mismatch invalidates
// LastHeaderUID/LastMessageUID and is surfaced as an error.
type FolderState struct {
	Account        string      `json:"account"`
	Path           string      `json:"path"`
	Type           FolderType  `json:"type"`
	Policy         FetchPolicy `json:"policy"`
	UIDValidity    uint32      `json:"uidvalidity"`
	LastHeaderUID  uint32      `json:"last_header_uid"`
	LastMessageUID uint32      `json:"last_message_uid"`
}

// FolderInfo describes a folder as reported by the IMAP server.
type FolderInfo struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	Delimiter  string   `json:"delimiter"`
	Attributes []string `json:"attributes,omitempty"`
}

// MailboxStatus is a snapshot of a selected folder.
type MailboxStatus struct {
	Folder      string `json:"folder"`
	UIDValidity uint32 `json:"uidvalidity"`
	UIDNext     uint32 `json:"uidnext"`
	Messages    uint32 `json:"messages"`
	Recent      uint32 `json:"recent"`
	Unseen      uint32 `json:"unseen"`
}

// MessageFlags mirrors the standard IMAP system flags.
type MessageFlags struct {
	Seen     bool `json:"seen"`
	Answered bool `json:"answered"`
	Flagged  bool `json:"flagged"`
	Deleted  bool `json:"deleted"`
	Draft    bool `json:"draft"`
	Recent   bool `json:"recent"`
}

// HeaderOverview is the lightweight per-UID summary from an IMAP
// overview fetch. All fields are MIME-word decoded at the boundary.
type HeaderOverview struct {
	UID     uint32       `json:"uid"`
	Subject string       `json:"subject"`
	From    string       `json:"from"`
	To      string       `json:"to"`
	Date    time.Time    `json:"date"`
	Size    uint32       `json:"size"`
	Flags   MessageFlags `json:"flags"`
}

// MessageHeaderRecord is the stored form of one overview entry.
// Identity is folder + UID, enforced by the incremental watermark.
type MessageHeaderRecord struct {
	Account string       `json:"account"`
	Folder  string       `json:"folder"`
	UID     uint32       `json:"uid"`
	Subject string       `json:"subject"`
	From    string       `json:"from"`
	To      string       `json:"to"`
	Date    time.Time    `json:"date"`
	Size    uint32       `json:"size"`
	Flags   MessageFlags `json:"flags"`
}

// Address is one parsed mailbox address. Formatted is the canonical
// single-line form: name trimmed and quoted when it contains a comma,
// address lowercased, joined as `"name" <address>`.
type Address struct {
	Name      string `json:"name,omitempty"`
	Address   string `json:"address"`
	Formatted string `json:"formatted"`
}

// Attachment describes one extracted MIME attachment. Content is
// persisted to SpoolPath under a random hex name before the record is
// built, so attacker-controlled filenames never touch the filesystem.
type Attachment struct {
	ContentID     string  `json:"content_id,omitempty"`
	Name          string  `json:"name"`
	ContentType   string  `json:"content_type"`
	MimeType      string  `json:"mime_type"`
	Encoding      string  `json:"encoding,omitempty"`
	Description   string  `json:"description,omitempty"`
	Charset       string  `json:"charset,omitempty"`
	Disposition   string  `json:"disposition"`
	FileExtension string  `json:"file_extension,omitempty"`
	SizeInBytes   int64   `json:"size_in_bytes"`
	SizeInMB      float64 `json:"size_in_mb"`
	SpoolPath     string  `json:"spool_path,omitempty"`
	Inline        bool    `json:"inline"`
}

// MessageRecord is the fully parsed, normalized form of one message.
type MessageRecord struct {
	Account          string            `json:"account"`
	Folder           string            `json:"folder"`
	UID              uint32            `json:"uid"`
	MessageID        string            `json:"message_id"`
	InReplyTo        string            `json:"in_reply_to,omitempty"`
	References       []string          `json:"references,omitempty"`
	Subject          string            `json:"subject"`
	Date             time.Time         `json:"date"`
	From             []Address         `json:"from"`
	Sender           []Address         `json:"sender,omitempty"`
	ReplyTo          []Address         `json:"reply_to,omitempty"`
	To               []Address         `json:"to,omitempty"`
	Cc               []Address         `json:"cc,omitempty"`
	Bcc              []Address         `json:"bcc,omitempty"`
	DeliveredTo      []string          `json:"delivered_to,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	BodyText         string            `json:"body_text,omitempty"`
	BodyHTML         string            `json:"body_html,omitempty"`
	VisibleText      string            `json:"visible_text,omitempty"`
	Language         string            `json:"language,omitempty"`
	Attachments      []Attachment      `json:"attachments,omitempty"`
	Flags            MessageFlags      `json:"flags"`
	ConversationHash string            `json:"conversation_hash,omitempty"`
	Categories       []string          `json:"categories,omitempty"`
}

// NameParts is the structured output of a NameParser.
type NameParts struct {
	First      string   `json:"first,omitempty"`
	Last       string   `json:"last,omitempty"`
	Middle     string   `json:"middle,omitempty"`
	Nick       string   `json:"nick,omitempty"`
	Initials   string   `json:"initials,omitempty"`
	Suffix     string   `json:"suffix,omitempty"`
	Salutation string   `json:"salutation,omitempty"`
	Parts      []string `json:"parts,omitempty"`
}

// ContactRecord is the derived identity for one email address,
// scoped to a mailbox naming formula. Invariant: SeenSince <= SeenUntil.
type ContactRecord struct {
	Account       string    `json:"account"`
	Email         string    `json:"email"`
	Name          NameParts `json:"name"`
	DisplayName   string    `json:"display_name,omitempty"`
	Emails        []string  `json:"emails,omitempty"`
	Languages     []string  `json:"languages,omitempty"`
	Conversations []string  `json:"conversations,omitempty"`
	SeenSince     time.Time `json:"seen_since"`
	SeenUntil     time.Time `json:"seen_until"`
}

// ConversationRecord aggregates messages sharing a participant set.
// Participants excludes mailbox-owned addresses; a conversation with no
// non-owned participants is never created.
type ConversationRecord struct {
	Account      string    `json:"account"`
	Hash         string    `json:"hash"`
	Participants []string  `json:"participants"`
	Related      []string  `json:"related,omitempty"`
	DateFirst    time.Time `json:"date_first"`
	DateLast     time.Time `json:"date_last"`
	Count        int       `json:"count"`
}

// SyncReport is the aggregate outcome of one ingestion run.
type SyncReport struct {
	RunID             string    `json:"run_id"`
	Account           string    `json:"account"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	NewHeaders        int       `json:"new_headers"`
	NewMessages       int       `json:"new_messages"`
	NewContacts       int       `json:"new_contacts"`
	NewConversations  int       `json:"new_conversations"`
	SkippedOnFilter   int       `json:"skipped_on_filter"`
	SkippedOnExisting int       `json:"skipped_on_existing"`
	SkippedOnError    int       `json:"skipped_on_error"`
	Errors            []string  `json:"errors,omitempty"`
}
