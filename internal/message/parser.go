package message

import (
	"bytes"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jaytaylor/html2text"
	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/pkg/types"
)

// recordedHeaders is the fixed set of RFC 5322 headers copied onto the
// message record. Multi-valued headers are joined with newlines.
var recordedHeaders = []string{
	"Return-Path",
	"Received",
	"Resent-Date",
	"Resent-From",
	"Resent-Sender",
	"Resent-To",
	"Resent-Cc",
	"Resent-Bcc",
	"Resent-Message-ID",
	"Date",
	"From",
	"Sender",
	"Reply-To",
	"To",
	"Cc",
	"Bcc",
	"Message-ID",
	"In-Reply-To",
	"References",
	"Subject",
	"Comments",
	"Keywords",
	"MIME-Version",
	"Content-Type",
	"Content-Transfer-Encoding",
	"Content-Language",
	"Auto-Submitted",
	"Delivered-To",
}

// Context carries the folder-scoped facts the parser cannot read from
// the raw bytes.
type Context struct {
	Account string
	Folder  string
	UID     uint32
	Flags   types.MessageFlags
}

// Parser turns raw MIME bytes into normalized MessageRecords.
type Parser struct {
	spoolPath string
	stripper  ReplyStripper
	detector  LanguageDetector
	logger    *logrus.Logger
}

// NewParser creates a message parser. detector may be nil, in which
// case language detection is skipped.
func NewParser(spoolPath string, stripper ReplyStripper, detector LanguageDetector, logger *logrus.Logger) *Parser {
	if stripper == nil {
		stripper = QuoteStripper{}
	}
	return &Parser{
		spoolPath: spoolPath,
		stripper:  stripper,
		detector:  detector,
		logger:    logger,
	}
}

// Parse parses one raw message into a MessageRecord
func (p *Parser) Parse(raw []byte, ctx Context) (*types.MessageRecord, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, &types.ParseError{Folder: ctx.Folder, UID: ctx.UID, Err: err}
	}

	rec := &types.MessageRecord{
		Account:    ctx.Account,
		Folder:     ctx.Folder,
		UID:        ctx.UID,
		Flags:      ctx.Flags,
		MessageID:  strings.Trim(env.GetHeader("Message-ID"), "<>"),
		InReplyTo:  strings.Trim(env.GetHeader("In-Reply-To"), "<>"),
		References: splitReferences(env.GetHeader("References")),
		Subject:    env.GetHeader("Subject"),
		Headers:    p.headerMap(env),
	}

	if date, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		rec.Date = date
	} else {
		rec.Date = time.Now().UTC()
	}

	rec.From = p.parseAddresses(env, "From")
	rec.Sender = p.parseAddresses(env, "Sender")
	rec.ReplyTo = p.parseAddresses(env, "Reply-To")
	rec.To = p.parseAddresses(env, "To")
	rec.Cc = p.parseAddresses(env, "Cc")
	rec.Bcc = p.parseAddresses(env, "Bcc")

	for _, dt := range env.GetHeaderValues("Delivered-To") {
		if addr := strings.ToLower(strings.TrimSpace(strings.Trim(dt, "<>"))); addr != "" {
			rec.DeliveredTo = append(rec.DeliveredTo, addr)
		}
	}

	rec.BodyText = env.Text
	rec.BodyHTML = env.HTML
	if rec.BodyText == "" && rec.BodyHTML != "" {
		if text, err := html2text.FromString(rec.BodyHTML, html2text.Options{TextOnly: true}); err == nil {
			rec.BodyText = text
		}
	}

	rec.VisibleText = p.stripper.Strip(rec.BodyText)
	if p.detector != nil && utf8.RuneCountInString(rec.VisibleText) >= MinDetectionLength {
		if codes := p.detector.Detect(rec.VisibleText); len(codes) > 0 {
			rec.Language = LanguageName(codes[0])
		}
	}

	rec.Attachments = p.extractAttachments(env, rec.BodyHTML)

	return rec, nil
}

// parseAddresses expands one address-bearing header into normalized
// Address entries. A missing header yields nil, not an error.
func (p *Parser) parseAddresses(env *enmime.Envelope, key string) []types.Address {
	addrs, err := env.AddressList(key)
	if err != nil {
		if env.GetHeader(key) != "" {
			p.logger.WithError(err).WithField("header", key).Debug("Failed to parse address header")
		}
		return nil
	}
	return addressList(addrs)
}

// headerMap copies the recorded header set into a map, joining repeated
// headers with newlines
func (p *Parser) headerMap(env *enmime.Envelope) map[string]string {
	headers := make(map[string]string)
	for _, key := range recordedHeaders {
		values := env.GetHeaderValues(key)
		if len(values) == 0 {
			continue
		}
		headers[key] = strings.Join(values, "\n")
	}
	return headers
}

// extractAttachments persists all attachment-like parts to the spool
// and records their metadata. A part is regular when its disposition is
// exactly "attachment" and its Content-ID is not referenced from the
// HTML body; everything else counts as inline.
func (p *Parser) extractAttachments(env *enmime.Envelope, html string) []types.Attachment {
	var out []types.Attachment

	parts := make([]*enmime.Part, 0, len(env.Attachments)+len(env.Inlines)+len(env.OtherParts))
	parts = append(parts, env.Attachments...)
	parts = append(parts, env.Inlines...)
	parts = append(parts, env.OtherParts...)

	for _, part := range parts {
		if len(part.Content) == 0 && part.FileName == "" && part.ContentID == "" {
			continue
		}

		att := types.Attachment{
			ContentID:   strings.Trim(part.ContentID, "<>"),
			Name:        resolveName(part),
			ContentType: part.ContentType,
			Encoding:    part.Header.Get("Content-Transfer-Encoding"),
			Description: part.Header.Get("Content-Description"),
			Charset:     part.Charset,
			Disposition: part.Disposition,
			SizeInBytes: int64(len(part.Content)),
		}
		att.SizeInMB = roundMB(att.SizeInBytes)
		att.MimeType = sniffMimeType(part.Content)
		att.FileExtension = fileExtension(att.Name, att.MimeType)
		att.Inline = part.Disposition != "attachment" ||
			(att.ContentID != "" && strings.Contains(html, "cid:"+att.ContentID))

		if p.spoolPath != "" && len(part.Content) > 0 {
			path, err := writeSpool(p.spoolPath, part.Content)
			if err != nil {
				p.logger.WithError(err).WithField("name", att.Name).Warn("Failed to spool attachment")
			} else {
				att.SpoolPath = path
			}
		}

		out = append(out, att)
	}

	return out
}

// splitReferences splits a References header into bare message IDs
func splitReferences(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, ref := range strings.Fields(value) {
		if ref = strings.Trim(ref, "<>"); ref != "" {
			out = append(out, ref)
		}
	}
	return out
}
