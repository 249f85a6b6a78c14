package contact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/message"
	"github.com/brandon/mailsync/internal/record"
	"github.com/brandon/mailsync/pkg/types"
)

// Resolver derives and maintains contact identities. The lookup cache
// is owned by the resolver instance and lives for one sync run; it is
// never shared process-wide.
type Resolver struct {
	store   record.Store
	parser  message.NameParser
	pattern string
	cache   *lru.Cache[string, *types.ContactRecord]
	logger  *logrus.Logger
}

// NewResolver creates a contact resolver using the account's contact
// naming formula. parser may be nil, in which case the whitespace
// splitter is used.
func NewResolver(store record.Store, parser message.NameParser, pattern string, cacheSize int, logger *logrus.Logger) (*Resolver, error) {
	if parser == nil {
		parser = SimpleNameParser{}
	}
	if cacheSize <= 0 {
		cacheSize = 512
	}
	cache, err := lru.New[string, *types.ContactRecord](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create contact cache: %w", err)
	}
	return &Resolver{
		store:   store,
		parser:  parser,
		pattern: pattern,
		cache:   cache,
		logger:  logger,
	}, nil
}

// Resolve merges one observation of (name, email) into the stored
// contact. email is mandatory. created reports a new contact record,
// written reports whether anything was persisted (identical merges are
// not re-written).
func (r *Resolver) Resolve(account, name, email string, seen time.Time, language, conversationHash string) (created, written bool, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, false, fmt.Errorf("contact requires an email address")
	}

	fromLocalPart := false
	name = strings.TrimSpace(name)
	if name == "" {
		name = displayNameFromLocalPart(email)
		fromLocalPart = true
	}

	parts := CorrectNameParts(r.parser.Parse(name))

	next := types.ContactRecord{
		Account:     account,
		Email:       email,
		Name:        parts,
		DisplayName: name,
		Emails:      []string{email},
		SeenSince:   seen,
		SeenUntil:   seen,
	}
	if language != "" {
		next.Languages = []string{language}
	}
	if conversationHash != "" {
		next.Conversations = []string{conversationHash}
	}

	key := record.ExpandPattern(r.pattern, map[string]string{
		"account": account,
		"email":   email,
	})

	prev, found, err := r.lookup(key)
	if err != nil {
		return false, false, err
	}

	merged := next
	if found {
		merged = mergeContacts(*prev, next, fromLocalPart)
	}

	if found && contactsEqual(*prev, merged) {
		return false, false, nil
	}

	doc, err := json.Marshal(merged)
	if err != nil {
		return false, false, &types.StorageError{Kind: record.KindContact, Key: key, Err: err}
	}
	if err := r.store.Put(record.KindContact, key, doc); err != nil {
		return false, false, err
	}
	r.cache.Add(key, &merged)

	return !found, true, nil
}

// lookup reads a contact through the per-run cache
func (r *Resolver) lookup(key string) (*types.ContactRecord, bool, error) {
	if rec, ok := r.cache.Get(key); ok {
		return rec, true, nil
	}

	doc, found, err := r.store.Get(record.KindContact, key)
	if err != nil || !found {
		return nil, false, err
	}

	var rec types.ContactRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, false, &types.StorageError{Kind: record.KindContact, Key: key, Err: err}
	}
	r.cache.Add(key, &rec)
	return &rec, true, nil
}

// mergeContacts deep-merges a new observation into an existing contact.
// When the new name came from a real display name, its structured
// fields take precedence; when it was synthesized from the local part,
// the existing data wins. List fields become deduplicated unions and
// the seen bounds only widen.
func mergeContacts(prev, next types.ContactRecord, fromLocalPart bool) types.ContactRecord {
	out := prev

	if fromLocalPart {
		if out.DisplayName == "" {
			out.DisplayName = next.DisplayName
		}
		if emptyName(out.Name) {
			out.Name = next.Name
		}
	} else {
		out.DisplayName = next.DisplayName
		out.Name = preferNewName(prev.Name, next.Name)
	}

	out.Emails = unionStrings(prev.Emails, next.Emails)
	out.Languages = unionStrings(prev.Languages, next.Languages)
	out.Conversations = unionStrings(prev.Conversations, next.Conversations)

	if !next.SeenSince.IsZero() && (out.SeenSince.IsZero() || next.SeenSince.Before(out.SeenSince)) {
		out.SeenSince = next.SeenSince
	}
	if next.SeenUntil.After(out.SeenUntil) {
		out.SeenUntil = next.SeenUntil
	}

	return out
}

// preferNewName takes the new structured fields where present, keeping
// old values for fields the new parse left empty.
func preferNewName(old, new types.NameParts) types.NameParts {
	out := new
	if out.First == "" {
		out.First = old.First
	}
	if out.Last == "" {
		out.Last = old.Last
	}
	if out.Middle == "" {
		out.Middle = old.Middle
	}
	if out.Nick == "" {
		out.Nick = old.Nick
	}
	if out.Initials == "" {
		out.Initials = old.Initials
	}
	if out.Suffix == "" {
		out.Suffix = old.Suffix
	}
	if out.Salutation == "" {
		out.Salutation = old.Salutation
	}
	if len(out.Parts) == 0 {
		out.Parts = old.Parts
	}
	return out
}

func emptyName(n types.NameParts) bool {
	return n.First == "" && n.Last == "" && n.Middle == "" && len(n.Parts) == 0
}

// contactsEqual compares two contacts by canonical JSON form
func contactsEqual(a, b types.ContactRecord) bool {
	aj, err1 := json.Marshal(a)
	bj, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && bytes.Equal(aj, bj)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// displayNameFromLocalPart synthesizes a display name from the local
// part of an address: dots become spaces, words are title-cased.
func displayNameFromLocalPart(email string) string {
	local := email
	if idx := strings.Index(email, "@"); idx >= 0 {
		local = email[:idx]
	}
	words := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '_' })
	for i, w := range words {
		words[i] = titleCase(w)
	}
	return strings.Join(words, " ")
}
