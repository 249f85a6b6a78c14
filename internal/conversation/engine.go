package conversation

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/message"
	"github.com/brandon/mailsync/internal/record"
	"github.com/brandon/mailsync/pkg/types"
)

// ComputeHash derives the stable conversation identifier for a
// participant set: addresses sorted ascending, comma-joined, prefixed
// with the mailbox username, CRC32, hex. The input is the full
// participant set, before owned-address exclusion; exclusion only
// affects what is stored, never the identity.
func ComputeHash(mailboxUsername string, participants []string) string {
	sorted := append([]string(nil), participants...)
	sort.Strings(sorted)
	payload := mailboxUsername + ":" + strings.Join(sorted, ",")
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(payload)))
}

// RelatedAddresses determines which mailbox-owned addresses a message
// touches. In sent and draft folders that is the message's own From and
// Sender; everywhere else it is Delivered-To plus any recipient that is
// a known owned address.
func RelatedAddresses(folderType types.FolderType, msg *types.MessageRecord, owned []string) []string {
	var related []string

	switch folderType {
	case types.FolderSent, types.FolderDraft:
		related = append(related, message.AddressStrings(msg.From)...)
		related = append(related, message.AddressStrings(msg.Sender)...)
	default:
		related = append(related, msg.DeliveredTo...)
		ownedSet := toSet(owned)
		for _, addr := range recipientAddresses(msg) {
			if ownedSet[addr] {
				related = append(related, addr)
			}
		}
	}

	return dedupe(related)
}

// Participants collects every address on the message: From, To, Cc, Bcc.
func Participants(msg *types.MessageRecord) []string {
	var all []string
	all = append(all, message.AddressStrings(msg.From)...)
	all = append(all, recipientAddresses(msg)...)
	return dedupe(all)
}

// Engine maintains conversation aggregates in the record store.
type Engine struct {
	store   record.Store
	pattern string
	logger  *logrus.Logger
}

// NewEngine creates a conversation engine using the account's
// conversation naming formula.
func NewEngine(store record.Store, pattern string, logger *logrus.Logger) *Engine {
	return &Engine{store: store, pattern: pattern, logger: logger}
}

// Upsert merges one message into its conversation aggregate. The
// returned hash is always valid for the message; created reports
// whether a new conversation record was written. A message whose
// participant set is empty after excluding owned addresses (a
// self-send) never creates a conversation.
func (e *Engine) Upsert(account, mailboxUsername string, msg *types.MessageRecord, folderType types.FolderType, owned []string) (string, bool, error) {
	participants := Participants(msg)
	hash := ComputeHash(mailboxUsername, participants)

	stored := excludeOwned(participants, owned)
	if len(stored) == 0 {
		return hash, false, nil
	}

	related := RelatedAddresses(folderType, msg, owned)
	key := record.ExpandPattern(e.pattern, map[string]string{
		"account": account,
		"hash":    hash,
	})

	existing, found, err := e.store.Get(record.KindConversation, key)
	if err != nil {
		return hash, false, err
	}

	conv := types.ConversationRecord{
		Account:      account,
		Hash:         hash,
		Participants: stored,
		Related:      related,
		DateFirst:    msg.Date,
		DateLast:     msg.Date,
		Count:        1,
	}

	created := !found
	if found {
		var prev types.ConversationRecord
		if err := json.Unmarshal(existing, &prev); err != nil {
			return hash, false, &types.StorageError{Kind: record.KindConversation, Key: key, Err: err}
		}
		conv = mergeConversations(prev, conv)
	}

	// The count is recomputed from stored messages when possible, so a
	// retried batch does not inflate it.
	if count, err := e.store.Count(record.KindMessage, "conversation_hash", hash); err == nil && count > 0 {
		conv.Count = count
	} else if found {
		conv.Count++
	}

	doc, err := json.Marshal(conv)
	if err != nil {
		return hash, false, &types.StorageError{Kind: record.KindConversation, Key: key, Err: err}
	}
	if err := e.store.Put(record.KindConversation, key, doc); err != nil {
		return hash, false, err
	}

	return hash, created, nil
}

// mergeConversations unions participants and related addresses and
// widens the date bounds; bounds only ever widen.
func mergeConversations(prev, next types.ConversationRecord) types.ConversationRecord {
	out := prev
	out.Participants = dedupe(append(out.Participants, next.Participants...))
	out.Related = dedupe(append(out.Related, next.Related...))
	if !next.DateFirst.IsZero() && (out.DateFirst.IsZero() || next.DateFirst.Before(out.DateFirst)) {
		out.DateFirst = next.DateFirst
	}
	if next.DateLast.After(out.DateLast) {
		out.DateLast = next.DateLast
	}
	return out
}

func recipientAddresses(msg *types.MessageRecord) []string {
	var out []string
	out = append(out, message.AddressStrings(msg.To)...)
	out = append(out, message.AddressStrings(msg.Cc)...)
	out = append(out, message.AddressStrings(msg.Bcc)...)
	return out
}

func excludeOwned(addrs, owned []string) []string {
	ownedSet := toSet(owned)
	var out []string
	for _, a := range addrs {
		if !ownedSet[a] {
			out = append(out, a)
		}
	}
	return out
}

func toSet(addrs []string) map[string]bool {
	set := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		set[strings.ToLower(a)] = true
	}
	return set
}

func dedupe(addrs []string) []string {
	seen := make(map[string]bool, len(addrs))
	var out []string
	for _, a := range addrs {
		a = strings.ToLower(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
