package record

import "encoding/json"

// Record kinds stored by the ingestion pipeline.
const (
	KindMailbox      = "mailbox"
	KindFolder       = "folder"
	KindHeader       = "header"
	KindMessage      = "message"
	KindContact      = "contact"
	KindConversation = "conversation"
	KindJob          = "job"
)

// StoredRecord is one document returned from a query.
type StoredRecord struct {
	Kind string
	Key  string
	Data json.RawMessage
}

// Store is the document store the ingestion core writes derived records
// to. Implementations must make Put a full-document replace; merge
// semantics live in the typed merge functions of the callers.
type Store interface {
	// Get returns the document stored under (kind, key). The boolean
	// reports presence; absence is not an error.
	Get(kind, key string) (json.RawMessage, bool, error)

	// Put stores a document under (kind, key), replacing any previous one.
	Put(kind, key string, doc json.RawMessage) error

	// Query returns all documents of a kind whose top-level JSON field
	// equals value. An empty result is valid and not an error.
	Query(kind, field, value string) ([]StoredRecord, error)

	// Count reports how many documents Query would return.
	Count(kind, field, value string) (int, error)
}
