package record

import (
	"encoding/json"
	"sync"
)

// MemStore is an in-memory Store used in tests and embedded setups.
type MemStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]json.RawMessage
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string]map[string]json.RawMessage)}
}

// Get returns the document stored under (kind, key)
func (s *MemStore) Get(kind, key string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[kind][key]
	return doc, ok, nil
}

// Put stores a document under (kind, key)
func (s *MemStore) Put(kind, key string, doc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs[kind] == nil {
		s.docs[kind] = make(map[string]json.RawMessage)
	}
	s.docs[kind][key] = append(json.RawMessage(nil), doc...)
	return nil
}

// Query returns all documents of a kind whose top-level field equals value
func (s *MemStore) Query(kind, field, value string) ([]StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StoredRecord
	for key, doc := range s.docs[kind] {
		var fields map[string]interface{}
		if err := json.Unmarshal(doc, &fields); err != nil {
			continue
		}
		if str, ok := fields[field].(string); ok && str == value {
			out = append(out, StoredRecord{Kind: kind, Key: key, Data: doc})
		}
	}
	return out, nil
}

// Count reports how many documents Query would return
func (s *MemStore) Count(kind, field, value string) (int, error) {
	recs, err := s.Query(kind, field, value)
	return len(recs), err
}

// Len reports the number of documents of one kind
func (s *MemStore) Len(kind string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[kind])
}
