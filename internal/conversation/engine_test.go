package conversation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailsync/internal/record"
	"github.com/brandon/mailsync/pkg/types"
)

func TestComputeHash_OrderIndependent(t *testing.T) {
	a := ComputeHash("user", []string{"b@x", "a@x"})
	b := ComputeHash("user", []string{"a@x", "b@x"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 8)
}

func TestComputeHash_UsernameScoped(t *testing.T) {
	a := ComputeHash("user1", []string{"a@x", "b@x"})
	b := ComputeHash("user2", []string{"a@x", "b@x"})
	assert.NotEqual(t, a, b)
}

func TestComputeHash_Reproducible(t *testing.T) {
	// CRC32-IEEE of "user:a@x,b@x"; the hash is part of the storage
	// contract and must stay bit-stable.
	assert.Equal(t, ComputeHash("user", []string{"a@x", "b@x"}), ComputeHash("user", []string{"b@x", "a@x"}))
	assert.NotEqual(t, ComputeHash("user", []string{"a@x"}), ComputeHash("user", []string{"b@x"}))
}

func msgWith(from string, to []string, date time.Time) *types.MessageRecord {
	rec := &types.MessageRecord{
		From: []types.Address{{Address: from}},
		Date: date,
	}
	for _, addr := range to {
		rec.To = append(rec.To, types.Address{Address: addr})
	}
	return rec
}

func TestRelatedAddresses_SentFolder(t *testing.T) {
	msg := msgWith("me@acct.example", []string{"a@ex.com"}, time.Now())
	related := RelatedAddresses(types.FolderSent, msg, []string{"me@acct.example"})
	assert.Equal(t, []string{"me@acct.example"}, related)
}

func TestRelatedAddresses_InboxFolder(t *testing.T) {
	msg := msgWith("a@ex.com", []string{"me@acct.example", "other@ex.com"}, time.Now())
	msg.DeliveredTo = []string{"alias@acct.example"}

	related := RelatedAddresses(types.FolderInbox, msg, []string{"me@acct.example"})
	assert.ElementsMatch(t, []string{"alias@acct.example", "me@acct.example"}, related)
}

func testEngine(store record.Store) *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewEngine(store, "{account}/conversation/{hash}", logger)
}

func TestUpsert_SelfSendNeverCreates(t *testing.T) {
	store := record.NewMemStore()
	engine := testEngine(store)

	msg := msgWith("me@acct.example", []string{"me@acct.example"}, time.Now())
	hash, created, err := engine.Upsert("acct1", "me@acct.example", msg, types.FolderInbox, []string{"me@acct.example"})

	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.False(t, created)
	assert.Zero(t, store.Len(record.KindConversation))
}

func TestUpsert_CreatesAndWidens(t *testing.T) {
	store := record.NewMemStore()
	engine := testEngine(store)
	owned := []string{"me@acct.example"}

	early := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC)

	// Feed the later message first: bounds must still end up min/max.
	msg1 := msgWith("a@ex.com", []string{"me@acct.example"}, late)
	hash1, created, err := engine.Upsert("acct1", "me@acct.example", msg1, types.FolderInbox, owned)
	require.NoError(t, err)
	assert.True(t, created)

	msg2 := msgWith("a@ex.com", []string{"me@acct.example"}, early)
	hash2, created, err := engine.Upsert("acct1", "me@acct.example", msg2, types.FolderInbox, owned)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, hash1, hash2)

	doc, found, err := store.Get(record.KindConversation, "acct1/conversation/"+hash1)
	require.NoError(t, err)
	require.True(t, found)

	var conv types.ConversationRecord
	require.NoError(t, json.Unmarshal(doc, &conv))
	assert.True(t, conv.DateFirst.Equal(early))
	assert.True(t, conv.DateLast.Equal(late))
	assert.Equal(t, []string{"a@ex.com"}, conv.Participants, "owned addresses excluded from stored participants")
}

func TestUpsert_OwnedAliasPartOfIdentity(t *testing.T) {
	store := record.NewMemStore()
	engine := testEngine(store)
	owned := []string{"me@acct.example", "alias@acct.example"}

	msg1 := msgWith("a@ex.com", []string{"me@acct.example"}, time.Now())
	msg2 := msgWith("a@ex.com", []string{"alias@acct.example"}, time.Now())

	h1, _, err := engine.Upsert("acct1", "me@acct.example", msg1, types.FolderInbox, owned)
	require.NoError(t, err)
	h2, _, err := engine.Upsert("acct1", "me@acct.example", msg2, types.FolderInbox, owned)
	require.NoError(t, err)

	// Identity covers the full participant set, so reaching a
	// different owned alias is a different conversation.
	assert.NotEqual(t, h1, h2)
}

func TestUpsert_CountRecomputedFromStore(t *testing.T) {
	store := record.NewMemStore()
	engine := testEngine(store)
	owned := []string{"me@acct.example"}

	msg := msgWith("a@ex.com", []string{"me@acct.example"}, time.Now())
	hash, _, err := engine.Upsert("acct1", "me@acct.example", msg, types.FolderInbox, owned)
	require.NoError(t, err)

	// Two stored messages referencing the hash: the authoritative
	// count wins over increments.
	for _, key := range []string{"m1", "m2"} {
		doc, _ := json.Marshal(map[string]string{"conversation_hash": hash})
		require.NoError(t, store.Put(record.KindMessage, key, doc))
	}

	_, _, err = engine.Upsert("acct1", "me@acct.example", msg, types.FolderInbox, owned)
	require.NoError(t, err)

	raw, found, err := store.Get(record.KindConversation, "acct1/conversation/"+hash)
	require.NoError(t, err)
	require.True(t, found)

	var conv types.ConversationRecord
	require.NoError(t, json.Unmarshal(raw, &conv))
	assert.Equal(t, 2, conv.Count)
}

func TestParticipants_Deduplicated(t *testing.T) {
	msg := msgWith("A@ex.com", []string{"a@ex.com", "b@ex.com"}, time.Now())
	assert.Equal(t, []string{"a@ex.com", "b@ex.com"}, Participants(msg))
}
