package sync

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailsync/pkg/types"
)

type fakeSearcher struct {
	uids []uint32
	err  error
}

func (f *fakeSearcher) Search(folder string, criteria *imap.SearchCriteria) ([]uint32, error) {
	return f.uids, f.err
}

func TestResolveRange_IncrementalFirstRun(t *testing.T) {
	state := &types.FolderState{Path: "INBOX"}
	status := &types.MailboxStatus{UIDNext: 12, UIDValidity: 7}

	specs, err := ResolveRange(state, status, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "1:12", specs.Header)
	assert.Equal(t, "1:12", specs.Message)
}

func TestResolveRange_IncrementalAdvancesFromWatermark(t *testing.T) {
	state := &types.FolderState{
		Path:           "INBOX",
		UIDValidity:    7,
		LastHeaderUID:  9,
		LastMessageUID: 5,
	}
	status := &types.MailboxStatus{UIDNext: 12, UIDValidity: 7}

	specs, err := ResolveRange(state, status, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "10:12", specs.Header)
	assert.Equal(t, "6:12", specs.Message, "header and message watermarks advance independently")
}

func TestResolveRange_IncrementalNothingNew(t *testing.T) {
	state := &types.FolderState{Path: "INBOX", UIDValidity: 7, LastHeaderUID: 11}
	status := &types.MailboxStatus{UIDNext: 12, UIDValidity: 7}

	specs, err := ResolveRange(state, status, nil, false)
	require.NoError(t, err)
	assert.Empty(t, specs.Header)
	assert.Empty(t, specs.Message)
}

func TestResolveRange_UIDValidityChange(t *testing.T) {
	state := &types.FolderState{Path: "INBOX", UIDValidity: 7, LastHeaderUID: 9}
	status := &types.MailboxStatus{UIDNext: 12, UIDValidity: 8}

	_, err := ResolveRange(state, status, nil, true)
	require.Error(t, err)

	var uvErr *types.UidValidityChangedError
	require.ErrorAs(t, err, &uvErr)
	assert.Equal(t, uint32(7), uvErr.Stored)
	assert.Equal(t, uint32(8), uvErr.Current)
}

func TestResolveRange_SearchMode(t *testing.T) {
	state := &types.FolderState{
		Path: "Archive",
		Policy: types.FetchPolicy{
			Mode:     types.FetchSearch,
			Criteria: []types.SearchCriterion{{Op: "FROM", Value: "boss@corp.example"}},
		},
	}
	status := &types.MailboxStatus{UIDNext: 100, UIDValidity: 1}
	searcher := &fakeSearcher{uids: []uint32{3, 9, 5}}

	specs, err := ResolveRange(state, status, searcher, true)
	require.NoError(t, err)
	assert.Equal(t, "3,5,9", specs.Header)
	assert.Equal(t, "3,5,9", specs.Message)
}

func TestResolveRange_ExplicitModes(t *testing.T) {
	status := &types.MailboxStatus{UIDNext: 50, UIDValidity: 1}

	state := &types.FolderState{Path: "INBOX", Policy: types.FetchPolicy{Mode: types.FetchUIDFrom, From: 20}}
	specs, err := ResolveRange(state, status, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "20:50", specs.Header)
	assert.Empty(t, specs.Message, "message pass disabled when bodies are not fetched")

	state = &types.FolderState{Path: "INBOX", Policy: types.FetchPolicy{Mode: types.FetchUIDTo, To: 15}}
	specs, err = ResolveRange(state, status, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "1:15", specs.Header)

	state = &types.FolderState{Path: "INBOX", Policy: types.FetchPolicy{Mode: types.FetchUIDRange, From: 0, To: 8}}
	specs, err = ResolveRange(state, status, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "1:8", specs.Header, "lower bound clamps to 1")
}

func TestCompactUIDs(t *testing.T) {
	tests := []struct {
		name string
		uids []uint32
		want string
	}{
		{"empty", nil, ""},
		{"single", []uint32{7}, "7"},
		{"contiguous collapses", []uint32{3, 1, 2}, "1:3"},
		{"sparse stays explicit", []uint32{1, 3, 7}, "1,3,7"},
		{"duplicate breaks contiguity proof", []uint32{1, 2, 2, 3}, "1,2,2,3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompactUIDs(tt.uids))
		})
	}
}

func TestBuildSearchCriteria(t *testing.T) {
	since := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	criteria, err := BuildSearchCriteria([]types.SearchCriterion{
		{Op: "since", Date: since},
		{Op: "FROM", Value: "a@ex.com"},
		{Op: "SUBJECT", Value: "invoice"},
		{Op: "KEYWORD", Value: "\\Flagged"},
	})
	require.NoError(t, err)

	assert.True(t, criteria.Since.Equal(since))
	assert.Equal(t, []string{"a@ex.com"}, criteria.Header["From"])
	assert.Equal(t, []string{"invoice"}, criteria.Header["Subject"])
	assert.Equal(t, []string{"\\Flagged"}, criteria.WithFlags)
}

func TestBuildSearchCriteria_OnSpansOneDay(t *testing.T) {
	day := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	criteria, err := BuildSearchCriteria([]types.SearchCriterion{{Op: "ON", Date: day}})
	require.NoError(t, err)
	assert.True(t, criteria.Since.Equal(day))
	assert.True(t, criteria.Before.Equal(day.Add(24*time.Hour)))
}

func TestBuildSearchCriteria_UnknownOp(t *testing.T) {
	_, err := BuildSearchCriteria([]types.SearchCriterion{{Op: "NEAR", Value: "x"}})
	assert.Error(t, err)
}
