package sync

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"

	"github.com/brandon/mailsync/pkg/types"
)

// Searcher runs a UID search; satisfied by imapmail.Connection.
type Searcher interface {
	Search(folder string, criteria *imap.SearchCriteria) ([]uint32, error)
}

// RangeSpecs is the outcome of watermark resolution: the UID set to
// request for each pass. An empty spec means the pass has nothing to do.
type RangeSpecs struct {
	Header  string
	Message string
}

// ResolveRange computes the exact UID ranges to fetch for one folder
// pass, from its fetch policy and the live folder status. In
// incremental mode the stored high-water marks drive the range; a
// UID-validity change fails resolution rather than producing a
// meaningless range.
func ResolveRange(state *types.FolderState, status *types.MailboxStatus, searcher Searcher, fetchBody bool) (RangeSpecs, error) {
	var specs RangeSpecs

	if state.UIDValidity != 0 && state.UIDValidity != status.UIDValidity {
		return specs, &types.UidValidityChangedError{
			Folder:  state.Path,
			Stored:  state.UIDValidity,
			Current: status.UIDValidity,
		}
	}

	switch state.Policy.Mode {
	case types.FetchSearch:
		criteria, err := BuildSearchCriteria(state.Policy.Criteria)
		if err != nil {
			return specs, err
		}
		uids, err := searcher.Search(state.Path, criteria)
		if err != nil {
			return specs, err
		}
		spec := CompactUIDs(uids)
		specs.Header = spec
		if fetchBody {
			specs.Message = spec
		}

	case types.FetchUIDFrom:
		spec := explicitRange(state.Policy.From, status.UIDNext)
		specs.Header = spec
		if fetchBody {
			specs.Message = spec
		}

	case types.FetchUIDTo:
		spec := explicitRange(1, state.Policy.To)
		specs.Header = spec
		if fetchBody {
			specs.Message = spec
		}

	case types.FetchUIDRange:
		spec := explicitRange(state.Policy.From, state.Policy.To)
		specs.Header = spec
		if fetchBody {
			specs.Message = spec
		}

	default: // incremental
		specs.Header = incrementalRange(state.LastHeaderUID, status.UIDNext)
		if fetchBody {
			specs.Message = incrementalRange(state.LastMessageUID, status.UIDNext)
		}
	}

	return specs, nil
}

// incrementalRange is (lastUID+1):uidnext, or empty when nothing new
func incrementalRange(lastUID, uidNext uint32) string {
	from := lastUID + 1
	if from >= uidNext {
		return ""
	}
	return fmt.Sprintf("%d:%d", from, uidNext)
}

// explicitRange clamps the lower bound to >= 1 and emits from:to
func explicitRange(from, to uint32) string {
	if from < 1 {
		from = 1
	}
	if to < from {
		return ""
	}
	return fmt.Sprintf("%d:%d", from, to)
}

// CompactUIDs renders a UID result set as a range spec. The sorted set
// collapses to first:last only when it is provably contiguous
// (len == last-first+1); anything ambiguous stays an explicit list.
func CompactUIDs(uids []uint32) string {
	if len(uids) == 0 {
		return ""
	}

	sorted := append([]uint32(nil), uids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if len(sorted) == 1 {
		return strconv.FormatUint(uint64(sorted[0]), 10)
	}

	first, last := sorted[0], sorted[len(sorted)-1]
	if uint32(len(sorted)) == last-first+1 {
		return fmt.Sprintf("%d:%d", first, last)
	}

	parts := make([]string, len(sorted))
	for i, uid := range sorted {
		parts[i] = strconv.FormatUint(uint64(uid), 10)
	}
	return strings.Join(parts, ",")
}

// BuildSearchCriteria converts typed search terms into an IMAP search
// expression. Date ops take a literal date, text ops an escaped string;
// the IMAP library owns the wire escaping.
func BuildSearchCriteria(terms []types.SearchCriterion) (*imap.SearchCriteria, error) {
	criteria := imap.NewSearchCriteria()

	for _, term := range terms {
		switch strings.ToUpper(term.Op) {
		case "SINCE":
			criteria.Since = term.Date
		case "BEFORE":
			criteria.Before = term.Date
		case "ON":
			criteria.Since = term.Date
			criteria.Before = term.Date.Add(24 * time.Hour)
		case "FROM", "TO", "CC", "BCC", "SUBJECT":
			criteria.Header.Add(canonicalHeader(term.Op), term.Value)
		case "BODY":
			criteria.Body = append(criteria.Body, term.Value)
		case "TEXT":
			criteria.Text = append(criteria.Text, term.Value)
		case "KEYWORD":
			criteria.WithFlags = append(criteria.WithFlags, term.Value)
		case "UNKEYWORD":
			criteria.WithoutFlags = append(criteria.WithoutFlags, term.Value)
		default:
			return nil, fmt.Errorf("unknown search op %q", term.Op)
		}
	}

	return criteria, nil
}

func canonicalHeader(op string) string {
	op = strings.ToUpper(op)
	switch op {
	case "FROM":
		return "From"
	case "TO":
		return "To"
	case "CC":
		return "Cc"
	case "BCC":
		return "Bcc"
	case "SUBJECT":
		return "Subject"
	}
	return op
}
