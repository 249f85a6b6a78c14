package filter

import (
	"strings"
	"time"

	"github.com/brandon/mailsync/pkg/types"
)

// FieldKind is the comparison type of a registered field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindStringList
	KindNumber
	KindNumberList
	KindDate
	KindBool
)

// FieldValue is one extracted field value, tagged with its kind.
type FieldValue struct {
	Kind FieldKind
	Str  string
	Strs []string
	Num  float64
	Nums []float64
	Date time.Time
	Bool bool
}

// Record is a stage-typed view offering field access by path. Each
// stage has its own enumerated field set; paths not in the set report
// false.
type Record interface {
	Field(path string) (FieldValue, bool)
}

func str(s string) FieldValue     { return FieldValue{Kind: KindString, Str: s} }
func strs(s []string) FieldValue  { return FieldValue{Kind: KindStringList, Strs: s} }
func num(n float64) FieldValue    { return FieldValue{Kind: KindNumber, Num: n} }
func nums(n []float64) FieldValue { return FieldValue{Kind: KindNumberList, Nums: n} }
func date(t time.Time) FieldValue { return FieldValue{Kind: KindDate, Date: t} }
func boolean(b bool) FieldValue   { return FieldValue{Kind: KindBool, Bool: b} }

// headerFields is the field set available at the header checkpoint,
// before the overview entry is considered for storage.
var headerFields = map[string]func(*types.HeaderOverview) FieldValue{
	"uid":     func(o *types.HeaderOverview) FieldValue { return num(float64(o.UID)) },
	"subject": func(o *types.HeaderOverview) FieldValue { return str(o.Subject) },
	"from":    func(o *types.HeaderOverview) FieldValue { return str(o.From) },
	"to":      func(o *types.HeaderOverview) FieldValue { return str(o.To) },
	"date":    func(o *types.HeaderOverview) FieldValue { return date(o.Date) },
}

// overviewFields extends the header set with size and flag fields.
var overviewFields = map[string]func(*types.HeaderOverview) FieldValue{
	"uid":            func(o *types.HeaderOverview) FieldValue { return num(float64(o.UID)) },
	"subject":        func(o *types.HeaderOverview) FieldValue { return str(o.Subject) },
	"from":           func(o *types.HeaderOverview) FieldValue { return str(o.From) },
	"to":             func(o *types.HeaderOverview) FieldValue { return str(o.To) },
	"date":           func(o *types.HeaderOverview) FieldValue { return date(o.Date) },
	"size":           func(o *types.HeaderOverview) FieldValue { return num(float64(o.Size)) },
	"flags/seen":     func(o *types.HeaderOverview) FieldValue { return boolean(o.Flags.Seen) },
	"flags/answered": func(o *types.HeaderOverview) FieldValue { return boolean(o.Flags.Answered) },
	"flags/flagged":  func(o *types.HeaderOverview) FieldValue { return boolean(o.Flags.Flagged) },
	"flags/deleted":  func(o *types.HeaderOverview) FieldValue { return boolean(o.Flags.Deleted) },
	"flags/draft":    func(o *types.HeaderOverview) FieldValue { return boolean(o.Flags.Draft) },
	"flags/recent":   func(o *types.HeaderOverview) FieldValue { return boolean(o.Flags.Recent) },
}

// messageFields is the field set for fully parsed messages. Attachment
// sub-paths are list-valued; header sub-paths are resolved dynamically.
var messageFields = map[string]func(*types.MessageRecord) FieldValue{
	"uid":          func(m *types.MessageRecord) FieldValue { return num(float64(m.UID)) },
	"message_id":   func(m *types.MessageRecord) FieldValue { return str(m.MessageID) },
	"subject":      func(m *types.MessageRecord) FieldValue { return str(m.Subject) },
	"date":         func(m *types.MessageRecord) FieldValue { return date(m.Date) },
	"from":         func(m *types.MessageRecord) FieldValue { return strs(formatted(m.From)) },
	"to":           func(m *types.MessageRecord) FieldValue { return strs(formatted(m.To)) },
	"cc":           func(m *types.MessageRecord) FieldValue { return strs(formatted(m.Cc)) },
	"bcc":          func(m *types.MessageRecord) FieldValue { return strs(formatted(m.Bcc)) },
	"body":         func(m *types.MessageRecord) FieldValue { return str(m.BodyText) },
	"visible_text": func(m *types.MessageRecord) FieldValue { return str(m.VisibleText) },
	"language":     func(m *types.MessageRecord) FieldValue { return str(m.Language) },
	"flags/seen":   func(m *types.MessageRecord) FieldValue { return boolean(m.Flags.Seen) },
	"flags/draft":  func(m *types.MessageRecord) FieldValue { return boolean(m.Flags.Draft) },
	"attachments/count": func(m *types.MessageRecord) FieldValue {
		return num(float64(len(m.Attachments)))
	},
	"attachments/name": func(m *types.MessageRecord) FieldValue {
		var names []string
		for _, a := range m.Attachments {
			names = append(names, a.Name)
		}
		return strs(names)
	},
	"attachments/mime_type": func(m *types.MessageRecord) FieldValue {
		var mimes []string
		for _, a := range m.Attachments {
			mimes = append(mimes, a.MimeType)
		}
		return strs(mimes)
	},
	"attachments/size": func(m *types.MessageRecord) FieldValue {
		var sizes []float64
		for _, a := range m.Attachments {
			sizes = append(sizes, float64(a.SizeInBytes))
		}
		return nums(sizes)
	},
}

func formatted(addrs []types.Address) []string {
	var out []string
	for _, a := range addrs {
		out = append(out, a.Formatted)
	}
	return out
}

// OverviewView exposes a HeaderOverview under the header or overview
// stage field set.
type OverviewView struct {
	Overview *types.HeaderOverview
	Stage    types.FilterStage
}

// Field resolves a path against the stage's field set
func (v OverviewView) Field(path string) (FieldValue, bool) {
	set := overviewFields
	if v.Stage == types.StageHeader {
		set = headerFields
	}
	get, ok := set[path]
	if !ok {
		return FieldValue{}, false
	}
	return get(v.Overview), true
}

// MessageView exposes a parsed MessageRecord under the message stage
// field set.
type MessageView struct {
	Message *types.MessageRecord
}

// Field resolves a path against the message field set. Paths of the
// form headers/<Name> read the recorded header map.
func (v MessageView) Field(path string) (FieldValue, bool) {
	if name, ok := strings.CutPrefix(path, "headers/"); ok {
		value, present := v.Message.Headers[name]
		if !present {
			return FieldValue{}, false
		}
		return str(value), true
	}
	get, ok := messageFields[path]
	if !ok {
		return FieldValue{}, false
	}
	return get(v.Message), true
}
