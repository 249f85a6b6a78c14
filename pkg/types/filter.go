package types

import "time"

// FilterStage names the checkpoint a rule is evaluated at.
type FilterStage string

const (
	StageHeader   FilterStage = "header"
	StageOverview FilterStage = "overview"
	StageMessage  FilterStage = "message"
)

// Predicate types understood by the filter engine.
const (
	MatchNumberRange = "number-range"
	MatchContains    = "contains"
	MatchNotContains = "not-contains"
	MatchRegex       = "regex"
	MatchDateRange   = "date-range"
	MatchBool        = "bool"
)

// Filter actions.
const (
	ActionSkip     = "skip"
	ActionContinue = "continue"
)

// MatchSpec is the typed predicate of one filter rule. Exactly the
// fields relevant to Type are consulted.
type MatchSpec struct {
	Type   string     `json:"type" yaml:"type"`
	Min    *float64   `json:"min,omitempty" yaml:"min,omitempty"`
	Max    *float64   `json:"max,omitempty" yaml:"max,omitempty"`
	Value  string     `json:"value,omitempty" yaml:"value,omitempty"`
	After  *time.Time `json:"after,omitempty" yaml:"after,omitempty"`
	Before *time.Time `json:"before,omitempty" yaml:"before,omitempty"`
	Equals *bool      `json:"equals,omitempty" yaml:"equals,omitempty"`
}

// FilterRule is one declarative rule. Rules are evaluated in declared
// order; the first matching skip rule halts evaluation, other matches
// accumulate categories and the last override wins.
type FilterRule struct {
	Stage      FilterStage `json:"stage" yaml:"stage"`
	Field      string      `json:"field" yaml:"field"`
	Match      MatchSpec   `json:"match" yaml:"match"`
	Action     string      `json:"action" yaml:"action"`
	Pagename   string      `json:"pagename,omitempty" yaml:"pagename,omitempty"`
	Categories []string    `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// FilterResult is the outcome of evaluating all rules of one stage.
type FilterResult struct {
	Proceed          bool
	PagenameOverride string
	Categories       []string
}
