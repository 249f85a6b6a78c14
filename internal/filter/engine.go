package filter

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/pkg/types"
)

// Engine evaluates declarative filter rules against stage-typed record
// views. Regular expressions are compiled once and reused across the run.
type Engine struct {
	logger  *logrus.Logger
	regexes map[string]*regexp.Regexp
}

// NewEngine creates a filter engine
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{
		logger:  logger,
		regexes: make(map[string]*regexp.Regexp),
	}
}

// Evaluate runs rules in declared order against one record view. The
// first matching skip rule halts evaluation with Proceed=false. Other
// matches accumulate: categories in match order, the last matching
// override wins. Rules naming an absent field are skipped with a
// warning. Categories are not deduplicated here; that happens at
// storage time.
func (e *Engine) Evaluate(view Record, rules []types.FilterRule) types.FilterResult {
	result := types.FilterResult{Proceed: true}

	for i := range rules {
		rule := &rules[i]

		value, ok := view.Field(rule.Field)
		if !ok {
			e.logger.WithFields(logrus.Fields{
				"field": rule.Field,
				"stage": rule.Stage,
			}).Warn("Filter rule references unknown field, skipping rule")
			continue
		}

		if !e.matches(value, &rule.Match) {
			continue
		}

		if rule.Action == types.ActionSkip {
			result.Proceed = false
			return result
		}

		if rule.Pagename != "" {
			result.PagenameOverride = rule.Pagename
		}
		result.Categories = append(result.Categories, rule.Categories...)
	}

	return result
}

// matches applies one typed predicate to a field value. Kind mismatches
// never match.
func (e *Engine) matches(value FieldValue, spec *types.MatchSpec) bool {
	switch spec.Type {
	case types.MatchNumberRange:
		switch value.Kind {
		case KindNumber:
			return inRange(value.Num, spec)
		case KindNumberList:
			for _, n := range value.Nums {
				if inRange(n, spec) {
					return true
				}
			}
		}
		return false

	case types.MatchContains:
		return anyString(value, func(s string) bool {
			return strings.Contains(strings.ToLower(s), strings.ToLower(spec.Value))
		})

	case types.MatchNotContains:
		if value.Kind != KindString && value.Kind != KindStringList {
			return false
		}
		return !anyString(value, func(s string) bool {
			return strings.Contains(strings.ToLower(s), strings.ToLower(spec.Value))
		})

	case types.MatchRegex:
		re := e.compile(spec.Value)
		if re == nil {
			return false
		}
		return anyString(value, re.MatchString)

	case types.MatchDateRange:
		if value.Kind != KindDate {
			return false
		}
		if spec.After != nil && value.Date.Before(*spec.After) {
			return false
		}
		if spec.Before != nil && !value.Date.Before(*spec.Before) {
			return false
		}
		return true

	case types.MatchBool:
		return value.Kind == KindBool && spec.Equals != nil && value.Bool == *spec.Equals

	default:
		e.logger.WithField("type", spec.Type).Warn("Unknown filter match type")
		return false
	}
}

// compile caches compiled rule regexes; a broken pattern is logged once
// and never matches.
func (e *Engine) compile(pattern string) *regexp.Regexp {
	if re, ok := e.regexes[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		e.logger.WithError(err).WithField("pattern", pattern).Warn("Invalid filter regex")
		re = nil
	}
	e.regexes[pattern] = re
	return re
}

func inRange(n float64, spec *types.MatchSpec) bool {
	if spec.Min != nil && n < *spec.Min {
		return false
	}
	if spec.Max != nil && n > *spec.Max {
		return false
	}
	return true
}

func anyString(value FieldValue, match func(string) bool) bool {
	switch value.Kind {
	case KindString:
		return match(value.Str)
	case KindStringList:
		for _, s := range value.Strs {
			if match(s) {
				return true
			}
		}
	}
	return false
}
