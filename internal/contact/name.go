package contact

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/brandon/mailsync/pkg/types"
)

// validNamePart matches a word with exactly the case transitions a real
// name has: an upper-case letter followed by lower case, optionally
// hyphenated or apostrophized the same way (O'Brien, Saint-Exupéry).
var validNamePart = regexp.MustCompile(`^\p{Lu}[\p{Ll}.]*(?:['\x60-]\p{Lu}?[\p{Ll}]+)*$`)

// hasLetter reports whether a part contains any letter at all
func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// titleCase upper-cases the first rune and lower-cases the rest
func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// correctPart validates one parsed name part. Parts with real-name
// casing pass through; parts with garbage casing but actual letters are
// re-cased; parts that are pure parsing noise are dropped (empty
// return).
func correctPart(part string) string {
	part = strings.TrimSpace(part)
	if part == "" || !hasLetter(part) {
		return ""
	}
	if validNamePart.MatchString(part) {
		return part
	}
	return titleCase(part)
}

// CorrectNameParts applies the casing correction pass to every
// structured field of a parsed name.
func CorrectNameParts(parts types.NameParts) types.NameParts {
	out := parts
	out.First = correctPart(parts.First)
	out.Last = correctPart(parts.Last)
	out.Middle = correctPart(parts.Middle)
	out.Nick = correctPart(parts.Nick)

	out.Parts = nil
	for _, p := range parts.Parts {
		if fixed := correctPart(p); fixed != "" {
			out.Parts = append(out.Parts, fixed)
		}
	}
	return out
}

// SimpleNameParser is the fallback NameParser: whitespace splitting
// with the first token as first name and the final token as last name.
type SimpleNameParser struct{}

// Parse splits a display name into structured parts
func (SimpleNameParser) Parse(displayName string) types.NameParts {
	fields := strings.Fields(strings.TrimSpace(displayName))
	parts := types.NameParts{Parts: fields}

	switch len(fields) {
	case 0:
	case 1:
		parts.First = fields[0]
	case 2:
		parts.First = fields[0]
		parts.Last = fields[1]
	default:
		parts.First = fields[0]
		parts.Middle = strings.Join(fields[1:len(fields)-1], " ")
		parts.Last = fields[len(fields)-1]
	}

	return parts
}
