package message

import (
	"regexp"
	"strings"

	"github.com/brandon/mailsync/pkg/types"
)

// LanguageDetector ranks probable language codes for a text, most
// likely first. Implementations are external; detection is only
// invoked for texts of at least MinDetectionLength characters.
type LanguageDetector interface {
	Detect(text string) []string
}

// NameParser splits a display name into structured parts.
type NameParser interface {
	Parse(displayName string) types.NameParts
}

// ReplyStripper removes quoted-reply content from a plain text body,
// leaving only the visible text.
type ReplyStripper interface {
	Strip(text string) string
}

// MinDetectionLength is the minimum visible-text length, in runes,
// for language detection to be worth running.
const MinDetectionLength = 200

var (
	quoteLine  = regexp.MustCompile(`^\s*>`)
	replyIntro = regexp.MustCompile(`(?i)^on .+ wrote:\s*$|^-{2,}\s*original message\s*-{2,}|^am .+ schrieb .*:$`)
)

// QuoteStripper is the default ReplyStripper: it drops quote-prefixed
// lines and everything below a recognized reply introduction line.
type QuoteStripper struct{}

// Strip removes quoted-reply content from text
func (QuoteStripper) Strip(text string) string {
	var visible []string
	for _, line := range strings.Split(text, "\n") {
		if replyIntro.MatchString(strings.TrimSpace(line)) {
			break
		}
		if quoteLine.MatchString(line) {
			continue
		}
		visible = append(visible, line)
	}
	return strings.TrimSpace(strings.Join(visible, "\n"))
}
