package record

import "strings"

// ExpandPattern fills a naming formula with its variables. Placeholders
// are written {name}; unknown placeholders are left untouched.
func ExpandPattern(pattern string, vars map[string]string) string {
	out := pattern
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}
