package imapmail

import (
	"io"
	"mime"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// legacyCharsets covers the encodings still common in the wild that the
// stdlib decoder does not know about.
var legacyCharsets = map[string]encoding.Encoding{
	"windows-1250": charmap.Windows1250,
	"windows-1251": charmap.Windows1251,
	"windows-1252": charmap.Windows1252,
	"iso-8859-1":   charmap.ISO8859_1,
	"iso-8859-2":   charmap.ISO8859_2,
	"iso-8859-15":  charmap.ISO8859_15,
	"koi8-r":       charmap.KOI8R,
}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		if enc, ok := legacyCharsets[strings.ToLower(charset)]; ok {
			return enc.NewDecoder().Reader(input), nil
		}
		// Unknown charsets pass through undecoded rather than failing
		// the whole header.
		return input, nil
	},
}

// DecodeHeader decodes RFC 2047 encoded words in a header value. Values
// that fail to decode are returned as-is.
func DecodeHeader(value string) string {
	if !strings.Contains(value, "=?") {
		return value
	}
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
