package message

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jhillyerd/enmime"
)

// placeholderName matches decoded names that carry no information,
// e.g. the all-question-mark output of a failed charset conversion.
var placeholderName = regexp.MustCompile(`^[?_#\s]+$`)

// spoolName returns a collision-resistant random filename for attachment
// content, so attacker-controlled names never reach the filesystem.
func spoolName() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate spool name: %w", err)
	}
	return hex.EncodeToString(buf) + ".bin", nil
}

// writeSpool persists attachment content under a random name in dir and
// returns the full path.
func writeSpool(dir string, content []byte) (string, error) {
	name, err := spoolName()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0600); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	return path, nil
}

// nameCorrupted reports whether a decoded attachment name is unusable:
// invalid UTF-8, multiple replacement characters, or pure placeholder.
func nameCorrupted(name string) bool {
	if name == "" {
		return true
	}
	if !utf8.ValidString(name) {
		return true
	}
	if strings.Count(name, "�") >= 2 {
		return true
	}
	return placeholderName.MatchString(name)
}

// resolveName recovers a usable attachment filename. Order: the decoded
// FileName, then the RFC 2231 extended filename/name parameters, then a
// content-id derived name, then "unknown".
func resolveName(p *enmime.Part) string {
	if !nameCorrupted(p.FileName) {
		return p.FileName
	}

	for _, header := range []string{"Content-Disposition", "Content-Type"} {
		raw := p.Header.Get(header)
		if raw == "" {
			continue
		}
		_, params, err := mime.ParseMediaType(raw)
		if err != nil {
			continue
		}
		for _, key := range []string{"filename", "name"} {
			if v := params[key]; !nameCorrupted(v) {
				return v
			}
		}
	}

	if cid := strings.Trim(p.ContentID, "<>"); cid != "" {
		return "attachment-" + cid
	}

	return "unknown"
}

// sniffMimeType determines the real content type from the bytes rather
// than trusting the declared Content-Type.
func sniffMimeType(content []byte) string {
	if len(content) == 0 {
		return "application/octet-stream"
	}
	sniffed := http.DetectContentType(content)
	if idx := strings.Index(sniffed, ";"); idx >= 0 {
		sniffed = sniffed[:idx]
	}
	return strings.TrimSpace(sniffed)
}

// fileExtension derives an extension from the resolved name, falling
// back to the sniffed MIME type.
func fileExtension(name, mimeType string) string {
	if ext := filepath.Ext(name); ext != "" {
		return strings.TrimPrefix(ext, ".")
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return ""
}

// roundMB converts a byte count to megabytes rounded to two decimals
func roundMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}
