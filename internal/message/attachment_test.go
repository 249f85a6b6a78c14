package message

import (
	"net/textproto"
	"testing"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpoolName(t *testing.T) {
	a, err := spoolName()
	require.NoError(t, err)
	b, err := spoolName()
	require.NoError(t, err)

	assert.Regexp(t, `^[0-9a-f]{32}\.bin$`, a)
	assert.NotEqual(t, a, b)
}

func TestNameCorrupted(t *testing.T) {
	tests := []struct {
		name      string
		corrupted bool
	}{
		{"report.pdf", false},
		{"Übersicht.xlsx", false},
		{"", true},
		{"????", true},
		{"____", true},
		{"A�B�C", true},
		{"one�bad.txt", false},
		{string([]byte{0xff, 0xfe, 0x41}), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.corrupted, nameCorrupted(tt.name), "name %q", tt.name)
	}
}

func TestResolveName_RecoversExtendedParameter(t *testing.T) {
	part := &enmime.Part{
		FileName: "????",
		Header: textproto.MIMEHeader{
			"Content-Disposition": []string{
				"attachment; filename*=utf-8''%C3%9Cbersicht.pdf",
			},
		},
	}
	assert.Equal(t, "Übersicht.pdf", resolveName(part))
}

func TestResolveName_FallsBackToContentID(t *testing.T) {
	part := &enmime.Part{
		FileName:  "",
		ContentID: "<img-1@example>",
		Header:    textproto.MIMEHeader{},
	}
	assert.Equal(t, "attachment-img-1@example", resolveName(part))
}

func TestResolveName_Unknown(t *testing.T) {
	part := &enmime.Part{Header: textproto.MIMEHeader{}}
	assert.Equal(t, "unknown", resolveName(part))
}

func TestSniffMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", sniffMimeType([]byte("%PDF-1.4 something")))
	assert.Equal(t, "application/octet-stream", sniffMimeType(nil))
	assert.Equal(t, "text/html", sniffMimeType([]byte("<html><body>x</body></html>")))
}

func TestFileExtension(t *testing.T) {
	assert.Equal(t, "pdf", fileExtension("report.pdf", "application/octet-stream"))
	assert.NotEmpty(t, fileExtension("noext", "text/html"))
	assert.Empty(t, fileExtension("noext", "application/x-nonexistent-type"))
}

func TestRoundMB(t *testing.T) {
	assert.Equal(t, 0.0, roundMB(0))
	assert.Equal(t, 1.0, roundMB(1024*1024))
	assert.Equal(t, 1.5, roundMB(1536*1024))
	assert.Equal(t, 0.25, roundMB(256*1024))
}
