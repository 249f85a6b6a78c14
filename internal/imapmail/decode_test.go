package imapmail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain passes through", "Weekly report", "Weekly report"},
		{"utf8 q-encoding", "=?utf-8?q?=C3=9Cbersicht?=", "Übersicht"},
		{"utf8 b-encoding", "=?UTF-8?B?R3LDvMOfZQ==?=", "Grüße"},
		{"latin1 legacy charset", "=?iso-8859-1?q?caf=E9?=", "café"},
		{"windows-1252 legacy charset", "=?windows-1252?q?na=EFve?=", "naïve"},
		{"broken encoding returned as-is", "=?utf-8?x?garbage?=", "=?utf-8?x?garbage?="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeHeader(tt.in))
		})
	}
}
