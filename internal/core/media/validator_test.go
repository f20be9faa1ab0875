// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package media_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jaycherian/go-social-publisher/internal/core/media"
)

// mp4Prefix builds an ISO-BMFF prefix with the given ftyp major brand.
func mp4Prefix(brand string) []byte {
	buf := []byte{0x00, 0x00, 0x00, 0x20}
	buf = append(buf, []byte("ftyp")...)
	buf = append(buf, []byte(brand)...)
	buf = append(buf, make([]byte, 16)...)
	return buf
}

func TestRejectsHTMLDocuments(t *testing.T) {
	cases := map[string][]byte{
		"doctype":    []byte("<!DOCTYPE html><html><body>Sign in</body></html>"),
		"html tag":   []byte("\n\n  <html lang=\"en\"><head><title>Login</title></head>"),
		"head tag":   []byte("junk junk <head><meta charset=\"utf-8\"></head>"),
		"mixed case": []byte("<HTML><BODY>Access denied</BODY></HTML>"),
	}
	for name, buf := range cases {
		assert.False(t, media.IsValidVideo(buf), name)
	}
}

func TestRejectsHTMLEvenWithLaterSignature(t *testing.T) {
	// An error page that embeds real container bytes past the prefix must
	// still be rejected: only the leading window decides.
	buf := []byte("<!DOCTYPE html><html><body>")
	buf = append(buf, mp4Prefix("isom")...)
	assert.False(t, media.IsValidVideo(buf))
}

func TestAcceptsContainerSignatures(t *testing.T) {
	avi := append([]byte("RIFF"), 0x24, 0x00, 0x00, 0x00)
	avi = append(avi, []byte("AVI LIST")...)

	cases := map[string][]byte{
		"mp4 isom":  mp4Prefix("isom"),
		"mp4 mp42":  mp4Prefix("mp42"),
		"quicktime": mp4Prefix("qt  "),
		"webm/ebml": append([]byte{0x1A, 0x45, 0xDF, 0xA3}, make([]byte, 20)...),
		"flv":       append([]byte("FLV"), 0x01, 0x05, 0x00, 0x00, 0x00, 0x09),
		"riff/avi":  avi,
	}
	for name, buf := range cases {
		assert.True(t, media.IsValidVideo(buf), name)
	}
}

func TestRejectsUnknownPrefixes(t *testing.T) {
	cases := map[string][]byte{
		"empty":      {},
		"json":       []byte(`{"error": "permission denied"}`),
		"plain text": []byte("quota exceeded, try again later"),
		"zeros":      bytes.Repeat([]byte{0x00}, 64),
		"png":        {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	}
	for name, buf := range cases {
		assert.False(t, media.IsValidVideo(buf), name)
	}
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, "mp4", media.ExtensionFor(mp4Prefix("isom")))
	assert.Equal(t, "flv", media.ExtensionFor(append([]byte("FLV"), 0x01, 0x05, 0x00, 0x00, 0x00, 0x09)))
	// Unrecognized content falls back to mp4 for scratch naming.
	assert.Equal(t, "mp4", media.ExtensionFor([]byte("garbage")))
}
