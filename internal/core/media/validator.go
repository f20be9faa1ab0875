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

// Package media provides byte-level inspection of downloaded content. Every
// download strategy runs its result through IsValidVideo before declaring
// success, because the dominant failure mode of scraping-based fetches is an
// HTML login or permission page saved with a video extension.
//
// Logic Flow:
//  1. Decode the leading bytes as text and reject anything that looks like an
//     HTML document, regardless of what appears deeper in the buffer. An
//     error page can embed binary-ish noise; the prefix is what identifies it.
//  2. Otherwise accept only buffers whose prefix matches a known container
//     signature (ISO-BMFF/MP4 ftyp variants, RIFF/AVI, QuickTime, WebM/EBML,
//     FLV). The filetype library backs the container matching.
//
// The check is pure and synchronous. Callers supply the buffer; this package
// performs no I/O.
package media

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
)

// htmlProbeSize is how many leading bytes are examined for HTML markers.
const htmlProbeSize = 200

// htmlMarkers are lowercase substrings that identify an HTML document. A
// match in the probe window rejects the buffer outright.
var htmlMarkers = []string{"<html", "<!doctype", "<head>"}

// ebmlSignature is the EBML magic shared by WebM and Matroska containers.
var ebmlSignature = []byte{0x1A, 0x45, 0xDF, 0xA3}

// IsValidVideo reports whether the buffer plausibly holds a real video file.
//
// Inputs:
//   - buf: The leading bytes of the downloaded content. A few hundred bytes
//     are enough; the whole file is never required.
//
// Outputs:
//   - bool: True only when the prefix matches a supported container signature
//     and carries no HTML markers.
func IsValidVideo(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	if LooksLikeHTML(buf) {
		return false
	}
	return matchesContainerSignature(buf)
}

// LooksLikeHTML checks the probe window for HTML/doctype markers. Download
// strategies use it to tell a login/permission page (access denied) apart
// from merely unrecognized binary content (invalid format). The window
// must decode as UTF-8 text for the markers to count: binary data that
// happens to contain "<head>" bytes past a valid container signature is not
// an error page.
func LooksLikeHTML(buf []byte) bool {
	probe := buf
	if len(probe) > htmlProbeSize {
		probe = probe[:htmlProbeSize]
	}
	if !utf8.Valid(probe) {
		// Allow a rune truncated by the window boundary.
		trimmed := probe
		for len(trimmed) > 0 && !utf8.Valid(trimmed) {
			trimmed = trimmed[:len(trimmed)-1]
		}
		if len(trimmed) < len(probe)-utf8.UTFMax {
			return false
		}
		probe = trimmed
	}
	text := strings.ToLower(string(probe))
	for _, marker := range htmlMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// matchesContainerSignature accepts the supported container families.
func matchesContainerSignature(buf []byte) bool {
	// ISO-BMFF (MP4 and QuickTime): the ftyp box starts at offset 4.
	if len(buf) >= 12 && bytes.Equal(buf[4:8], []byte("ftyp")) {
		return true
	}
	// WebM / Matroska EBML header.
	if bytes.HasPrefix(buf, ebmlSignature) {
		return true
	}
	// FLV.
	if bytes.HasPrefix(buf, []byte("FLV")) {
		return true
	}
	// RIFF/AVI and anything else the matcher table knows as video.
	return filetype.IsVideo(buf)
}

// ExtensionFor returns a best-effort file extension for a validated buffer,
// used when naming scratch files. Defaults to "mp4" when the container is
// recognized as video but carries no registered extension.
func ExtensionFor(buf []byte) string {
	if kind, err := filetype.Match(buf); err == nil && kind.Extension != "unknown" && kind.Extension != "" {
		return kind.Extension
	}
	return "mp4"
}
