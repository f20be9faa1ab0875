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

package fetch

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriveFileIDExtraction(t *testing.T) {
	cases := map[string]string{
		"https://drive.google.com/file/d/1AbCdEfGhIjKlMnOp/view?usp=sharing": "1AbCdEfGhIjKlMnOp",
		"https://drive.google.com/open?id=1AbCdEfGhIjKlMnOp":                 "1AbCdEfGhIjKlMnOp",
		"https://drive.google.com/uc?export=download&id=1AbCdEfGhIjKlMnOp":   "1AbCdEfGhIjKlMnOp",
		"https://docs.google.com/uc?id=1AbCdEfGhIjKlMnOp&export=download":    "1AbCdEfGhIjKlMnOp",
	}
	for rawURL, want := range cases {
		got, ok := driveFileID(rawURL)
		require.True(t, ok, rawURL)
		assert.Equal(t, want, got, rawURL)
	}

	_, ok := driveFileID("https://drive.google.com/drive/my-drive")
	assert.False(t, ok)
}

func TestDriveConfirmURLFromModernForm(t *testing.T) {
	body := `<html><body>
	 <p>Virus scan warning: Google Drive can't scan this file for viruses.</p>
	 <form id="download-form" action="https://drive.usercontent.google.com/download" method="get">
	  <input type="hidden" name="id" value="1AbCdEfGhIjKlMnOp">
	  <input type="hidden" name="export" value="download">
	  <input type="hidden" name="confirm" value="t">
	  <input type="hidden" name="uuid" value="d1e2a3d4-beef-4cafe">
	  <input type="submit" value="Download anyway">
	 </form></body></html>`

	confirmURL, ok := driveConfirmURL(body, "https://drive.google.com/uc?export=download&id=1AbCdEfGhIjKlMnOp")
	require.True(t, ok)

	parsed, err := url.Parse(confirmURL)
	require.NoError(t, err)
	assert.Equal(t, "drive.usercontent.google.com", parsed.Host)
	q := parsed.Query()
	assert.Equal(t, "1AbCdEfGhIjKlMnOp", q.Get("id"))
	assert.Equal(t, "t", q.Get("confirm"))
	assert.Equal(t, "d1e2a3d4-beef-4cafe", q.Get("uuid"))
}

func TestDriveConfirmURLFromLegacyLink(t *testing.T) {
	body := `<html><body>
	 <p>Virus scan warning</p>
	 <a href="/uc?export=download&amp;confirm=AbC-dEf&amp;id=1AbCdEfGhIjKlMnOp">Download anyway</a>
	</body></html>`
	base := "https://drive.google.com/uc?export=download&id=1AbCdEfGhIjKlMnOp"

	confirmURL, ok := driveConfirmURL(body, base)
	require.True(t, ok)
	assert.Equal(t, base+"&confirm=AbC-dEf", confirmURL)
}

func TestDriveConfirmURLMissingToken(t *testing.T) {
	_, ok := driveConfirmURL("<html><body>Sign in to continue</body></html>", "https://drive.google.com/uc")
	assert.False(t, ok)
}

func TestSharePointFilePathResolution(t *testing.T) {
	cases := map[string]string{
		"https://contoso.sharepoint.com/sites/media/Shared Documents/promo.mp4":                                  "/sites/media/Shared Documents/promo.mp4",
		"https://contoso.sharepoint.com/sites/media/_layouts/15/stream.aspx?id=/sites/media/Documents/clip.mov": "/sites/media/Documents/clip.mov",
		"https://contoso.sharepoint.com/sites/media/_layouts/15/stream.aspx":                                    "",
		"https://contoso.sharepoint.com/sites/media/SitePages/Home.aspx":                                        "",
	}
	for rawURL, want := range cases {
		u, err := url.Parse(rawURL)
		require.NoError(t, err)
		assert.Equal(t, want, sharePointFilePath(u), rawURL)
	}
}

func TestLayoutsPathStaysInSiteCollection(t *testing.T) {
	assert.Equal(t, "/sites/media/_layouts/15/download.aspx", layoutsPathFor("/sites/media/Documents/clip.mp4"))
	assert.Equal(t, "/teams/video/_layouts/15/download.aspx", layoutsPathFor("/teams/video/clip.mp4"))
	assert.Equal(t, "/_layouts/15/download.aspx", layoutsPathFor("/Shared Documents/clip.mp4"))
}

func TestExtractEmbeddedVideoURLPrefersHD(t *testing.T) {
	markup := `{"sd_src":"https:\/\/video.cdn\/sd.mp4","browser_native_sd_url":"https:\/\/video.cdn\/native-sd.mp4",` +
		`"browser_native_hd_url":"https:\/\/video.cdn\/native-hd.mp4?oe=ABC&efg=e30"}`

	got, ok := extractEmbeddedVideoURL(markup)
	require.True(t, ok)
	assert.Equal(t, "https://video.cdn/native-hd.mp4?oe=ABC&efg=e30", got)
}

func TestExtractEmbeddedVideoURLFallsBackToSD(t *testing.T) {
	markup := `{"browser_native_hd_url":null,"playable_url":"https:\/\/video.cdn\/playable.mp4"}`
	got, ok := extractEmbeddedVideoURL(markup)
	require.True(t, ok)
	assert.Equal(t, "https://video.cdn/playable.mp4", got)
}

func TestExtractEmbeddedVideoURLLoginWall(t *testing.T) {
	_, ok := extractEmbeddedVideoURL(`<html><body>You must log in to continue.</body></html>`)
	assert.False(t, ok)
}

func TestExtensionFromURL(t *testing.T) {
	cases := map[string]string{
		"https://cdn.example.com/promo.mp4":          "mp4",
		"https://cdn.example.com/promo.MOV?x=1":      "mov",
		"https://cdn.example.com/promo.webm":         "webm",
		"https://cdn.example.com/download?id=abc123": "mp4",
		"https://cdn.example.com/promo.exe":          "mp4",
	}
	for rawURL, want := range cases {
		assert.Equal(t, want, extensionFromURL(rawURL), rawURL)
	}
}
