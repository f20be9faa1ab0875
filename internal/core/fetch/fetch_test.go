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

package fetch_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/go-social-publisher/internal/core/fetch"
	"github.com/jaycherian/go-social-publisher/internal/core/model"
	"github.com/jaycherian/go-social-publisher/internal/platform"
)

// testFetchConfig returns a fetch configuration with windows tightened for
// tests and the minimum-size gate lowered so fixtures stay small.
func testFetchConfig() platform.Fetch {
	return platform.Fetch{
		StallTimeoutSeconds:   2,
		AttemptTimeoutSeconds: 10,
		MinVideoSizeBytes:     64,
		SizeTolerancePercent:  0.1,
		UserAgent:             "publisher-test/1.0",
		YtDlpPath:             "yt-dlp",
	}
}

func newTestFetcher(t *testing.T) *fetch.Fetcher {
	t.Helper()
	return fetch.NewFetcher(testFetchConfig(), t.TempDir())
}

// videoBody builds a payload that passes signature validation and the
// minimum-size gate: an ISO-BMFF prefix padded with zeros.
func videoBody(size int) []byte {
	buf := []byte{0x00, 0x00, 0x00, 0x20}
	buf = append(buf, []byte("ftypisom")...)
	buf = append(buf, make([]byte, size-len(buf))...)
	return buf
}

// strategyFor resolves the single strategy table entry for a direct URL.
func strategyFor(t *testing.T, f *fetch.Fetcher, rawURL string) fetch.Strategy {
	t.Helper()
	ref, ok := model.NewVideoReference(rawURL)
	require.True(t, ok)
	strategies, err := f.StrategiesFor(ref)
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	return strategies[0]
}

func TestDirectDownloadProducesScratchFile(t *testing.T) {
	body := videoBody(4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "publisher-test/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	f := newTestFetcher(t)
	result, err := strategyFor(t, f, server.URL+"/clip.mp4").Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(len(body)), result.SizeBytes)
	assert.Equal(t, "direct_download", result.Strategy)

	info, err := os.Stat(result.FilePath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), info.Size())
}

func TestDownloadRejectsHTMLContentType(t *testing.T) {
	// A public-looking link that serves a login page must fail before any
	// bytes hit the scratch directory, classified as an access problem.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>Sign in to continue</body></html>"))
	}))
	defer server.Close()

	scratch := t.TempDir()
	f := fetch.NewFetcher(testFetchConfig(), scratch)
	_, err := strategyFor(t, f, server.URL+"/clip.mp4").Fetch(context.Background())

	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.ErrAccessDenied, perr.Kind)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "no scratch file may be written for rejected content")
}

func TestDownloadRejectsHTMLBodyWithoutContentType(t *testing.T) {
	// Same login page, but the server omits the Content-Type header. The
	// byte-signature check must catch it after streaming.
	page := append([]byte("<!DOCTYPE html><html><body>Sign in</body></html>"), make([]byte, 2048)...)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(page)
	}))
	defer server.Close()

	scratch := t.TempDir()
	f := fetch.NewFetcher(testFetchConfig(), scratch)
	_, err := strategyFor(t, f, server.URL+"/clip.mp4").Fetch(context.Background())

	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.ErrAccessDenied, perr.Kind)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial scratch files must be removed on failure")
}

func TestDownloadRejectsUnknownBinary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(make([]byte, 4096)) // all zeros, no container signature
	}))
	defer server.Close()

	f := newTestFetcher(t)
	_, err := strategyFor(t, f, server.URL).Fetch(context.Background())

	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.ErrInvalidFormat, perr.Kind)
}

func TestDownloadRejectsTruncatedBody(t *testing.T) {
	// The server advertises more bytes than it delivers. The client sees a
	// short read, which must classify as an integrity failure and leave no
	// partial file behind.
	body := videoBody(4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)*2))
		_, _ = w.Write(body)
	}))
	defer server.Close()

	scratch := t.TempDir()
	f := fetch.NewFetcher(testFetchConfig(), scratch)
	_, err := strategyFor(t, f, server.URL+"/clip.mp4").Fetch(context.Background())

	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.ErrDownloadIntegrityFailure, perr.Kind)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadRejectsFileBelowMinimumSize(t *testing.T) {
	cfg := testFetchConfig()
	cfg.MinVideoSizeBytes = 1 << 20
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(videoBody(4096))
	}))
	defer server.Close()

	f := fetch.NewFetcher(cfg, t.TempDir())
	_, err := strategyFor(t, f, server.URL+"/clip.mp4").Fetch(context.Background())

	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.ErrDownloadIntegrityFailure, perr.Kind)
}

func TestDownloadClassifiesHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   model.ErrorKind
	}{
		{http.StatusNotFound, model.ErrSourceUnavailable},
		{http.StatusGone, model.ErrSourceUnavailable},
		{http.StatusUnauthorized, model.ErrAccessDenied},
		{http.StatusForbidden, model.ErrAccessDenied},
		{http.StatusTooManyRequests, model.ErrQuotaExceeded},
		{http.StatusInternalServerError, model.ErrUnknown},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			f := newTestFetcher(t)
			_, err := strategyFor(t, f, server.URL).Fetch(context.Background())

			var perr *model.PipelineError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.kind, perr.Kind)
		})
	}
}

func TestStrategyTablesAreOrdered(t *testing.T) {
	f := newTestFetcher(t)
	cases := []struct {
		url   string
		names []string
	}{
		{
			url:   "https://drive.google.com/file/d/1AbCdEfGhIjKlMnOp/view?usp=sharing",
			names: []string{"gdrive_usercontent", "gdrive_uc_confirm", "gdrive_uc_direct"},
		},
		{
			url:   "https://contoso.sharepoint.com/sites/media/Shared%20Documents/promo.mp4",
			names: []string{"sharepoint_download_param", "sharepoint_layouts"},
		},
		{
			url:   "https://www.facebook.com/watch/?v=1234567890",
			names: []string{"facebook_scrape"},
		},
		{
			url:   "https://youtu.be/dQw4w9WgXcQ",
			names: []string{"youtube_ytdlp"},
		},
		{
			url:   "https://cdn.example.com/promo.mp4",
			names: []string{"direct_download"},
		},
	}
	for _, tc := range cases {
		ref, ok := model.NewVideoReference(tc.url)
		require.True(t, ok, tc.url)
		strategies, err := f.StrategiesFor(ref)
		require.NoError(t, err, tc.url)
		require.Len(t, strategies, len(tc.names), tc.url)
		for i, name := range tc.names {
			assert.Equal(t, name, strategies[i].Name())
		}
	}
}

func TestDriveStrategiesRejectURLWithoutFileID(t *testing.T) {
	f := newTestFetcher(t)
	ref, ok := model.NewVideoReference("https://drive.google.com/drive/my-drive")
	require.True(t, ok)

	_, err := f.StrategiesFor(ref)
	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.ErrMalformedReference, perr.Kind)
}

// fakeRunner is a canned CommandRunner for the yt-dlp strategy.
type fakeRunner struct {
	output []byte
	err    error
	name   string
	args   []string
}

func (r *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	r.name = name
	r.args = args
	return r.output, r.err
}

func TestYouTubeStrategyDownloadsResolvedURL(t *testing.T) {
	body := videoBody(4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	f := newTestFetcher(t)
	runner := &fakeRunner{output: []byte(server.URL + "/stream.mp4\n")}
	f.SetRunner(runner)

	ref, ok := model.NewVideoReference("https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.True(t, ok)
	strategies, err := f.StrategiesFor(ref)
	require.NoError(t, err)
	require.Len(t, strategies, 1)

	result, err := strategies[0].Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "youtube_ytdlp", result.Strategy)

	assert.Equal(t, "yt-dlp", runner.name)
	assert.Contains(t, runner.args, "--get-url")
	assert.Contains(t, runner.args, ref.URL)
}

func TestYouTubeStrategyClassifiesResolverFailures(t *testing.T) {
	cases := []struct {
		stderr string
		kind   model.ErrorKind
	}{
		{"ERROR: Video unavailable", model.ErrSourceUnavailable},
		{"ERROR: Private video. Sign in if you've been granted access", model.ErrAccessDenied},
		{"ERROR: HTTP Error 429: Too Many Requests", model.ErrQuotaExceeded},
		{"ERROR: something else entirely", model.ErrUnknown},
	}
	for _, tc := range cases {
		f := newTestFetcher(t)
		f.SetRunner(&fakeRunner{err: errors.New(tc.stderr)})

		ref, _ := model.NewVideoReference("https://youtu.be/dQw4w9WgXcQ")
		strategies, err := f.StrategiesFor(ref)
		require.NoError(t, err)

		_, err = strategies[0].Fetch(context.Background())
		var perr *model.PipelineError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, tc.kind, perr.Kind, tc.stderr)
	}
}
