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

// This file implements the single streaming downloader every fetch strategy
// funnels through.
//
// Logic Flow:
//  1. Issue the GET with the configured User-Agent and classify non-2xx
//     statuses into the pipeline error taxonomy.
//  2. Gate on the response Content-Type before reading the body: an HTML or
//     JSON payload where binary video was expected is a login wall or a
//     permission page, and is rejected without writing a scratch file.
//  3. Stream the body to a uniquely named scratch file through a stall
//     watchdog: if no bytes arrive for the configured window the request is
//     canceled and the attempt reports a stall instead of hanging. The body
//     is never buffered whole in memory, so file size is unbounded by RSS.
//  4. Validate the captured leading bytes against the container signature
//     table, apply the minimum-size gate, and compare the final size against
//     the advertised Content-Length (drift above the tolerance is a hard
//     integrity failure; below it, a warning).
//  5. On any failure the partial scratch file is removed before returning.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jaycherian/go-social-publisher/internal/core/media"
	"github.com/jaycherian/go-social-publisher/internal/core/model"
)

// sniffSize is how many leading bytes are captured for signature validation.
const sniffSize = 512

// downloadOptions tweak the shared downloader per strategy.
type downloadOptions struct {
	// extraHeaders are added to the request (e.g. cookies from a Drive
	// confirm-token exchange).
	extraHeaders map[string]string
	// allowedContentTypes, when set, replaces the default "no HTML, no JSON"
	// gate with an explicit allow list.
	allowedContentTypes []string
}

// stallReader wraps a response body and arms a watchdog timer that fires when
// no read completes within the stall window. Firing cancels the request
// context, which surfaces as a read error in io.Copy.
type stallReader struct {
	r        io.Reader
	timer    *time.Timer
	window   time.Duration
	stalled  atomic.Bool
	received atomic.Int64
}

func newStallReader(r io.Reader, window time.Duration, cancel context.CancelFunc) *stallReader {
	s := &stallReader{r: r, window: window}
	s.timer = time.AfterFunc(window, func() {
		s.stalled.Store(true)
		cancel()
	})
	return s
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.received.Add(int64(n))
		s.timer.Reset(s.window)
	}
	return n, err
}

func (s *stallReader) stop() { s.timer.Stop() }

// scratchPath builds a collision-free scratch file path. The name embeds the
// purpose prefix, a timestamp, and a random id so concurrent uploads never
// collide and the janitor can classify ownership without a manifest.
func (f *Fetcher) scratchPath(ext string) string {
	name := fmt.Sprintf("%s_%d_%s.%s", ScratchFilePrefix, time.Now().UnixNano(), uuid.NewString()[:8], ext)
	return filepath.Join(f.scratchDir, name)
}

// download streams the URL into a scratch file and validates the result.
//
// Inputs:
//   - ctx: Caller context; the per-attempt budget and stall watchdog are
//     layered onto it here.
//   - strategy: The invoking strategy's name, embedded in every error.
//   - rawURL: The URL to download.
//   - opts: Optional per-strategy tweaks, nil for defaults.
//
// Outputs:
//   - *model.FetchResult: The validated scratch file, on success.
//   - error: A classified *model.PipelineError on any failure.
func (f *Fetcher) download(ctx context.Context, strategy, rawURL string, opts *downloadOptions) (*model.FetchResult, error) {
	if opts == nil {
		opts = &downloadOptions{}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(f.cfg.AttemptTimeoutSeconds)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewPipelineError(model.ErrMalformedReference, strategy, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	for k, v := range opts.extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, model.NewPipelineError(model.ErrUnknown, strategy, errors.Wrap(err, "request failed"))
	}
	defer resp.Body.Close()

	if kind, ok := classifyStatus(resp.StatusCode); ok {
		return nil, model.NewPipelineError(kind, strategy,
			fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, rawURL))
	}

	// Content-type gate, before any body bytes are written to disk.
	if kind, bad := rejectContentType(resp.Header.Get("Content-Type"), opts.allowedContentTypes); bad {
		return nil, model.NewPipelineError(kind, strategy,
			fmt.Errorf("expected video content, got %q from %s", resp.Header.Get("Content-Type"), rawURL))
	}

	path := f.scratchPath(extensionFromURL(rawURL))
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, model.NewPipelineError(model.ErrUnknown, strategy, errors.Wrap(err, "creating scratch file"))
	}

	watchdog := newStallReader(resp.Body, time.Duration(f.cfg.StallTimeoutSeconds)*time.Second, cancel)
	sniff := &prefixCapture{limit: sniffSize}
	written, copyErr := io.Copy(io.MultiWriter(out, sniff), watchdog)
	watchdog.stop()
	closeErr := out.Close()

	fail := func(kind model.ErrorKind, cause error) (*model.FetchResult, error) {
		_ = os.Remove(path)
		return nil, model.NewPipelineError(kind, strategy, cause)
	}

	if copyErr != nil {
		if watchdog.stalled.Load() {
			return fail(model.ErrDownloadIntegrityFailure,
				fmt.Errorf("download stalled: no bytes for %ds after %d bytes", f.cfg.StallTimeoutSeconds, written))
		}
		return fail(model.ErrDownloadIntegrityFailure, errors.Wrap(copyErr, "streaming body"))
	}
	if closeErr != nil {
		return fail(model.ErrUnknown, errors.Wrap(closeErr, "closing scratch file"))
	}

	// Signature validation on the captured prefix.
	head := sniff.Bytes()
	if media.LooksLikeHTML(head) {
		return fail(model.ErrAccessDenied, fmt.Errorf("received an HTML page instead of video from %s", rawURL))
	}
	if !media.IsValidVideo(head) {
		return fail(model.ErrInvalidFormat, fmt.Errorf("downloaded bytes do not match any known video container"))
	}

	if written < f.cfg.MinVideoSizeBytes {
		return fail(model.ErrDownloadIntegrityFailure,
			fmt.Errorf("file too small: %d bytes (minimum %d)", written, f.cfg.MinVideoSizeBytes))
	}

	// Content-Length integrity check.
	if resp.ContentLength > 0 && written != resp.ContentLength {
		drift := math.Abs(float64(written-resp.ContentLength)) / float64(resp.ContentLength) * 100
		if drift > f.cfg.SizeTolerancePercent {
			return fail(model.ErrDownloadIntegrityFailure,
				fmt.Errorf("size mismatch: got %d bytes, server advertised %d (%.2f%% drift)", written, resp.ContentLength, drift))
		}
		slog.Warn("download size drift within tolerance",
			"strategy", strategy, "got", written, "advertised", resp.ContentLength)
	}

	return &model.FetchResult{Success: true, FilePath: path, SizeBytes: written, Strategy: strategy}, nil
}

// prefixCapture retains the first `limit` bytes written through it.
type prefixCapture struct {
	limit int
	buf   []byte
}

func (p *prefixCapture) Write(b []byte) (int, error) {
	if remaining := p.limit - len(p.buf); remaining > 0 {
		if len(b) > remaining {
			p.buf = append(p.buf, b[:remaining]...)
		} else {
			p.buf = append(p.buf, b...)
		}
	}
	return len(b), nil
}

func (p *prefixCapture) Bytes() []byte { return p.buf }

// classifyStatus maps HTTP statuses onto the error taxonomy. The second
// return is false for acceptable (2xx) statuses.
func classifyStatus(status int) (model.ErrorKind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusNotFound || status == http.StatusGone:
		return model.ErrSourceUnavailable, true
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.ErrAccessDenied, true
	case status == http.StatusTooManyRequests:
		return model.ErrQuotaExceeded, true
	default:
		return model.ErrUnknown, true
	}
}

// rejectContentType applies the pre-body content-type gate. HTML means a
// login or permission wall; JSON means an API error envelope. Neither body
// is worth streaming.
func rejectContentType(contentType string, allowed []string) (model.ErrorKind, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		// Servers for raw file downloads frequently omit or mangle the
		// header; signature validation still protects us downstream.
		return "", false
	}
	if len(allowed) > 0 {
		for _, a := range allowed {
			if mediaType == a {
				return "", false
			}
		}
		return model.ErrInvalidFormat, true
	}
	switch {
	case mediaType == "text/html" || strings.HasSuffix(mediaType, "+html"):
		return model.ErrAccessDenied, true
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return model.ErrInvalidFormat, true
	}
	return "", false
}

// fetchText retrieves a small text resource (an interstitial page, embed
// markup) fully into memory. Used by the scraping strategies, where HTML is
// the expected payload rather than a failure signal.
func (f *Fetcher) fetchText(ctx context.Context, strategy, rawURL string, maxBytes int64) (string, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, model.NewPipelineError(model.ErrMalformedReference, strategy, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", nil, model.NewPipelineError(model.ErrUnknown, strategy, errors.Wrap(err, "request failed"))
	}
	defer resp.Body.Close()

	if kind, bad := classifyStatus(resp.StatusCode); bad {
		return "", resp, model.NewPipelineError(kind, strategy,
			fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, rawURL))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return "", resp, model.NewPipelineError(model.ErrUnknown, strategy, errors.Wrap(err, "reading body"))
	}
	return string(body), resp, nil
}

// extensionFromURL picks a scratch-file extension from the URL path, falling
// back to mp4. The extension is cosmetic; validation is signature-based.
func extensionFromURL(rawURL string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(strings.Split(rawURL, "?")[0])), ".")
	switch ext {
	case "mp4", "mov", "avi", "webm", "mkv", "flv", "m4v":
		return ext
	}
	return "mp4"
}
