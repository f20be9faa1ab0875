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

// This file defines the Google Drive download strategies.
//
// Logic Flow:
// A Drive sharing link never points at the raw bytes. Three strategies are
// tried in order:
//
//  1. gdrive_usercontent: the modern dedicated download host
//     (drive.usercontent.google.com) with `confirm=t`, which serves the raw
//     file for most public links without any interstitial.
//  2. gdrive_uc_confirm: the legacy `uc?export=download` flow. For files too
//     large for Drive's virus scan, the first response is an HTML
//     interstitial. The strategy detects the warning marker, extracts the
//     bypass token either from the "download anyway" link or from the
//     embedded form's (confirm, uuid) field pair, and reissues the download
//     against the form's action URL with those parameters appended.
//  3. gdrive_uc_direct: the legacy endpoint with `confirm=t` preseeded, which
//     some older sharing variants still honor directly.
//
// All three need the file id, which is pattern-matched out of every known
// sharing URL shape (`/file/d/<id>/...`, `?id=<id>`, `open?id=<id>`).
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/jaycherian/go-social-publisher/internal/core/model"
)

const (
	driveUserContentURL = "https://drive.usercontent.google.com/download"
	driveLegacyUCURL    = "https://drive.google.com/uc"
	// interstitialMaxBytes caps how much of the virus-scan page is read.
	interstitialMaxBytes = 512 * 1024
)

// driveFileIDPatterns match the file id across the known sharing URL shapes.
var driveFileIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]{10,})`),
	regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]{10,})`),
	regexp.MustCompile(`/d/([a-zA-Z0-9_-]{10,})`),
}

// virusScanMarkers identify the large-file interstitial page.
var virusScanMarkers = []string{
	"Virus scan warning",
	"can't scan this file for viruses",
	"exceeds the maximum size that Google can scan",
}

var (
	// downloadAnywayLink matches the legacy "download anyway" anchor and
	// captures its confirm token.
	downloadAnywayLink = regexp.MustCompile(`confirm=([0-9A-Za-z_-]+)`)
	// formAction captures the download form's action URL on the modern
	// interstitial.
	formAction = regexp.MustCompile(`<form[^>]+action="([^"]+)"`)
	// hiddenField captures a named hidden input's value.
	hiddenFieldTmpl = `<input[^>]+name="%s"[^>]+value="([^"]*)"`
)

// driveFileID extracts the Drive file id from a sharing URL.
func driveFileID(rawURL string) (string, bool) {
	for _, p := range driveFileIDPatterns {
		if m := p.FindStringSubmatch(rawURL); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// driveStrategies builds the ordered Google Drive strategy table.
func (f *Fetcher) driveStrategies(ref model.VideoReference) ([]Strategy, error) {
	fileID, ok := driveFileID(ref.URL)
	if !ok {
		return nil, model.NewPipelineError(model.ErrMalformedReference, "gdrive",
			fmt.Errorf("no file id found in Drive URL %s", ref.URL))
	}

	userContent := fmt.Sprintf("%s?id=%s&export=download&confirm=t", driveUserContentURL, url.QueryEscape(fileID))
	legacyBase := fmt.Sprintf("%s?export=download&id=%s", driveLegacyUCURL, url.QueryEscape(fileID))

	return []Strategy{
		{
			name: "gdrive_usercontent",
			run: func(ctx context.Context) (*model.FetchResult, error) {
				return f.download(ctx, "gdrive_usercontent", userContent, nil)
			},
		},
		{
			name: "gdrive_uc_confirm",
			run: func(ctx context.Context) (*model.FetchResult, error) {
				return f.driveConfirmFlow(ctx, legacyBase)
			},
		},
		{
			name: "gdrive_uc_direct",
			run: func(ctx context.Context) (*model.FetchResult, error) {
				return f.download(ctx, "gdrive_uc_direct", legacyBase+"&confirm=t", nil)
			},
		},
	}, nil
}

// driveConfirmFlow implements the legacy interstitial-bypass download.
//
// Inputs:
//   - ctx: Caller context.
//   - baseURL: The `uc?export=download&id=` URL without a confirm token.
//
// Outputs:
//   - *model.FetchResult: The validated scratch file.
//   - error: A classified error; notably AccessDenied when the page is a
//     login wall rather than a virus-scan interstitial.
func (f *Fetcher) driveConfirmFlow(ctx context.Context, baseURL string) (*model.FetchResult, error) {
	const strategy = "gdrive_uc_confirm"

	// First request: either the file itself (small files) or the
	// interstitial HTML. Probe with fetchText only when the server says HTML;
	// otherwise download directly.
	body, resp, err := f.fetchText(ctx, strategy, baseURL, interstitialMaxBytes)
	if err != nil {
		return nil, err
	}
	contentType := ""
	if resp != nil {
		contentType = resp.Header.Get("Content-Type")
	}
	if !strings.Contains(contentType, "text/html") {
		// The endpoint served bytes directly; re-issue as a streaming
		// download so the usual validation applies.
		return f.download(ctx, strategy, baseURL, nil)
	}

	if !containsAny(body, virusScanMarkers) {
		return nil, model.NewPipelineError(model.ErrAccessDenied, strategy,
			fmt.Errorf("drive served an HTML page without a virus-scan marker; the file is likely private"))
	}

	confirmURL, ok := driveConfirmURL(body, baseURL)
	if !ok {
		return nil, model.NewPipelineError(model.ErrInvalidFormat, strategy,
			fmt.Errorf("virus-scan interstitial found but no confirm token could be extracted"))
	}
	return f.download(ctx, strategy, confirmURL, nil)
}

// driveConfirmURL extracts the bypass download URL from interstitial HTML.
// It prefers the modern form (action + hidden confirm/uuid fields) and falls
// back to the legacy "download anyway" link token.
func driveConfirmURL(body, baseURL string) (string, bool) {
	if m := formAction.FindStringSubmatch(body); m != nil {
		action := strings.ReplaceAll(m[1], "&amp;", "&")
		params := url.Values{}
		for _, field := range []string{"id", "export", "confirm", "uuid", "at"} {
			re := regexp.MustCompile(fmt.Sprintf(hiddenFieldTmpl, field))
			if fm := re.FindStringSubmatch(body); fm != nil && fm[1] != "" {
				params.Set(field, fm[1])
			}
		}
		if params.Get("confirm") != "" || params.Get("uuid") != "" {
			sep := "?"
			if strings.Contains(action, "?") {
				sep = "&"
			}
			return action + sep + params.Encode(), true
		}
	}
	if m := downloadAnywayLink.FindStringSubmatch(body); m != nil {
		return baseURL + "&confirm=" + m[1], true
	}
	return "", false
}

// containsAny reports whether s contains any of the markers.
func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
