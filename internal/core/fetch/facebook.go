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

// This file defines the strategy for videos already hosted on Facebook
// (reposting a page video, publishing a watch link to another page).
//
// There is no anonymous API for raw video bytes, so the strategy scrapes the
// page markup for the JSON-embedded CDN URLs the web player uses. HD
// variants are preferred over SD. Each candidate field value is a
// JSON-escaped string (`\/`, `%`), so it is decoded through the JSON
// unmarshaler rather than ad-hoc replacement. When no candidate is present
// the page is a login wall, which classifies as access denied with sharing
// remediation.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jaycherian/go-social-publisher/internal/core/model"
)

// pageMaxBytes caps how much of the page markup is scanned for CDN URLs.
const pageMaxBytes = 4 * 1024 * 1024

// embeddedURLFields are the player JSON fields that carry CDN URLs, in
// preference order (HD before SD, newer field names before legacy ones).
var embeddedURLFields = []string{
	"browser_native_hd_url",
	"playable_url_quality_hd",
	"browser_native_sd_url",
	"playable_url",
	"hd_src",
	"sd_src",
}

// facebookStrategies builds the Facebook-hosted strategy table. A single
// strategy covers it: the scraping step already iterates the field fallbacks
// internally, and there is no second transport to fall back to.
func (f *Fetcher) facebookStrategies(ref model.VideoReference) []Strategy {
	return []Strategy{
		{
			name: "facebook_scrape",
			run: func(ctx context.Context) (*model.FetchResult, error) {
				return f.facebookScrape(ctx, ref.URL)
			},
		},
	}
}

// facebookScrape fetches the page markup, extracts the first available CDN
// URL, and downloads it through the shared streaming downloader.
func (f *Fetcher) facebookScrape(ctx context.Context, pageURL string) (*model.FetchResult, error) {
	const strategy = "facebook_scrape"

	body, _, err := f.fetchText(ctx, strategy, pageURL, pageMaxBytes)
	if err != nil {
		return nil, err
	}

	cdnURL, ok := extractEmbeddedVideoURL(body)
	if !ok {
		return nil, model.NewPipelineError(model.ErrAccessDenied, strategy,
			fmt.Errorf("no embedded video URL found in page markup; the video is private or requires login"))
	}
	return f.download(ctx, strategy, cdnURL, nil)
}

// extractEmbeddedVideoURL scans markup for the player's CDN URL fields in
// preference order and JSON-decodes the winning value.
func extractEmbeddedVideoURL(markup string) (string, bool) {
	for _, field := range embeddedURLFields {
		re := regexp.MustCompile(`"` + regexp.QuoteMeta(field) + `"\s*:\s*("(?:[^"\\]|\\.)*")`)
		m := re.FindStringSubmatch(markup)
		if m == nil {
			continue
		}
		var decoded string
		if err := json.Unmarshal([]byte(m[1]), &decoded); err != nil || decoded == "" || decoded == "null" {
			continue
		}
		return decoded, true
	}
	return "", false
}
