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

// This file defines the SharePoint download strategies.
//
// SharePoint sharing links come in two shapes: a `stream.aspx` player URL
// whose `id` query parameter carries the server-relative file path, and a
// plain document URL. Either way the raw bytes are reachable two ways, tried
// in order:
//
//  1. sharepoint_download_param: the resolved direct file URL with
//     `?download=1` appended, which short-circuits the player page.
//  2. sharepoint_layouts: the tenant's `_layouts/15/download.aspx` endpoint
//     with the file path passed as `SourceUrl`.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jaycherian/go-social-publisher/internal/core/model"
)

// sharePointStrategies builds the ordered SharePoint strategy table.
func (f *Fetcher) sharePointStrategies(ref model.VideoReference) ([]Strategy, error) {
	parsed, err := url.Parse(ref.URL)
	if err != nil {
		return nil, model.NewPipelineError(model.ErrMalformedReference, "sharepoint", err)
	}

	filePath := sharePointFilePath(parsed)
	if filePath == "" {
		return nil, model.NewPipelineError(model.ErrMalformedReference, "sharepoint",
			fmt.Errorf("no file path found in SharePoint URL %s", ref.URL))
	}

	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	directURL := base.JoinPath(filePath).String() + "?download=1"
	layoutsURL := fmt.Sprintf("%s%s?SourceUrl=%s",
		base.String(), layoutsPathFor(filePath), url.QueryEscape(filePath))

	return []Strategy{
		{
			name: "sharepoint_download_param",
			run: func(ctx context.Context) (*model.FetchResult, error) {
				return f.download(ctx, "sharepoint_download_param", directURL, nil)
			},
		},
		{
			name: "sharepoint_layouts",
			run: func(ctx context.Context) (*model.FetchResult, error) {
				return f.download(ctx, "sharepoint_layouts", layoutsURL, nil)
			},
		},
	}, nil
}

// sharePointFilePath resolves the server-relative file path from either URL
// shape. For stream.aspx player links the path rides in the `id` parameter;
// for plain document links it is the URL path itself.
func sharePointFilePath(u *url.URL) string {
	if strings.Contains(strings.ToLower(u.Path), "stream.aspx") {
		if id := u.Query().Get("id"); id != "" {
			return id
		}
		return ""
	}
	if strings.HasSuffix(strings.ToLower(u.Path), ".aspx") {
		return ""
	}
	return u.Path
}

// layoutsPathFor places download.aspx inside the same site collection as the
// file, which SharePoint requires (`/sites/<name>/_layouts/15/download.aspx`).
func layoutsPathFor(filePath string) string {
	segments := strings.Split(strings.TrimPrefix(filePath, "/"), "/")
	if len(segments) >= 2 && (segments[0] == "sites" || segments[0] == "teams" || segments[0] == "personal") {
		return "/" + segments[0] + "/" + segments[1] + "/_layouts/15/download.aspx"
	}
	return "/_layouts/15/download.aspx"
}
