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

// This file defines the YouTube download strategy, which delegates URL
// extraction to the yt-dlp binary (`-f b --get-url`) and then streams the
// resolved googlevideo URL through the shared downloader. yt-dlp may print
// separate video and audio URLs for formats it would normally merge; the
// first line is the muxed best format requested by `-f b`.
package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/jaycherian/go-social-publisher/internal/core/model"
)

// youtubeStrategies builds the YouTube strategy table.
func (f *Fetcher) youtubeStrategies(ref model.VideoReference) []Strategy {
	return []Strategy{
		{
			name: "youtube_ytdlp",
			run: func(ctx context.Context) (*model.FetchResult, error) {
				return f.youtubeFetch(ctx, ref.URL)
			},
		},
	}
}

// youtubeFetch resolves the direct media URL with yt-dlp and downloads it.
func (f *Fetcher) youtubeFetch(ctx context.Context, videoURL string) (*model.FetchResult, error) {
	const strategy = "youtube_ytdlp"

	out, err := f.runner.Output(ctx, f.cfg.YtDlpPath, "-f", "b", "--get-url", "--no-warnings", videoURL)
	if err != nil {
		return nil, model.NewPipelineError(classifyYtDlpError(err), strategy, errors.Wrap(err, "resolving stream URL"))
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, model.NewPipelineError(model.ErrSourceUnavailable, strategy,
			fmt.Errorf("yt-dlp returned no URL for %s", videoURL))
	}
	return f.download(ctx, strategy, lines[0], nil)
}

// classifyYtDlpError maps yt-dlp failure text onto the error taxonomy using
// the tool's stable stderr phrases.
func classifyYtDlpError(err error) model.ErrorKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "video unavailable"), strings.Contains(msg, "removed"):
		return model.ErrSourceUnavailable
	case strings.Contains(msg, "private video"), strings.Contains(msg, "sign in"):
		return model.ErrAccessDenied
	case strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"):
		return model.ErrQuotaExceeded
	}
	return model.ErrUnknown
}
