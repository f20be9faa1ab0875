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

// Package fetch implements the multi-source video fetcher. Given a classified
// video reference, it exposes an ordered list of download strategies for the
// reference's hosting platform. The workflow layer iterates the list with the
// generic fallback driver: strategies run strictly in order and the first one
// whose result passes byte-signature validation and the minimum-size gate
// wins.
//
// One fetcher instance serves all source kinds. The per-kind strategy tables
// replace what would otherwise be near-duplicate downloader implementations:
// every strategy funnels through the same streaming downloader
// (download.go), which owns stall detection, content-type gating, integrity
// checks, and scratch-file naming.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/jaycherian/go-social-publisher/internal/core/model"
	"github.com/jaycherian/go-social-publisher/internal/platform"
)

// ScratchFilePrefix is the naming prefix for every file this package writes.
// The disk janitor classifies ownership of scratch entries by this prefix, so
// it must stay in sync with the janitor's work-file convention.
const ScratchFilePrefix = "working"

// Strategy is one concrete download attempt. Strategies for a reference are
// tried strictly in order; a strategy either produces a validated scratch
// file or a classified *model.PipelineError.
type Strategy struct {
	name string
	run  func(ctx context.Context) (*model.FetchResult, error)
}

// Name returns the strategy's stable identifier (e.g. "gdrive_usercontent").
func (s Strategy) Name() string { return s.name }

// Fetch executes the strategy.
func (s Strategy) Fetch(ctx context.Context) (*model.FetchResult, error) { return s.run(ctx) }

// CommandRunner abstracts the external helper binaries the fetcher shells out
// to (yt-dlp). Tests substitute a fake that returns canned output.
type CommandRunner interface {
	// Output runs the named binary with args and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner is the production CommandRunner backed by os/exec.
type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w, stderr: %s", name, err, stderr.String())
	}
	return out, nil
}

// Fetcher resolves video references into local scratch files. It holds the
// configuration (timeouts, thresholds, helper binary paths) injected at
// construction so tests can tighten the windows.
type Fetcher struct {
	cfg        platform.Fetch
	scratchDir string
	httpClient *http.Client
	runner     CommandRunner
}

// NewFetcher is the constructor for Fetcher.
//
// Inputs:
//   - cfg: The fetch section of the application configuration.
//   - scratchDir: Directory that receives every intermediate download.
//
// Outputs:
//   - *Fetcher: A pointer to the newly instantiated fetcher.
func NewFetcher(cfg platform.Fetch, scratchDir string) *Fetcher {
	return &Fetcher{
		cfg:        cfg,
		scratchDir: scratchDir,
		httpClient: &http.Client{
			// The per-attempt budget caps the whole request, redirects
			// included. Stall detection rides on top of this in download.go.
			Timeout: time.Duration(cfg.AttemptTimeoutSeconds) * time.Second,
		},
		runner: execRunner{},
	}
}

// SetHTTPClient overrides the HTTP client, for tests.
func (f *Fetcher) SetHTTPClient(c *http.Client) { f.httpClient = c }

// SetRunner overrides the external-binary runner, for tests.
func (f *Fetcher) SetRunner(r CommandRunner) { f.runner = r }

// StrategiesFor returns the ordered download strategies for a reference.
//
// Inputs:
//   - ref: The classified video reference.
//
// Outputs:
//   - []Strategy: Strategies in strict priority order.
//   - error: A malformed-reference error when the URL carries no usable
//     identifier for its source kind (e.g. a Drive link without a file id).
func (f *Fetcher) StrategiesFor(ref model.VideoReference) ([]Strategy, error) {
	switch ref.Kind {
	case model.SourceGoogleDrive:
		return f.driveStrategies(ref)
	case model.SourceSharePoint:
		return f.sharePointStrategies(ref)
	case model.SourceFacebookHosted:
		return f.facebookStrategies(ref), nil
	case model.SourceYouTube:
		return f.youtubeStrategies(ref), nil
	default:
		return []Strategy{f.directStrategy(ref)}, nil
	}
}

// directStrategy downloads the reference URL as-is. It is the whole table for
// DirectURL references and the last line of several other tables.
func (f *Fetcher) directStrategy(ref model.VideoReference) Strategy {
	return Strategy{
		name: "direct_download",
		run: func(ctx context.Context) (*model.FetchResult, error) {
			return f.download(ctx, "direct_download", ref.URL, nil)
		},
	}
}
