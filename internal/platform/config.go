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

// Package platform defines the data structures for application configuration,
// loaded from TOML files. It provides a structured way to manage settings for
// every stage of the publishing pipeline: source fetching, transcoding, the
// Facebook Graph API client, and the scratch-disk janitor.
//
// This file centralizes all configuration-related structs, making it easy
// to understand and manage the application's configurable parameters.
//
// Structs:
//   - Fetch: Timeouts and thresholds for the multi-source video fetcher.
//   - Transcode: External encoder location and per-profile time budget.
//   - Facebook: Graph API endpoints, version pin, and upload thresholds.
//   - Janitor: Scratch directory sweep schedule and disk high-water mark.
//   - Config: The top-level struct that aggregates all other configuration structs.
//
// Functions:
//   - NewConfig: A constructor that initializes a new Config object with sane defaults.
package platform

import (
	"os"
	"path/filepath"
)

// Fetch represents the configuration for the source video fetcher.
type Fetch struct {
	StallTimeoutSeconds   int     `toml:"stall_timeout_seconds"`   // Abort a download when no bytes arrive for this long.
	AttemptTimeoutSeconds int     `toml:"attempt_timeout_seconds"` // Overall budget for a single download strategy.
	MinVideoSizeBytes     int64   `toml:"min_video_size_bytes"`    // Downloads smaller than this are treated as truncated/error pages.
	SizeTolerancePercent  float64 `toml:"size_tolerance_percent"`  // Allowed Content-Length vs on-disk size drift before hard failure.
	UserAgent             string  `toml:"user_agent"`              // User-Agent sent on every source download request.
	YtDlpPath             string  `toml:"ytdlp_path"`              // Path to the yt-dlp binary used for YouTube references.
}

// Transcode represents the configuration for the external encoder.
type Transcode struct {
	FFmpegPath     string `toml:"ffmpeg_path"`     // The path to the FFmpeg executable (e.g., "/usr/bin/ffmpeg").
	TimeoutSeconds int    `toml:"timeout_seconds"` // Hard per-profile timeout for a single encode run.
}

// Facebook represents the configuration for the Graph API client.
type Facebook struct {
	GraphVersion            string  `toml:"graph_version"`             // The pinned Graph API version (e.g., "v19.0"), applied to every endpoint.
	GraphHost               string  `toml:"graph_host"`                // Base URL for the standard Graph subdomain.
	VideoHost               string  `toml:"video_host"`                // Base URL for the chunked-upload subdomain (graph-video).
	ChunkSizeBytes          int64   `toml:"chunk_size_bytes"`          // Fixed chunk size for resumable transfer calls.
	ResumableThresholdBytes int64   `toml:"resumable_threshold_bytes"` // Files above this size use the resumable protocol.
	RequestTimeoutSeconds   int     `toml:"request_timeout_seconds"`   // Per-request timeout for Graph API calls.
	RequestsPerSecond       float64 `toml:"requests_per_second"`       // Rate limit applied across all Graph API calls.
}

// Janitor represents the configuration for the scratch-disk sweeper.
type Janitor struct {
	SweepIntervalHours   int     `toml:"sweep_interval_hours"`    // How often the background sweep runs.
	MaxAgeHours          int     `toml:"max_age_hours"`           // Scratch files older than this are eligible for deletion.
	HighWaterMarkPercent float64 `toml:"high_water_mark_percent"` // Disk usage above this percentage is flagged after a sweep.
}

// Config represents the overall configuration for the application, loaded from TOML files.
// It acts as the root container for all other configuration structs.
type Config struct {
	// Application holds general application settings.
	Application struct {
		Name          string `toml:"name"`           // The name of the application, used for telemetry resource attribution.
		ListenAddress string `toml:"listen_address"` // The address the HTTP boundary listens on.
		ScratchDir    string `toml:"scratch_dir"`    // Directory for intermediate video files. Defaults to a path under os.TempDir().
	} `toml:"application"`
	Fetch     Fetch     `toml:"fetch"`     // Source fetcher configuration.
	Transcode Transcode `toml:"transcode"` // Encoder configuration.
	Facebook  Facebook  `toml:"facebook"`  // Graph API configuration.
	Janitor   Janitor   `toml:"janitor"`   // Scratch sweep configuration.
}

// NewConfig is a constructor function that creates a new Config instance with
// defaults that match the documented pipeline behavior. Values loaded from the
// TOML files overwrite these defaults.
//
// Outputs:
//   - *Config: A pointer to a new Config struct.
func NewConfig() *Config {
	c := &Config{}
	c.Application.Name = "social-publisher"
	c.Application.ListenAddress = ":8080"
	c.Application.ScratchDir = filepath.Join(os.TempDir(), "social-publisher")
	c.Fetch = Fetch{
		StallTimeoutSeconds:   30,
		AttemptTimeoutSeconds: 180,
		MinVideoSizeBytes:     1 << 20,
		SizeTolerancePercent:  0.1,
		UserAgent:             "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		YtDlpPath:             "yt-dlp",
	}
	c.Transcode = Transcode{
		FFmpegPath:     "ffmpeg",
		TimeoutSeconds: 600,
	}
	c.Facebook = Facebook{
		GraphVersion:            "v19.0",
		GraphHost:               "https://graph.facebook.com",
		VideoHost:               "https://graph-video.facebook.com",
		ChunkSizeBytes:          8 << 20,
		ResumableThresholdBytes: 50 << 20,
		RequestTimeoutSeconds:   45,
		RequestsPerSecond:       4,
	}
	c.Janitor = Janitor{
		SweepIntervalHours:   24,
		MaxAgeHours:          24,
		HighWaterMarkPercent: 85,
	}
	return c
}
