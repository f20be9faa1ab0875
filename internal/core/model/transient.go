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

// Package model defines the core data structures for the publishing pipeline.
// This file, `transient.go`, contains struct definitions for data models that
// are used in memory during the execution of a publish workflow. These objects
// are transient: they are never persisted by the pipeline itself. The scheduling
// record (the "Post") belongs to the calling web layer, which consumes the
// UploadOutcome produced here to update its own state.
package model

import (
	"net/url"
	"regexp"
	"strings"
)

// SourceKind identifies the hosting platform of a video reference. It is
// derived from the URL shape and is never stored.
type SourceKind string

const (
	SourceGoogleDrive    SourceKind = "google_drive"
	SourceSharePoint     SourceKind = "sharepoint"
	SourceFacebookHosted SourceKind = "facebook_hosted"
	SourceYouTube        SourceKind = "youtube"
	SourceDirectURL      SourceKind = "direct_url"
)

// driveHostPattern matches the Google Drive sharing and usercontent hosts.
var driveHostPattern = regexp.MustCompile(`(^|\.)(drive|docs)\.(usercontent\.)?google\.com$`)

// VideoReference is an immutable pairing of a raw video URL with its inferred
// source kind. Construct it with NewVideoReference so the classification is
// always consistent with the URL.
type VideoReference struct {
	URL  string     // The raw reference URL, exactly as the caller supplied it.
	Kind SourceKind // The inferred hosting platform.
}

// NewVideoReference parses and classifies a raw video URL.
//
// Inputs:
//   - rawURL: The reference URL supplied by the caller.
//
// Outputs:
//   - VideoReference: The classified reference.
//   - bool: False when the URL cannot be parsed as an absolute http(s) URL.
func NewVideoReference(rawURL string) (VideoReference, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return VideoReference{}, false
	}
	host := strings.ToLower(u.Hostname())
	ref := VideoReference{URL: rawURL, Kind: SourceDirectURL}
	switch {
	case driveHostPattern.MatchString(host):
		ref.Kind = SourceGoogleDrive
	case strings.Contains(host, "sharepoint.com"):
		ref.Kind = SourceSharePoint
	case host == "facebook.com" || strings.HasSuffix(host, ".facebook.com") || host == "fb.watch":
		ref.Kind = SourceFacebookHosted
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") || host == "youtu.be":
		ref.Kind = SourceYouTube
	}
	return ref, true
}

// FetchResult describes the outcome of a source fetch. On success FilePath
// points at a scratch file whose lifetime is owned by the workflow context
// that requested the fetch, not by the fetcher.
type FetchResult struct {
	Success   bool   // Whether any strategy produced a validated video file.
	FilePath  string // Absolute path of the scratch file holding the video bytes.
	SizeBytes int64  // Final on-disk size of the scratch file.
	Strategy  string // Name of the download strategy that produced the file.
}

// UploadRequest is the tuple handed to the pipeline by the web layer for a
// video publish.
type UploadRequest struct {
	PageID       string   `json:"page_id"`       // The target Facebook Page ID.
	AccessToken  string   `json:"access_token"`  // The page access token used for all Graph calls.
	VideoURL     string   `json:"video_url"`     // The source video reference.
	Caption      string   `json:"caption"`       // The post caption / description.
	CustomLabels []string `json:"custom_labels"` // Analytics labels; sanitized before serialization.
	Language     string   `json:"language"`      // Locale tag forwarded to the platform (e.g. "en_US").
}

// UploadOutcome is returned to the caller after a publish attempt. Method
// records which fallback strategy eventually succeeded ("direct" or a
// transcode profile name) so a degraded publish is never reported silently.
type UploadOutcome struct {
	Success        bool   `json:"success"`
	PostID         string `json:"post_id,omitempty"`          // The platform post or video ID on success.
	Method         string `json:"method,omitempty"`           // The winning upload strategy.
	FinalSizeBytes int64  `json:"final_size_bytes,omitempty"` // Size of the file that was actually uploaded.
	Error          string `json:"error,omitempty"`            // Human-actionable failure description.
}

// UploadSession tracks one in-flight resumable upload. It is created by the
// start phase, mutated by transfer calls (BytesSent grows monotonically), and
// discarded after finish. A session is used by exactly one upload attempt and
// is never resumed across process restarts.
type UploadSession struct {
	VideoID         string // The platform-assigned video ID.
	UploadSessionID string // The resumable session handle.
	TotalSize       int64  // Declared total byte size of the file.
	BytesSent       int64  // Bytes transferred so far.
}

// Progress phase labels. Fetching, transcoding, and uploading are reported
// by the pipeline commands as they run; done and failed are terminal states
// reported by the workflow.
const (
	PhaseFetching    = "fetching"
	PhaseUploading   = "uploading"
	PhaseTranscoding = "transcoding"
	PhaseDone        = "done"
	PhaseFailed      = "failed"
)

// ProgressEvent is a structured progress notification emitted by the workflow
// so strategy implementations stay free of presentation concerns.
type ProgressEvent struct {
	Phase   string  `json:"phase"`   // One of the Phase* labels.
	Percent float64 `json:"percent"` // Best-effort completion percentage for the phase, 0-100.
	Detail  string  `json:"detail"`  // Free-form detail, e.g. the active strategy name.
}

// ProgressFunc receives progress events. The workflow installs one on the
// chain context so commands can report phase transitions without knowing
// how they are delivered.
type ProgressFunc func(ProgressEvent)
