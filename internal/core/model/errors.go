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
// This file defines the pipeline's error taxonomy. Every failure surfaced by a
// fetch strategy, the transcoder, or the Graph client is classified into one
// of these kinds, because the kind decides the control flow: recoverable kinds
// advance the workflow to the next strategy or profile, non-recoverable kinds
// short-circuit the whole attempt so no transcoding work is wasted on a
// failure that re-encoding cannot fix (an expired token, a private file).
package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure.
type ErrorKind string

const (
	ErrSourceUnavailable        ErrorKind = "source_unavailable"         // 404 / deleted source.
	ErrAccessDenied             ErrorKind = "access_denied"              // Private file, permission wall, login page.
	ErrQuotaExceeded            ErrorKind = "quota_exceeded"             // Source download quota (e.g. Drive daily limit).
	ErrMalformedReference       ErrorKind = "malformed_reference"        // Unparseable or non-http(s) URL.
	ErrDownloadIntegrityFailure ErrorKind = "download_integrity_failure" // Size mismatch, truncated stream, stall timeout, too-small file.
	ErrInvalidFormat            ErrorKind = "invalid_format"             // HTML/JSON body where binary video was expected, or failed signature check.
	ErrTranscodeFailure         ErrorKind = "transcode_failure"          // Encoder nonzero exit or timeout.
	ErrPlatformMediaRejected    ErrorKind = "platform_media_rejected"    // Upload reached the platform but the media was rejected as corrupt/unsupported.
	ErrPlatformAuthFailure      ErrorKind = "platform_auth_failure"      // Bad or expired access token, missing permission.
	ErrPlatformQuotaOrPolicy    ErrorKind = "platform_quota_or_policy"   // Rate limit or content policy rejection.
	ErrUnknown                  ErrorKind = "unknown"
)

// PipelineError is the typed error used across the pipeline. It carries the
// classification, the strategy that produced it, and optional remediation
// text forwarded verbatim to the caller for access-denied classes.
type PipelineError struct {
	Kind        ErrorKind // The failure classification.
	Strategy    string    // Name of the strategy/profile that was being attempted.
	Remediation string    // Human-actionable fix instructions, when one exists.
	Err         error     // The underlying cause, including verbatim platform messages.
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (strategy=%s): %v", e.Kind, e.Strategy, e.Err)
	}
	return fmt.Sprintf("%s (strategy=%s)", e.Kind, e.Strategy)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether a later strategy or transcode profile may
// succeed where this failure occurred. Auth failures, missing sources, and
// malformed references cannot be fixed by trying harder.
func (e *PipelineError) Recoverable() bool {
	switch e.Kind {
	case ErrSourceUnavailable, ErrAccessDenied, ErrMalformedReference, ErrPlatformAuthFailure, ErrPlatformQuotaOrPolicy:
		return false
	}
	return true
}

// NewPipelineError builds a classified error for a given strategy.
func NewPipelineError(kind ErrorKind, strategy string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Strategy: strategy, Remediation: defaultRemediation(kind), Err: cause}
}

// Classify extracts the PipelineError from an error chain. Unclassified
// errors come back as ErrUnknown so callers can always branch on a kind.
func Classify(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return &PipelineError{Kind: ErrUnknown, Err: err}
}

// defaultRemediation returns the checklist text attached to failure kinds
// that the end user can act on themselves.
func defaultRemediation(kind ErrorKind) string {
	switch kind {
	case ErrAccessDenied:
		return "The file is not publicly readable. Open its sharing settings, " +
			"set access to \"Anyone with the link\", and retry. If the file lives " +
			"in a restricted workspace, download it manually and upload the file directly."
	case ErrSourceUnavailable:
		return "The file could not be found at the given link. It may have been " +
			"moved or deleted; verify the link opens in a private browser window."
	case ErrQuotaExceeded:
		return "The hosting service is rate limiting downloads of this file. " +
			"Wait a few hours and retry, or upload the file directly."
	case ErrPlatformAuthFailure:
		return "The page access token was rejected. Reconnect the Facebook " +
			"account to refresh its token and retry."
	}
	return ""
}
