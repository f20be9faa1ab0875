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

package graph

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const (
	// maxLabelLength is the platform's per-label character limit.
	maxLabelLength = 25
	// maxLabelCount is the platform's per-post label limit.
	maxLabelCount = 10
)

// SanitizeLabels normalizes analytics labels to what the platform accepts:
// whitespace-trimmed, empty and over-length entries dropped silently,
// relative order preserved, capped at the platform limit. The result is the
// JSON array string the custom_labels field expects; an empty result returns
// "" so callers can omit the field entirely.
func SanitizeLabels(labels []string) string {
	kept := make([]string, 0, len(labels))
	for _, label := range labels {
		trimmed := strings.TrimSpace(label)
		if trimmed == "" || utf8.RuneCountInString(trimmed) > maxLabelLength {
			continue
		}
		kept = append(kept, trimmed)
		if len(kept) == maxLabelCount {
			break
		}
	}
	if len(kept) == 0 {
		return ""
	}
	encoded, err := json.Marshal(kept)
	if err != nil {
		return ""
	}
	return string(encoded)
}
