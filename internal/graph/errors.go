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

// This file parses the Graph error envelope and classifies platform error
// codes into the pipeline taxonomy. The classification drives the workflow's
// fallback policy: a media rejection is worth re-encoding for, an expired
// token is not.
package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jaycherian/go-social-publisher/internal/core/model"
)

// GraphError is the platform's error envelope, unwrapped from the outer
// {"error": {...}} object.
type GraphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	UserMessage  string `json:"error_user_msg"`
	FBTraceID    string `json:"fbtrace_id"`
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("graph error %d (%s): %s", e.Code, e.Type, e.Message)
}

// Media-rejection codes: 352 (video format), 389 (video processing), and the
// 6000 family (video upload problems).
func isMediaCode(code int) bool {
	return code == 352 || code == 389 || (code >= 6000 && code < 7000)
}

// Quota/policy codes: 4 (app throttled), 17 (user throttled), 32 (page
// throttled), 613 (custom rate limit), 368 (policy block).
func isQuotaOrPolicyCode(code int) bool {
	switch code {
	case 4, 17, 32, 613, 368:
		return true
	}
	return false
}

// parseGraphError turns a non-2xx Graph response body into a classified
// pipeline error. A body that is not the standard envelope still produces a
// useful error carrying the raw payload.
func parseGraphError(status int, body []byte) *model.PipelineError {
	var envelope struct {
		Error GraphError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Message == "" {
		return model.NewPipelineError(model.ErrUnknown, "graph",
			fmt.Errorf("graph returned status %d with unparseable body: %s", status, truncate(body, 512)))
	}
	return model.NewPipelineError(classifyGraphError(&envelope.Error), "graph", &envelope.Error)
}

// classifyGraphError maps the envelope onto the error taxonomy.
func classifyGraphError(ge *GraphError) model.ErrorKind {
	switch {
	// Throttling errors frequently arrive typed OAuthException, so the
	// quota codes must win before the type check.
	case isQuotaOrPolicyCode(ge.Code):
		return model.ErrPlatformQuotaOrPolicy
	case ge.Code == 190 || ge.Type == "OAuthException":
		return model.ErrPlatformAuthFailure
	case isMediaCode(ge.Code), strings.Contains(strings.ToLower(ge.Message), "video"):
		return model.ErrPlatformMediaRejected
	default:
		return model.ErrUnknown
	}
}
