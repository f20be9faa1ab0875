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

// Package services contains the business logic boundary between the HTTP
// layer and the publishing pipeline. This file defines the PublishService,
// which validates inbound requests, runs the optional token pre-flight, and
// hands work to the publish workflow. The scheduling record (when to post,
// retry bookkeeping) belongs to the caller; this service is invoked per
// publish attempt and returns an outcome the caller persists.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jaycherian/go-social-publisher/internal/core/model"
	"github.com/jaycherian/go-social-publisher/internal/core/workflow"
	"github.com/jaycherian/go-social-publisher/internal/graph"
)

// TokenValidator is the slice of the Graph client used for pre-flight checks.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*graph.TokenIdentity, error)
}

// PublishService is the inbound boundary for publish operations.
type PublishService struct {
	Workflow  *workflow.PublishWorkflow
	Graph     *graph.Client
	Validator TokenValidator
	// Preflight enables the token identity check before any bytes are
	// fetched. Costs one Graph round-trip per publish; catches expired
	// tokens before expensive download/encode work.
	Preflight bool
}

// NewPublishService is the constructor for PublishService.
func NewPublishService(w *workflow.PublishWorkflow, g *graph.Client, preflight bool) *PublishService {
	return &PublishService{Workflow: w, Graph: g, Validator: g, Preflight: preflight}
}

// PublishVideo validates and runs one video publish attempt.
//
// Inputs:
//   - ctx: Caller context.
//   - req: The publish request from the HTTP layer.
//
// Outputs:
//   - *model.UploadOutcome: Always non-nil; Success false carries the
//     human-actionable error text.
func (s *PublishService) PublishVideo(ctx context.Context, req *model.UploadRequest) *model.UploadOutcome {
	jobID := uuid.NewString()[:8]
	logger := slog.With("job_id", jobID, "page_id", req.PageID)

	if err := validateRequest(req); err != nil {
		logger.Warn("rejecting publish request", "error", err)
		return &model.UploadOutcome{Error: err.Error()}
	}

	if s.Preflight && s.Validator != nil {
		identity, err := s.Validator.ValidateToken(ctx, req.AccessToken)
		if err != nil {
			perr := model.Classify(err)
			logger.Warn("token pre-flight failed", "kind", perr.Kind, "error", err)
			message := err.Error()
			if perr.Remediation != "" {
				message = fmt.Sprintf("%s: %s", message, perr.Remediation)
			}
			return &model.UploadOutcome{Error: message}
		}
		logger.Info("token pre-flight passed", "identity", identity.ID)
	}

	started := time.Now()
	logger.Info("publish started", "video_url", req.VideoURL)
	outcome := s.Workflow.Publish(ctx, req)
	logger.Info("publish finished",
		"success", outcome.Success,
		"method", outcome.Method,
		"duration", time.Since(started).String())
	return outcome
}

// PublishText posts a text update. Thin pass-through to the Graph client;
// no fetching or fallback applies.
func (s *PublishService) PublishText(ctx context.Context, pageID, token, message, link string) (*model.UploadOutcome, error) {
	if pageID == "" || token == "" || message == "" {
		return nil, fmt.Errorf("page_id, access_token, and message are required")
	}
	postID, err := s.Graph.PublishText(ctx, pageID, token, message, link)
	if err != nil {
		return &model.UploadOutcome{Error: err.Error()}, nil
	}
	return &model.UploadOutcome{Success: true, PostID: postID, Method: "text"}, nil
}

// PublishPhoto posts a remote-hosted photo. Thin pass-through to the Graph
// client.
func (s *PublishService) PublishPhoto(ctx context.Context, pageID, token, photoURL, caption string, labels []string, locale string) (*model.UploadOutcome, error) {
	if pageID == "" || token == "" || photoURL == "" {
		return nil, fmt.Errorf("page_id, access_token, and photo_url are required")
	}
	postID, err := s.Graph.PublishPhoto(ctx, pageID, token, photoURL, caption, labels, locale)
	if err != nil {
		return &model.UploadOutcome{Error: err.Error()}, nil
	}
	return &model.UploadOutcome{Success: true, PostID: postID, Method: "photo"}, nil
}

// validateRequest enforces the minimum shape of a video publish request.
func validateRequest(req *model.UploadRequest) error {
	switch {
	case req.PageID == "":
		return fmt.Errorf("page_id is required")
	case req.AccessToken == "":
		return fmt.Errorf("access_token is required")
	case req.VideoURL == "":
		return fmt.Errorf("video_url is required")
	}
	return nil
}
