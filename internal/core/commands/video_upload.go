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

// This file defines the upload strategy commands: the direct upload of the
// fetched file, and one transcode-then-upload command per profile. Together
// they form the upload FallbackChain a publish workflow runs after a
// successful fetch.
//
// Logic Flow (TranscodeUploadCommand):
//  1. Read the fetched file from the command's input parameter.
//  2. Re-encode it with this command's profile; a per-profile failure is
//     recorded and the chain advances to the next rung.
//  3. Register the encoded file's cleanup closure with the context before
//     uploading, so even a panicking upload cannot leak it.
//  4. Upload the encoded file; on success, store an UploadOutcome whose
//     method names the profile, so a degraded publish is never silent.
package commands

import (
	"context"

	"github.com/jaycherian/go-social-publisher/internal/core/cor"
	"github.com/jaycherian/go-social-publisher/internal/core/model"
	"github.com/jaycherian/go-social-publisher/internal/core/transcode"
	"github.com/jaycherian/go-social-publisher/internal/graph"
)

// MethodDirect is the outcome method label for an un-transcoded upload.
const MethodDirect = "direct"

// VideoPublisher is the slice of the Graph client the upload commands need.
type VideoPublisher interface {
	PublishVideo(ctx context.Context, pageID, token, filePath string, meta graph.VideoMeta) (string, error)
}

// MediaTranscoder is the slice of the transcoder the upload commands need.
type MediaTranscoder interface {
	Transcode(ctx context.Context, inputPath string, profile transcode.Profile) (*transcode.Result, error)
}

// uploadMeta builds the Graph metadata from an upload request.
func uploadMeta(req *model.UploadRequest) graph.VideoMeta {
	return graph.VideoMeta{
		Caption: req.Caption,
		Labels:  req.CustomLabels,
		Locale:  req.Language,
	}
}

// DirectVideoUploadCommand uploads the fetched file exactly as it arrived.
// It is always the first rung of the upload cascade: no quality is lost when
// the platform accepts the original.
type DirectVideoUploadCommand struct {
	cor.BaseCommand
	publisher VideoPublisher
	req       *model.UploadRequest
}

// NewDirectVideoUploadCommand is the constructor for DirectVideoUploadCommand.
func NewDirectVideoUploadCommand(publisher VideoPublisher, req *model.UploadRequest) *DirectVideoUploadCommand {
	return &DirectVideoUploadCommand{
		BaseCommand: *cor.NewBaseCommand(MethodDirect),
		publisher:   publisher,
		req:         req,
	}
}

// IsExecutable requires a fetch result under the input parameter.
func (c *DirectVideoUploadCommand) IsExecutable(context cor.Context) bool {
	_, ok := context.Get(c.GetInputParam()).(*model.FetchResult)
	return ok
}

// Execute uploads the fetched file and records the outcome.
func (c *DirectVideoUploadCommand) Execute(context cor.Context) {
	fetched := context.Get(c.GetInputParam()).(*model.FetchResult)

	notify(context, model.PhaseUploading, 0, MethodDirect)
	videoID, err := c.publisher.PublishVideo(context.GetContext(), c.req.PageID, c.req.AccessToken, fetched.FilePath, uploadMeta(c.req))
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), err)
		return
	}
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(cor.CtxOut, &model.UploadOutcome{
		Success:        true,
		PostID:         videoID,
		Method:         MethodDirect,
		FinalSizeBytes: fetched.SizeBytes,
	})
}

// TranscodeUploadCommand re-encodes the fetched file with one profile and
// uploads the result. The upload cascade holds one of these per ladder rung.
type TranscodeUploadCommand struct {
	cor.BaseCommand
	transcoder MediaTranscoder
	publisher  VideoPublisher
	profile    transcode.Profile
	req        *model.UploadRequest
}

// NewTranscodeUploadCommand is the constructor for TranscodeUploadCommand.
// The command is named after its profile, which becomes the outcome's method
// label when this rung wins.
func NewTranscodeUploadCommand(transcoder MediaTranscoder, publisher VideoPublisher, profile transcode.Profile, req *model.UploadRequest) *TranscodeUploadCommand {
	return &TranscodeUploadCommand{
		BaseCommand: *cor.NewBaseCommand(profile.Name),
		transcoder:  transcoder,
		publisher:   publisher,
		profile:     profile,
		req:         req,
	}
}

// IsExecutable requires a fetch result under the input parameter.
func (c *TranscodeUploadCommand) IsExecutable(context cor.Context) bool {
	_, ok := context.Get(c.GetInputParam()).(*model.FetchResult)
	return ok
}

// Execute transcodes then uploads.
func (c *TranscodeUploadCommand) Execute(context cor.Context) {
	fetched := context.Get(c.GetInputParam()).(*model.FetchResult)

	notify(context, model.PhaseTranscoding, 0, c.profile.Name)
	result, err := c.transcoder.Transcode(context.GetContext(), fetched.FilePath, c.profile)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), err)
		return
	}
	context.AddCleanup(result.Cleanup)

	notify(context, model.PhaseUploading, 0, c.profile.Name)
	videoID, err := c.publisher.PublishVideo(context.GetContext(), c.req.PageID, c.req.AccessToken, result.OutputPath, uploadMeta(c.req))
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), err)
		return
	}
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(cor.CtxOut, &model.UploadOutcome{
		Success:        true,
		PostID:         videoID,
		Method:         c.profile.Name,
		FinalSizeBytes: result.SizeBytes,
	})
}

// NewVideoUploadChain builds the upload fallback cascade: the direct upload
// first, then every transcode profile in ladder order.
//
// Outputs:
//   - cor.Chain: A FallbackChain over the upload strategies. Only a media
//     rejection or a per-profile encode failure advances the ladder; every
//     other platform error (expired token, policy block, unrecognized
//     response) surfaces directly, with no wasted encoding work.
func NewVideoUploadChain(transcoder MediaTranscoder, publisher VideoPublisher, req *model.UploadRequest) cor.Chain {
	chain := cor.NewFallbackChain("video_upload").AdvanceWhen(func(pe *model.PipelineError) bool {
		switch pe.Kind {
		case model.ErrPlatformMediaRejected, model.ErrTranscodeFailure:
			return true
		}
		return false
	})
	chain.AddCommand(NewDirectVideoUploadCommand(publisher, req))
	for _, profile := range transcode.Ladder() {
		chain.AddCommand(NewTranscodeUploadCommand(transcoder, publisher, profile, req))
	}
	return chain
}
