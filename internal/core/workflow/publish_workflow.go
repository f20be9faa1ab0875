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

// Package workflow defines the high-level business logic orchestrations,
// combining commands into coherent pipelines. This file implements the video
// publish workflow: the end-to-end path from a raw video URL to a published
// page post.
//
// Logic Flow:
// The workflow is a state machine realized as two chained cascades:
//
//	Fetching → Uploading(direct) → Transcoding(p_i) → Uploading(p_i) → Done|Failed
//
//  1. Classify the reference; an unparseable URL fails immediately.
//  2. Run the source-fetch FallbackChain: download strategies in strict
//     order, first validated file wins.
//  3. Pipe the fetch result into the upload FallbackChain: the direct
//     upload first, then each transcode profile in ladder order. A media
//     rejection advances the ladder; any other platform failure (expired
//     token, policy block, unrecognized response) short-circuits straight
//     to Failed without touching the encoder.
//  4. Every terminal path, including a panicking strategy, closes the chain
//     context exactly once, which runs the registered cleanups in reverse
//     order and reclaims every scratch file the attempt created.
//
// Progress events stream on a buffered channel the caller may consume; a
// slow or absent consumer never blocks the pipeline.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaycherian/go-social-publisher/internal/core/commands"
	"github.com/jaycherian/go-social-publisher/internal/core/cor"
	"github.com/jaycherian/go-social-publisher/internal/core/fetch"
	"github.com/jaycherian/go-social-publisher/internal/core/model"
)

// Progress phase labels, re-exported from the model for callers that only
// import the workflow package.
const (
	PhaseFetching    = model.PhaseFetching
	PhaseUploading   = model.PhaseUploading
	PhaseTranscoding = model.PhaseTranscoding
	PhaseDone        = model.PhaseDone
	PhaseFailed      = model.PhaseFailed
)

// progressBuffer bounds how many unconsumed progress events are retained.
const progressBuffer = 32

// PublishWorkflow orchestrates one or more video publish attempts. It is
// safe for concurrent use: every Publish call owns an independent chain
// context, scratch files, and upload session.
type PublishWorkflow struct {
	fetcher    *fetch.Fetcher
	transcoder commands.MediaTranscoder
	publisher  commands.VideoPublisher
	progress   chan model.ProgressEvent
}

// NewPublishWorkflow is the constructor for PublishWorkflow.
//
// Inputs:
//   - fetcher: The multi-source video fetcher.
//   - transcoder: The profile-ladder transcoder.
//   - publisher: The Graph API video publisher.
//
// Outputs:
//   - *PublishWorkflow: A pointer to the newly instantiated workflow.
func NewPublishWorkflow(fetcher *fetch.Fetcher, transcoder commands.MediaTranscoder, publisher commands.VideoPublisher) *PublishWorkflow {
	return &PublishWorkflow{
		fetcher:    fetcher,
		transcoder: transcoder,
		publisher:  publisher,
		progress:   make(chan model.ProgressEvent, progressBuffer),
	}
}

// Progress returns the stream of progress events. Events are dropped, never
// blocked on, when the consumer falls behind.
func (w *PublishWorkflow) Progress() <-chan model.ProgressEvent {
	return w.progress
}

func (w *PublishWorkflow) emit(phase string, percent float64, detail string) {
	w.emitEvent(model.ProgressEvent{Phase: phase, Percent: percent, Detail: detail})
}

func (w *PublishWorkflow) emitEvent(ev model.ProgressEvent) {
	select {
	case w.progress <- ev:
	default:
	}
}

// Publish runs the full pipeline for one request.
//
// Inputs:
//   - ctx: Caller context; cancellation aborts in-flight downloads, encodes,
//     and uploads.
//   - req: The publish request from the web layer.
//
// Outputs:
//   - *model.UploadOutcome: Always non-nil. On failure, Error carries the
//     attempted strategies, the underlying platform message, and remediation
//     text when the user can act on the cause.
func (w *PublishWorkflow) Publish(ctx context.Context, req *model.UploadRequest) (outcome *model.UploadOutcome) {
	tracer := otel.Tracer("publish-workflow")
	traceCtx, span := tracer.Start(ctx, "publish_video")
	defer span.End()

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(traceCtx)
	// Exactly-once, reverse-order cleanup on every terminal path, panics
	// included.
	defer chainCtx.Close()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("publish workflow panicked", "page_id", req.PageID, "panic", r)
			span.SetStatus(codes.Error, "workflow panic")
			outcome = &model.UploadOutcome{Error: fmt.Sprintf("internal failure: %v", r)}
		}
	}()

	ref, ok := model.NewVideoReference(req.VideoURL)
	if !ok {
		err := model.NewPipelineError(model.ErrMalformedReference, "classify",
			fmt.Errorf("not an absolute http(s) URL: %q", req.VideoURL))
		return w.fail(span, err)
	}

	fetchChain, err := commands.NewSourceFetchChain(w.fetcher, ref)
	if err != nil {
		return w.fail(span, err)
	}
	uploadChain := commands.NewVideoUploadChain(w.transcoder, w.publisher, req)

	// The sequential backbone: fetch, then upload, with the fetch result
	// piped from CtxOut to CtxIn between the two cascades. Phase events
	// stream from the commands through the context's progress sink.
	chainCtx.Add(cor.CtxProgress, model.ProgressFunc(w.emitEvent))
	publishChain := cor.NewBaseChain("publish_pipeline")
	publishChain.AddCommand(fetchChain).AddCommand(uploadChain)

	w.emit(PhaseFetching, 0, string(ref.Kind))
	publishChain.Execute(chainCtx)
	if chainCtx.HasErrors() {
		return w.fail(span, firstError(chainCtx.GetErrors()))
	}

	// The backbone's final flip-flop leaves the last output under CtxIn.
	out, ok := chainCtx.Get(cor.CtxIn).(*model.UploadOutcome)
	if !ok {
		return w.fail(span, fmt.Errorf("pipeline finished without an outcome"))
	}
	outcome = out
	w.emit(PhaseDone, 100, outcome.Method)
	span.SetStatus(codes.Ok, fmt.Sprintf("published via %s", outcome.Method))
	slog.Info("video published",
		"page_id", req.PageID,
		"post_id", outcome.PostID,
		"method", outcome.Method,
		"size_bytes", outcome.FinalSizeBytes)
	return outcome
}

// fail converts a pipeline error into the failed outcome surfaced to the
// caller, appending remediation text when the user can act on the cause.
func (w *PublishWorkflow) fail(span trace.Span, err error) *model.UploadOutcome {
	perr := model.Classify(err)
	message := err.Error()
	if perr.Remediation != "" {
		message = fmt.Sprintf("%s: %s", message, perr.Remediation)
	}
	w.emit(PhaseFailed, 100, string(perr.Kind))
	span.SetStatus(codes.Error, string(perr.Kind))
	slog.Warn("publish failed", "kind", perr.Kind, "strategy", perr.Strategy, "error", err)
	return &model.UploadOutcome{Error: message}
}

// firstError returns the error under the lexicographically first key, making
// failure reporting deterministic when a chain recorded several.
func firstError(errs map[string]error) error {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return fmt.Errorf("chain failed without recording an error")
	}
	return errs[keys[0]]
}
