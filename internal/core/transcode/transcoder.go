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

// Package transcode re-encodes fetched videos through an external FFmpeg
// process. The encoder runs fully isolated from the calling goroutine: a hard
// per-run timeout bounds runaway encodes, a non-zero exit or timeout is a
// per-profile failure the caller recovers from by advancing the ladder, and
// every produced file carries an idempotent cleanup closure so a failed
// upload never leaks multi-gigabyte scratch files.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jaycherian/go-social-publisher/internal/core/fetch"
	"github.com/jaycherian/go-social-publisher/internal/core/model"
	"github.com/jaycherian/go-social-publisher/internal/platform"
)

// ProcessRunner abstracts the external encoder invocation so tests can
// substitute a fake that fabricates output files.
type ProcessRunner interface {
	// Run executes the named binary to completion, honoring ctx cancellation.
	Run(ctx context.Context, name string, args ...string) error
}

// stderrTailBytes caps how much encoder stderr is carried into an error.
const stderrTailBytes = 2048

// execProcessRunner is the production ProcessRunner backed by os/exec.
type execProcessRunner struct{}

func (execProcessRunner) Run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		tail := stderr.Bytes()
		if len(tail) > stderrTailBytes {
			tail = tail[len(tail)-stderrTailBytes:]
		}
		return fmt.Errorf("%s failed: %w, stderr: %s", name, err, tail)
	}
	return nil
}

// Result is a successful transcode: the produced file plus the closure that
// deletes it. Cleanup is safe to call more than once and tolerates the file
// having already been removed by the janitor.
type Result struct {
	OutputPath string
	SizeBytes  int64
	Profile    string
	Cleanup    func()
}

// Transcoder drives the external encoder against the profile ladder.
type Transcoder struct {
	cfg        platform.Transcode
	scratchDir string
	runner     ProcessRunner
}

// NewTranscoder is the constructor for Transcoder.
//
// Inputs:
//   - cfg: The transcode section of the application configuration.
//   - scratchDir: Directory that receives every encoded output file.
//
// Outputs:
//   - *Transcoder: A pointer to the newly instantiated transcoder.
func NewTranscoder(cfg platform.Transcode, scratchDir string) *Transcoder {
	return &Transcoder{cfg: cfg, scratchDir: scratchDir, runner: execProcessRunner{}}
}

// SetRunner overrides the encoder process runner, for tests.
func (t *Transcoder) SetRunner(r ProcessRunner) { t.runner = r }

// Transcode runs one profile against the input file.
//
// Logic Flow:
//  1. Build a collision-free output path using the shared scratch-file
//     naming convention, so the janitor classifies encoder output the same
//     way it classifies downloads.
//  2. Run the encoder under a hard timeout derived from the configuration.
//  3. On a non-zero exit or timeout, remove any partial output and return a
//     transcode failure scoped to this profile.
//  4. On success, stat the output (an encoder that exits zero but writes
//     nothing is still a failure) and return it with its cleanup closure.
//
// Inputs:
//   - ctx: Caller context; the per-run timeout is layered onto it here.
//   - inputPath: The source video file.
//   - profile: The ladder rung to encode with.
//
// Outputs:
//   - *Result: The produced file, on success.
//   - error: A classified *model.PipelineError on any failure.
func (t *Transcoder) Transcode(ctx context.Context, inputPath string, profile Profile) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(t.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	outputPath := filepath.Join(t.scratchDir, fmt.Sprintf("%s_%d_%s_%s.mp4",
		fetch.ScratchFilePrefix, time.Now().UnixNano(), uuid.NewString()[:8], profile.Name))

	if err := t.runner.Run(runCtx, t.cfg.FFmpegPath, profile.Args(inputPath, outputPath)...); err != nil {
		_ = os.Remove(outputPath)
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, model.NewPipelineError(model.ErrTranscodeFailure, profile.Name,
				fmt.Errorf("encoder exceeded the %ds budget", t.cfg.TimeoutSeconds))
		}
		return nil, model.NewPipelineError(model.ErrTranscodeFailure, profile.Name,
			errors.Wrap(err, "running encoder"))
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(outputPath)
		return nil, model.NewPipelineError(model.ErrTranscodeFailure, profile.Name,
			fmt.Errorf("encoder exited cleanly but produced no output"))
	}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			if err := os.Remove(outputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				// Best effort; the janitor sweeps anything left behind.
				slog.Warn("transcode cleanup failed", "path", outputPath, "error", err)
			}
		})
	}

	return &Result{
		OutputPath: outputPath,
		SizeBytes:  info.Size(),
		Profile:    profile.Name,
		Cleanup:    cleanup,
	}, nil
}
