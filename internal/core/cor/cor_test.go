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

// Package cor_test verifies the chain-of-responsibility plumbing that every
// strategy cascade in the pipeline is built on: the context's cleanup
// guarantees and the fallback chain's first-success / fatal-stop semantics.
package cor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jaycherian/go-social-publisher/internal/core/cor"
	"github.com/jaycherian/go-social-publisher/internal/core/model"
)

// stubCommand is a minimal Command whose behavior is scripted per test. It
// records whether it ran so strategy-ordering assertions can be made.
type stubCommand struct {
	cor.BaseCommand
	ran     bool
	succeed bool
	err     error
}

func newStubCommand(name string, succeed bool, err error) *stubCommand {
	return &stubCommand{BaseCommand: *cor.NewBaseCommand(name), succeed: succeed, err: err}
}

func (s *stubCommand) IsExecutable(ctx cor.Context) bool {
	return ctx != nil && ctx.GetContext() != nil
}

func (s *stubCommand) Execute(ctx cor.Context) {
	s.ran = true
	if s.err != nil {
		ctx.AddError(s.GetName(), s.err)
		return
	}
	if s.succeed {
		ctx.Add(s.GetOutputParam(), s.GetName())
	}
}

func newTestContext() cor.Context {
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	return chainCtx
}

func TestContextCleanupRunsInReverseOrder(t *testing.T) {
	chainCtx := newTestContext()

	var order []string
	chainCtx.AddCleanup(func() { order = append(order, "first") })
	chainCtx.AddCleanup(func() { order = append(order, "second") })
	chainCtx.AddCleanup(func() { order = append(order, "third") })

	chainCtx.Close()
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestContextCleanupIsIdempotent(t *testing.T) {
	chainCtx := newTestContext()

	scratch := filepath.Join(t.TempDir(), "working_cleanup.mp4")
	assert.NoError(t, os.WriteFile(scratch, []byte("x"), 0o644))
	chainCtx.AddTempFile(scratch)
	assert.Equal(t, []string{scratch}, chainCtx.GetTempFiles())

	// Simulate the janitor winning the race: the file is gone before the
	// workflow's own cleanup runs.
	assert.NoError(t, os.Remove(scratch))

	assert.NotPanics(t, func() { chainCtx.Close() })
	// A second Close must be a no-op, not a second deletion pass.
	assert.NotPanics(t, func() { chainCtx.Close() })
}

func TestContextCleanupRunsOnlyOnce(t *testing.T) {
	chainCtx := newTestContext()

	count := 0
	chainCtx.AddCleanup(func() { count++ })
	chainCtx.Close()
	chainCtx.Close()
	assert.Equal(t, 1, count)
}

func TestContextCleanupSurvivesPanickingClosure(t *testing.T) {
	chainCtx := newTestContext()

	var reached bool
	chainCtx.AddCleanup(func() { reached = true })
	chainCtx.AddCleanup(func() { panic("boom") })

	assert.NotPanics(t, func() { chainCtx.Close() })
	assert.True(t, reached)
}

// pipeStub records what it found under its input parameter and emits its own
// name, exercising the sequential chain's flip-flop piping.
type pipeStub struct {
	cor.BaseCommand
	sawInput interface{}
}

func newPipeStub(name string) *pipeStub {
	return &pipeStub{BaseCommand: *cor.NewBaseCommand(name)}
}

func (s *pipeStub) IsExecutable(ctx cor.Context) bool {
	return ctx != nil && ctx.GetContext() != nil
}

func (s *pipeStub) Execute(ctx cor.Context) {
	s.sawInput = ctx.Get(s.GetInputParam())
	ctx.Add(s.GetOutputParam(), s.GetName())
}

func TestBaseChainPipesOutputToNextInput(t *testing.T) {
	first := newPipeStub("stage-1")
	second := newPipeStub("stage-2")

	chain := cor.NewBaseChain("base-test")
	chain.AddCommand(first).AddCommand(second)

	chainCtx := newTestContext()
	chain.Execute(chainCtx)

	assert.Nil(t, first.sawInput, "the head of the chain starts with no piped input")
	assert.Equal(t, "stage-1", second.sawInput, "each stage receives the previous stage's output")
	// The final flip-flop leaves the last output under the input key for
	// the enclosing scope to collect.
	assert.Equal(t, "stage-2", chainCtx.Get(cor.CtxIn))
	assert.Nil(t, chainCtx.Get(cor.CtxOut))
}

func TestBaseChainStopsAfterFailure(t *testing.T) {
	first := newStubCommand("stage-1", false, assert.AnError)
	second := newStubCommand("stage-2", true, nil)

	chain := cor.NewBaseChain("base-test")
	chain.AddCommand(first).AddCommand(second)

	chainCtx := newTestContext()
	chain.Execute(chainCtx)

	assert.True(t, first.ran)
	assert.False(t, second.ran, "a failed stage must stop the sequence")
	assert.True(t, chainCtx.HasErrors())
}

func TestFallbackChainHonorsAdvancePredicate(t *testing.T) {
	// ErrUnknown is recoverable under the default predicate; a narrowed
	// cascade must stop on it anyway.
	generic := model.NewPipelineError(model.ErrUnknown, "strategy-1", assert.AnError)
	first := newStubCommand("strategy-1", false, generic)
	second := newStubCommand("strategy-2", true, nil)

	chain := cor.NewFallbackChain("fallback-test").AdvanceWhen(func(pe *model.PipelineError) bool {
		return pe.Kind == model.ErrPlatformMediaRejected
	})
	chain.AddCommand(first).AddCommand(second)

	chainCtx := newTestContext()
	chain.Execute(chainCtx)

	assert.True(t, first.ran)
	assert.False(t, second.ran, "a failure outside the predicate must stop the cascade")
	assert.True(t, chainCtx.HasErrors())
}

func TestFallbackChainStopsAtFirstSuccess(t *testing.T) {
	first := newStubCommand("strategy-1", false, assert.AnError)
	second := newStubCommand("strategy-2", true, nil)
	third := newStubCommand("strategy-3", true, nil)

	chain := cor.NewFallbackChain("fallback-test")
	chain.AddCommand(first).AddCommand(second).AddCommand(third)

	chainCtx := newTestContext()
	chain.Execute(chainCtx)

	assert.True(t, first.ran)
	assert.True(t, second.ran)
	assert.False(t, third.ran, "strategies after the first success must not be invoked")
	assert.False(t, chainCtx.HasErrors())
	assert.Equal(t, "strategy-2", chainCtx.Get(cor.CtxOut))
}

func TestFallbackChainStopsOnNonRecoverableError(t *testing.T) {
	fatal := model.NewPipelineError(model.ErrPlatformAuthFailure, "strategy-1", assert.AnError)
	first := newStubCommand("strategy-1", false, fatal)
	second := newStubCommand("strategy-2", true, nil)

	chain := cor.NewFallbackChain("fallback-test")
	chain.AddCommand(first).AddCommand(second)

	chainCtx := newTestContext()
	chain.Execute(chainCtx)

	assert.False(t, second.ran, "a non-recoverable failure must short-circuit the cascade")
	assert.True(t, chainCtx.HasErrors())
	pe := model.Classify(chainCtx.GetErrors()["fallback-test"])
	assert.Equal(t, model.ErrPlatformAuthFailure, pe.Kind)
}

func TestFallbackChainReportsAllAttempts(t *testing.T) {
	first := newStubCommand("strategy-1", false, model.NewPipelineError(model.ErrDownloadIntegrityFailure, "strategy-1", assert.AnError))
	second := newStubCommand("strategy-2", false, model.NewPipelineError(model.ErrInvalidFormat, "strategy-2", assert.AnError))

	chain := cor.NewFallbackChain("fallback-test")
	chain.AddCommand(first).AddCommand(second)

	chainCtx := newTestContext()
	chain.Execute(chainCtx)

	assert.True(t, first.ran)
	assert.True(t, second.ran)
	assert.True(t, chainCtx.HasErrors())
	msg := chainCtx.GetErrors()["fallback-test"].Error()
	assert.Contains(t, msg, "strategy-1")
	assert.Contains(t, msg, "strategy-2")
}
