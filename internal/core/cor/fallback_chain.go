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

// Package cor (Chain of Responsibility) provides the fundamental building blocks
// for creating workflows. This file defines the `FallbackChain`, the ordered
// alternatives driver used by every strategy cascade in the pipeline.
//
// Logic Flow:
// A `FallbackChain` holds an ordered list of commands where each command is a
// complete, self-contained attempt at the same goal (download this video,
// publish this file). Commands run strictly in order:
//
//  1. If a command stores a value under its output parameter, that command
//     has succeeded. The chain stops, leaves the value in place for the
//     enclosing chain's piping, and never invokes the remaining commands.
//  2. If a command records an error, the chain classifies it. A recoverable
//     failure is absorbed (cleared from the context, remembered for the
//     final report) and the next command runs. A non-recoverable failure
//     (expired token, access denied, malformed reference) stops the chain
//     immediately; re-trying with a different strategy cannot fix it.
//  3. If every command fails, the chain records a single aggregate error
//     that names each attempted strategy and its failure, so the surfaced
//     message always says what was tried.
package cor

import (
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/go-social-publisher/internal/core/model"
)

// FallbackChain executes commands in priority order, stopping at the first
// success or the first failure its advance predicate rejects.
type FallbackChain struct {
	BaseCommand
	commands []Command                       // The ordered list of alternative attempts.
	advance  func(*model.PipelineError) bool // Whether a failure lets the next alternative run.
}

// NewFallbackChain is the constructor for FallbackChain. The default advance
// predicate is the error taxonomy's recoverability test.
//
// Inputs:
//   - name: A string name for this chain instance, used for logging and telemetry.
//
// Outputs:
//   - *FallbackChain: A pointer to the newly instantiated chain.
func NewFallbackChain(name string) *FallbackChain {
	return &FallbackChain{
		BaseCommand: *NewBaseCommand(name),
		advance:     func(pe *model.PipelineError) bool { return pe.Recoverable() },
	}
}

// AdvanceWhen replaces the default recoverability test. A cascade whose
// alternatives are not interchangeable retries (the upload ladder, where
// only a media rejection justifies re-encoding) narrows the predicate so
// every other failure surfaces directly instead of walking the remaining
// rungs.
func (c *FallbackChain) AdvanceWhen(fn func(*model.PipelineError) bool) *FallbackChain {
	c.advance = fn
	return c
}

// ContinueOnFailure exists to satisfy the Chain interface. Falling back on
// failure is the whole point of this chain, so the flag is ignored.
func (c *FallbackChain) ContinueOnFailure(bool) Chain {
	return c
}

// AddCommand appends the next-priority alternative to the chain.
func (c *FallbackChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// IsExecutable checks if the chain can be executed.
func (c *FallbackChain) IsExecutable(context Context) bool {
	return context.GetContext() != nil && len(c.commands) > 0
}

// Execute runs the alternatives in order until one succeeds.
//
// Inputs:
//   - chCtx: The shared `cor.Context` for the enclosing workflow execution.
func (c *FallbackChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()
	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()
	defer chCtx.SetContext(parentCtx)

	// attempts records, in order, every strategy that failed and why. It
	// feeds the aggregate error when the whole cascade is exhausted.
	type attempt struct {
		strategy string
		err      error
	}
	var attempts []attempt
	var fatal *model.PipelineError

	for _, command := range c.commands {
		_, commandSpan := c.Tracer.Start(outerCtx, command.GetName())
		chCtx.SetContext(outerCtx)

		if !command.IsExecutable(chCtx) {
			commandSpan.SetStatus(codes.Error, fmt.Sprintf("command not executable: %s", command.GetName()))
			commandSpan.End()
			continue
		}

		command.Execute(chCtx)

		if !chCtx.HasErrors() && chCtx.Get(command.GetOutputParam()) != nil {
			// First success wins. The remaining alternatives are never invoked.
			commandSpan.SetStatus(codes.Ok, "strategy succeeded")
			commandSpan.End()
			c.GetSuccessCounter().Add(outerCtx, 1)
			chainSpan.SetStatus(codes.Ok, fmt.Sprintf("%s succeeded via %s", c.GetName(), command.GetName()))
			return
		}

		// The strategy failed. Absorb its errors so the next alternative
		// starts from a clean slate, unless one of them is fatal.
		failed := chCtx.ClearErrors()
		keys := make([]string, 0, len(failed))
		for k := range failed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			err := failed[k]
			attempts = append(attempts, attempt{strategy: command.GetName(), err: err})
			if pe := model.Classify(err); !c.advance(pe) && fatal == nil {
				fatal = pe
			}
		}
		commandSpan.SetStatus(codes.Error, "strategy failed")
		commandSpan.End()

		if fatal != nil {
			break
		}
	}

	c.GetErrorCounter().Add(outerCtx, 1)

	if fatal != nil {
		// Surface the fatal error directly: its kind and remediation text
		// are what the caller needs, not the strategy inventory.
		chCtx.AddError(c.GetName(), fatal)
		chainSpan.SetStatus(codes.Error, fmt.Sprintf("%s aborted: %s", c.GetName(), fatal.Kind))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "all %d strategies failed", len(c.commands))
	for _, a := range attempts {
		fmt.Fprintf(&sb, "; %s: %v", a.strategy, a.err)
	}
	chCtx.AddError(c.GetName(), fmt.Errorf("%s", sb.String()))
	chainSpan.SetStatus(codes.Error, "all strategies exhausted")
}
