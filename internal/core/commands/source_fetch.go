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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface for the publishing
// pipeline. This file adapts download strategies into commands and
// assembles the source-fetch fallback cascade.
//
// Logic Flow:
// Each FetchStrategyCommand wraps exactly one download strategy. On success
// it registers the produced scratch file with the workflow context (so
// Close always reclaims it) and stores the FetchResult under CtxOut, which
// a FallbackChain treats as the success signal. On failure it records the
// strategy's classified error for the chain to absorb or abort on.
package commands

import (
	"github.com/jaycherian/go-social-publisher/internal/core/cor"
	"github.com/jaycherian/go-social-publisher/internal/core/fetch"
	"github.com/jaycherian/go-social-publisher/internal/core/model"
)

// notify reports a phase transition through the context's progress sink,
// when one is installed.
func notify(ctx cor.Context, phase string, percent float64, detail string) {
	if fn, ok := ctx.Get(cor.CtxProgress).(model.ProgressFunc); ok {
		fn(model.ProgressEvent{Phase: phase, Percent: percent, Detail: detail})
	}
}

// FetchStrategyCommand adapts a single download strategy into a command.
type FetchStrategyCommand struct {
	cor.BaseCommand
	strategy fetch.Strategy
}

// NewFetchStrategyCommand is the constructor for FetchStrategyCommand. The
// command takes its name from the strategy so telemetry and the aggregate
// failure report use the strategy's stable identifier.
func NewFetchStrategyCommand(strategy fetch.Strategy) *FetchStrategyCommand {
	return &FetchStrategyCommand{
		BaseCommand: *cor.NewBaseCommand(strategy.Name()),
		strategy:    strategy,
	}
}

// IsExecutable requires only a live Go context. A download strategy is the
// head of the pipeline: its input is the reference bound at construction
// time, never a previous command's output, so the default input-parameter
// check would wrongly veto every strategy on a fresh context.
func (c *FetchStrategyCommand) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil
}

// Execute runs the wrapped strategy.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *FetchStrategyCommand) Execute(context cor.Context) {
	notify(context, model.PhaseFetching, 0, c.GetName())
	result, err := c.strategy.Fetch(context.GetContext())
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), err)
		return
	}
	// The scratch file's lifetime belongs to the workflow context, not the
	// fetcher: whatever happens downstream, Close reclaims it.
	context.AddTempFile(result.FilePath)
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	notify(context, model.PhaseFetching, 100, c.GetName())
	context.Add(cor.CtxOut, result)
}

// NewSourceFetchChain builds the fallback cascade of download strategies for
// a classified reference.
//
// Inputs:
//   - fetcher: The source fetcher holding configuration and transports.
//   - ref: The classified video reference.
//
// Outputs:
//   - cor.Chain: A FallbackChain trying the reference's strategies in strict
//     priority order.
//   - error: A malformed-reference error when no strategy table can be built.
func NewSourceFetchChain(fetcher *fetch.Fetcher, ref model.VideoReference) (cor.Chain, error) {
	strategies, err := fetcher.StrategiesFor(ref)
	if err != nil {
		return nil, err
	}
	chain := cor.NewFallbackChain("source_fetch")
	for _, strategy := range strategies {
		chain.AddCommand(NewFetchStrategyCommand(strategy))
	}
	return chain, nil
}
