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
// for creating workflows. This file defines `BaseContext`, the default
// implementation of the `Context` interface.
//
// The `Context` is a critical component of the COR pattern. It acts as a shared
// property bag passed through the entire chain of commands. Each command reads
// data from the context, performs its work, and writes results back for
// subsequent commands.
//
// The scratch-file contract lives here: any command that creates a file under
// the scratch directory registers a cleanup closure at creation time. The
// workflow defers Close, which runs the closures in reverse acquisition order
// (most recently created file first) exactly once, even when a command
// panics, and each closure tolerates the file having already been removed by
// the disk janitor.
package cor

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
)

// BaseContext is the default implementation of the Context interface. It holds
// the shared state for a workflow execution.
type BaseContext struct {
	data      map[string]interface{} // Arbitrary key-value data shared between commands.
	errors    map[string]error       // Errors keyed by the command name that produced them.
	cleanups  []func()               // Cleanup closures, run LIFO by Close.
	tempFiles []string               // Paths of tracked scratch files, for logging and tests.
	closeOnce sync.Once              // Guarantees the cleanups run exactly once.
	context   context.Context        // The standard Go context for cancellation and spans.
}

// NewBaseContext is the constructor for BaseContext.
// It initializes all the internal maps and slices to ensure they are ready for use.
//
// Outputs:
//   - Context: A new, empty context object.
func NewBaseContext() Context {
	return &BaseContext{
		data:      make(map[string]interface{}),
		errors:    make(map[string]error),
		cleanups:  make([]func(), 0),
		tempFiles: make([]string, 0),
	}
}

// SetContext sets the underlying standard Go context. This is used by the
// chains to manage the context for OpenTelemetry spans.
func (c *BaseContext) SetContext(context context.Context) {
	c.context = context
}

// GetContext retrieves the underlying standard Go context.
func (c *BaseContext) GetContext() context.Context {
	return c.context
}

// AddCleanup registers a closure to run when the workflow terminates. The
// closure itself must be safe to call after the resource is already gone.
func (c *BaseContext) AddCleanup(fn func()) {
	c.cleanups = append(c.cleanups, fn)
}

// AddTempFile tracks a scratch file created during the workflow. The
// registered closure ignores a missing file: the janitor may have swept it
// first, and double deletion must never fail the workflow.
func (c *BaseContext) AddTempFile(file string) {
	c.tempFiles = append(c.tempFiles, file)
	c.AddCleanup(func() {
		if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to remove scratch file", "file", file, "error", err)
		}
	})
}

// GetTempFiles returns the slice of all tracked scratch file paths.
func (c *BaseContext) GetTempFiles() []string {
	return c.tempFiles
}

// Close runs all registered cleanup closures in reverse registration order,
// exactly once. A panic inside one closure is contained so the remaining
// closures still run.
func (c *BaseContext) Close() {
	c.closeOnce.Do(func() {
		for i := len(c.cleanups) - 1; i >= 0; i-- {
			func(fn func()) {
				defer func() {
					if r := recover(); r != nil {
						slog.Error("cleanup closure panicked", "panic", r)
					}
				}()
				fn()
			}(c.cleanups[i])
		}
	})
}

// Add stores a key-value pair in the context's data map. It returns the
// Context instance, allowing for fluent method chaining.
func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

// AddError adds an error to the context's error map, keyed by the command name.
func (c *BaseContext) AddError(key string, err error) {
	c.errors[key] = err
}

// GetErrors returns the map of all errors collected during the workflow.
func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

// ClearErrors empties the error map and returns the errors it held.
func (c *BaseContext) ClearErrors() map[string]error {
	out := c.errors
	c.errors = make(map[string]error)
	return out
}

// Get retrieves a value from the context's data map by its key, or nil when
// the key does not exist.
func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

// Remove deletes a key-value pair from the context's data map.
func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

// HasErrors checks if any errors have been added to the context.
func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}
