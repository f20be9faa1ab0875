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

package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/jaycherian/go-social-publisher/internal/core/fetch"
	"github.com/jaycherian/go-social-publisher/internal/core/services"
	"github.com/jaycherian/go-social-publisher/internal/core/transcode"
	"github.com/jaycherian/go-social-publisher/internal/core/workflow"
	"github.com/jaycherian/go-social-publisher/internal/graph"
	"github.com/jaycherian/go-social-publisher/internal/platform"
)

// StateManager holds the shared components for the application.
type StateManager struct {
	config         *platform.Config
	graphClient    *graph.Client
	publishService *services.PublishService
	janitor        *workflow.DiskJanitor
}

var state = &StateManager{}

// SetupOS points the configuration loader at the configs directory and the
// "local" runtime overrides. A .env file, when present, can override both
// before the loader reads them.
func SetupOS() (err error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("skipping .env file", "error", err)
	}
	if os.Getenv(platform.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(platform.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(platform.EnvConfigRuntime) == "" {
		err = os.Setenv(platform.EnvConfigRuntime, "local")
	}
	return err
}

// GetConfig loads the application configuration once and caches it.
func GetConfig() *platform.Config {
	if state.config == nil {
		err := SetupOS()
		if err != nil {
			log.Fatalf("failed to setup environment: %v\n", err)
		}
		config := platform.NewConfig()
		platform.LoadConfig(config)
		state.config = config
	}
	return state.config
}

// InitState wires the publishing pipeline: the multi-source fetcher, the
// transcode ladder, the Graph client, the publish workflow, and the
// scratch-disk janitor. The janitor's background sweep starts here and runs
// until Stop is called during shutdown.
func InitState() {
	config := GetConfig()

	if err := os.MkdirAll(config.Application.ScratchDir, 0o755); err != nil {
		log.Fatalf("failed to create scratch directory %s: %v\n", config.Application.ScratchDir, err)
	}

	fetcher := fetch.NewFetcher(config.Fetch, config.Application.ScratchDir)
	transcoder := transcode.NewTranscoder(config.Transcode, config.Application.ScratchDir)
	state.graphClient = graph.NewClient(config.Facebook)

	publishWorkflow := workflow.NewPublishWorkflow(fetcher, transcoder, state.graphClient)
	state.publishService = services.NewPublishService(publishWorkflow, state.graphClient, true)

	state.janitor = workflow.NewDiskJanitor(config.Janitor, config.Application.ScratchDir)
	state.janitor.StartTimer()
}
