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

// Package test provides utility functions and mock data to support the application's
// test suite. It helps in setting up a consistent test environment, loading
// test-specific configurations, and providing sample payloads for the publish
// workflows and HTTP boundary.
package test

import (
	"log"
	"os"
	"testing"

	"github.com/jaycherian/go-social-publisher/internal/platform"
)

// StateManager acts as a simple in-memory cache for the application configuration
// during test runs. This prevents the need to reload configuration files for every
// test, speeding up the test suite.
type StateManager struct {
	config *platform.Config
}

// state holds the singleton instance of StateManager, ensuring that the
// configuration is loaded only once per test run.
var state = &StateManager{}

// HandleErr is a simple test helper function that checks if an error is not nil.
// If an error exists, it fails the test immediately by calling t.Errorf.
//
// Inputs:
//   - err: The error to check.
//   - t: The *testing.T object from the current test.
func HandleErr(err error, t *testing.T) {
	if err != nil {
		t.Errorf("Error reading config file: %v", err)
	}
}

// GetTestPublishVideoRequestJSON returns a hardcoded JSON payload matching the
// body of a POST /api/v1/publish/video call. The video URL points at a Google
// Drive share link, which exercises the confirm-token fallback cascade.
//
// Returns:
//   - A string containing the JSON payload of a video publish request.
func GetTestPublishVideoRequestJSON() string {
	return `{
  "page_id": "104823412345678",
  "access_token": "EAATtest-page-token",
  "video_url": "https://drive.google.com/file/d/1AbCdEfGhIjKlMnOpQrStUvWxYz012345/view?usp=sharing",
  "caption": "Team highlights from the spring tournament",
  "custom_labels": ["highlights", "spring", "tournament"],
  "language": "en_US"
}`
}

// GetTestPublishPhotoRequestJSON returns a hardcoded JSON payload matching the
// body of a POST /api/v1/publish/photo call.
//
// Returns:
//   - A string containing the JSON payload of a photo publish request.
func GetTestPublishPhotoRequestJSON() string {
	return `{
  "page_id": "104823412345678",
  "access_token": "EAATtest-page-token",
  "photo_url": "https://cdn.example.com/media/spring-roster.jpg",
  "caption": "Spring roster announcement",
  "labels": ["roster"],
  "locale": "en_US"
}`
}

// SetupOS configures the necessary environment variables that the configuration
// loader (`platform.LoadConfig`) depends on. By setting these variables, we can
// direct the loader to use the test-specific configuration files (e.g.,
// `configs/.env.test.toml`) instead of production or development ones.
//
// Returns:
//   - An error if setting any environment variable fails.
func SetupOS() (err error) {
	// Set the directory where the configuration files are located.
	err = os.Setenv(platform.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	// Set the runtime environment identifier to "test". This causes the loader
	// to look for a file named ".env.test.toml" for overrides.
	err = os.Setenv(platform.EnvConfigRuntime, "test")
	return err
}

// GetConfig is a singleton accessor for the test configuration.
// It ensures that the configuration is loaded from TOML files only once and
// is cached in the package-level `state` variable for subsequent calls.
//
// Returns:
//   - A pointer to the loaded and cached platform.Config struct.
func GetConfig() *platform.Config {
	if state.config == nil {
		err := SetupOS()
		if err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := platform.NewConfig()
		// LoadConfig handles the hierarchical loading (base file + test override).
		platform.LoadConfig(config)
		state.config = config
	}
	return state.config
}
