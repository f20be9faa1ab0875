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

// Package graph is the Facebook Graph API client for page publishing. It
// pins a single API version across every endpoint, routes standard calls
// (feed, photos, token maintenance) to the regular Graph host and video
// uploads to the dedicated graph-video host, and translates the platform's
// error envelope into the pipeline error taxonomy so the workflow layer can
// decide between transcoding fallback and immediate surfacing.
//
// All outbound calls share one rate limiter and a bounded per-request
// timeout; transient failures (network errors, 5xx) are retried with
// exponential backoff before they surface.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/jaycherian/go-social-publisher/internal/core/model"
	"github.com/jaycherian/go-social-publisher/internal/platform"
)

const (
	// DefaultGraphHost is the standard Graph API subdomain.
	DefaultGraphHost = "https://graph.facebook.com"
	// DefaultVideoHost is the dedicated subdomain for video uploads. The
	// resumable protocol is only served here, not on the standard host.
	DefaultVideoHost = "https://graph-video.facebook.com"

	// transientAttempts is how many times a transient failure is retried
	// before surfacing.
	transientAttempts = 3
)

// Client is the rate-limited Graph API client. One instance serves all
// pages; the page id and access token travel per call.
type Client struct {
	cfg        platform.Facebook
	graphHost  string
	videoHost  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient is the constructor for Client.
//
// Inputs:
//   - cfg: The facebook section of the application configuration. Empty
//     host fields fall back to the production subdomains.
//
// Outputs:
//   - *Client: A pointer to the newly instantiated client.
func NewClient(cfg platform.Facebook) *Client {
	graphHost := cfg.GraphHost
	if graphHost == "" {
		graphHost = DefaultGraphHost
	}
	videoHost := cfg.VideoHost
	if videoHost == "" {
		videoHost = DefaultVideoHost
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	return &Client{
		cfg:       cfg,
		graphHost: graphHost,
		videoHost: videoHost,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// SetHTTPClient overrides the HTTP client, for tests.
func (c *Client) SetHTTPClient(h *http.Client) { c.httpClient = h }

// endpoint builds a versioned URL on the given host.
func (c *Client) endpoint(host string, segments ...string) string {
	return fmt.Sprintf("%s/%s/%s", host, c.cfg.GraphVersion, strings.Join(segments, "/"))
}

// postForm issues a rate-limited, retried POST of URL-encoded values and
// decodes the JSON response into out.
//
// Inputs:
//   - ctx: Caller context.
//   - endpoint: The full versioned URL.
//   - values: The form fields, including the access token.
//   - out: Destination for the decoded success body; may be nil.
//
// Outputs:
//   - error: A classified *model.PipelineError on any failure.
func (c *Client) postForm(ctx context.Context, endpoint string, values url.Values, out any) error {
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, out)
}

// getJSON issues a rate-limited, retried GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, out)
}

// do runs one logical Graph call: wait for the limiter, send, retry
// transient failures, parse the error envelope on non-2xx, decode on 2xx.
// The request is rebuilt per attempt because form bodies are not rewindable.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error), out any) error {
	var body []byte
	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			req, err := build()
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return errors.Wrap(err, "graph request failed")
			}
			defer resp.Body.Close()

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return errors.Wrap(err, "reading graph response")
			}
			if resp.StatusCode >= 500 {
				return fmt.Errorf("graph returned status %d: %s", resp.StatusCode, truncate(body, 512))
			}
			if resp.StatusCode >= 400 {
				// Client errors carry the error envelope and are never
				// retryable at this layer.
				return retry.Unrecoverable(parseGraphError(resp.StatusCode, body))
			}
			return nil
		},
		retry.Attempts(transientAttempts),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		var perr *model.PipelineError
		if errors.As(err, &perr) {
			return perr
		}
		return model.NewPipelineError(model.ErrUnknown, "graph", err)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return model.NewPipelineError(model.ErrUnknown, "graph", errors.Wrap(err, "decoding graph response"))
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
