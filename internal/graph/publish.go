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

// This file implements the three publish operations.
//
// Logic Flow (video):
//  1. Stat the file and branch on the resumable threshold (~50MB).
//  2. Below the threshold, one multipart POST to /{page}/videos on the
//     video host carries the whole file plus metadata.
//  3. Above it, the three-phase resumable protocol in resumable.go takes
//     over: start declares the size, transfer streams ordered chunks,
//     finish attaches metadata and yields the post id.
package graph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jaycherian/go-social-publisher/internal/core/model"
)

// VideoMeta is the metadata attached to a published video.
type VideoMeta struct {
	Caption string
	Labels  []string
	Locale  string
}

// publishResponse is the success body shared by the publish endpoints.
type publishResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// PublishText posts a text (optionally linked) update to a page feed.
//
// Inputs:
//   - ctx: Caller context.
//   - pageID: The target page.
//   - token: The page access token.
//   - message: The post body.
//   - link: Optional URL to attach; empty to omit.
//
// Outputs:
//   - string: The created post id.
//   - error: A classified *model.PipelineError on failure.
func (c *Client) PublishText(ctx context.Context, pageID, token, message, link string) (string, error) {
	values := url.Values{
		"message":      {message},
		"access_token": {token},
	}
	if link != "" {
		values.Set("link", link)
	}
	var out publishResponse
	if err := c.postForm(ctx, c.endpoint(c.graphHost, pageID, "feed"), values, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// PublishPhoto posts a remote-hosted photo to a page.
func (c *Client) PublishPhoto(ctx context.Context, pageID, token, photoURL, caption string, labels []string, locale string) (string, error) {
	values := url.Values{
		"url":          {photoURL},
		"caption":      {caption},
		"access_token": {token},
	}
	if encoded := SanitizeLabels(labels); encoded != "" {
		values.Set("custom_labels", encoded)
	}
	if locale != "" {
		values.Set("locale", locale)
	}
	var out publishResponse
	if err := c.postForm(ctx, c.endpoint(c.graphHost, pageID, "photos"), values, &out); err != nil {
		return "", err
	}
	if out.PostID != "" {
		return out.PostID, nil
	}
	return out.ID, nil
}

// PublishVideo uploads a local video file to a page, selecting the transport
// by file size.
//
// Inputs:
//   - ctx: Caller context.
//   - pageID: The target page.
//   - token: The page access token.
//   - filePath: The local video file to upload.
//   - meta: Caption, labels, and locale attached to the post.
//
// Outputs:
//   - string: The platform video id.
//   - error: A classified *model.PipelineError on failure.
func (c *Client) PublishVideo(ctx context.Context, pageID, token, filePath string, meta VideoMeta) (string, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return "", model.NewPipelineError(model.ErrUnknown, "graph", errors.Wrap(err, "stat video file"))
	}
	if info.Size() > c.cfg.ResumableThresholdBytes {
		return c.publishVideoResumable(ctx, pageID, token, filePath, info.Size(), meta)
	}
	return c.publishVideoSimple(ctx, pageID, token, filePath, meta)
}

// PublishVideoFromURL publishes a video the platform fetches itself via the
// file_url parameter. Only usable when the source URL is publicly reachable,
// which the fetched scratch files never are; the service layer offers it for
// already-hosted content.
func (c *Client) PublishVideoFromURL(ctx context.Context, pageID, token, videoURL string, meta VideoMeta) (string, error) {
	values := url.Values{
		"file_url":     {videoURL},
		"description":  {meta.Caption},
		"access_token": {token},
	}
	if encoded := SanitizeLabels(meta.Labels); encoded != "" {
		values.Set("custom_labels", encoded)
	}
	if meta.Locale != "" {
		values.Set("locale", meta.Locale)
	}
	var out publishResponse
	if err := c.postForm(ctx, c.endpoint(c.videoHost, pageID, "videos"), values, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// publishVideoSimple uploads the whole file in one multipart request.
func (c *Client) publishVideoSimple(ctx context.Context, pageID, token, filePath string, meta VideoMeta) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", model.NewPipelineError(model.ErrUnknown, "graph", errors.Wrap(err, "open video file"))
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := map[string]string{
		"description":  meta.Caption,
		"access_token": token,
	}
	if encoded := SanitizeLabels(meta.Labels); encoded != "" {
		fields["custom_labels"] = encoded
	}
	if meta.Locale != "" {
		fields["locale"] = meta.Locale
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return "", model.NewPipelineError(model.ErrUnknown, "graph", err)
		}
	}
	part, err := writer.CreateFormFile("source", filepath.Base(filePath))
	if err != nil {
		return "", model.NewPipelineError(model.ErrUnknown, "graph", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", model.NewPipelineError(model.ErrUnknown, "graph", errors.Wrap(err, "buffering video file"))
	}
	if err := writer.Close(); err != nil {
		return "", model.NewPipelineError(model.ErrUnknown, "graph", err)
	}

	endpoint := c.endpoint(c.videoHost, pageID, "videos")
	body := buf.Bytes()
	var out publishResponse
	err = c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", model.NewPipelineError(model.ErrUnknown, "graph",
			fmt.Errorf("video upload succeeded but no id was returned"))
	}
	return out.ID, nil
}
