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

// This file implements the three-phase resumable video upload.
//
// Logic Flow:
//  1. start: declare the total byte size; the platform returns a video id
//     and an upload session id.
//  2. transfer: send fixed-size chunks strictly in order. Every call carries
//     the session id and the explicit start_offset of the chunk it delivers;
//     the platform echoes the next expected offset, which is verified before
//     the next chunk is cut. There is no parallel chunk upload.
//  3. finish: attach caption/labels/locale and close the session; the video
//     id from start is the published result.
//
// A failure in any phase aborts the whole attempt. Sessions live entirely
// inside one attempt and are never persisted or resumed across process
// restarts.
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
	"strconv"

	"github.com/pkg/errors"

	"github.com/jaycherian/go-social-publisher/internal/core/model"
)

// startResponse is the body of the upload_phase=start call.
type startResponse struct {
	VideoID         string `json:"video_id"`
	UploadSessionID string `json:"upload_session_id"`
	StartOffset     string `json:"start_offset"`
	EndOffset       string `json:"end_offset"`
}

// transferResponse is the body of an upload_phase=transfer call.
type transferResponse struct {
	StartOffset string `json:"start_offset"`
	EndOffset   string `json:"end_offset"`
}

// finishResponse is the body of the upload_phase=finish call.
type finishResponse struct {
	Success bool `json:"success"`
}

// publishVideoResumable drives the full three-phase protocol for one file.
func (c *Client) publishVideoResumable(ctx context.Context, pageID, token, filePath string, totalSize int64, meta VideoMeta) (string, error) {
	endpoint := c.endpoint(c.videoHost, pageID, "videos")

	session, err := c.startUpload(ctx, endpoint, token, totalSize)
	if err != nil {
		return "", err
	}

	if err := c.transferChunks(ctx, endpoint, token, filePath, session); err != nil {
		return "", err
	}

	if err := c.finishUpload(ctx, endpoint, token, session, meta); err != nil {
		return "", err
	}
	return session.VideoID, nil
}

// startUpload opens a session for a file of the declared size.
func (c *Client) startUpload(ctx context.Context, endpoint, token string, totalSize int64) (*model.UploadSession, error) {
	values := url.Values{
		"upload_phase": {"start"},
		"file_size":    {strconv.FormatInt(totalSize, 10)},
		"access_token": {token},
	}
	var out startResponse
	if err := c.postForm(ctx, endpoint, values, &out); err != nil {
		return nil, err
	}
	if out.UploadSessionID == "" || out.VideoID == "" {
		return nil, model.NewPipelineError(model.ErrUnknown, "graph",
			fmt.Errorf("start phase returned no session (video_id=%q)", out.VideoID))
	}
	return &model.UploadSession{
		VideoID:         out.VideoID,
		UploadSessionID: out.UploadSessionID,
		TotalSize:       totalSize,
	}, nil
}

// transferChunks streams the file in fixed-size, strictly ordered chunks.
// BytesSent on the session grows monotonically as the platform acknowledges
// each offset.
func (c *Client) transferChunks(ctx context.Context, endpoint, token, filePath string, session *model.UploadSession) error {
	file, err := os.Open(filePath)
	if err != nil {
		return model.NewPipelineError(model.ErrUnknown, "graph", errors.Wrap(err, "open video file"))
	}
	defer file.Close()

	chunkSize := c.cfg.ChunkSizeBytes
	if chunkSize <= 0 {
		chunkSize = 8 << 20
	}
	chunk := make([]byte, chunkSize)

	for session.BytesSent < session.TotalSize {
		n, err := io.ReadFull(file, chunk)
		if err == io.ErrUnexpectedEOF {
			err = nil // final partial chunk
		}
		if err != nil || n == 0 {
			return model.NewPipelineError(model.ErrUnknown, "graph",
				fmt.Errorf("reading chunk at offset %d: %v", session.BytesSent, err))
		}

		resp, err := c.transferChunk(ctx, endpoint, token, session, chunk[:n])
		if err != nil {
			return err
		}

		nextOffset, parseErr := strconv.ParseInt(resp.StartOffset, 10, 64)
		if parseErr != nil {
			return model.NewPipelineError(model.ErrUnknown, "graph",
				fmt.Errorf("transfer phase returned unparseable offset %q", resp.StartOffset))
		}
		expected := session.BytesSent + int64(n)
		if nextOffset != expected {
			return model.NewPipelineError(model.ErrUnknown, "graph",
				fmt.Errorf("offset drift: sent through %d, platform expects %d", expected, nextOffset))
		}
		session.BytesSent = expected
	}
	return nil
}

// transferChunk sends one chunk with its explicit start offset.
func (c *Client) transferChunk(ctx context.Context, endpoint, token string, session *model.UploadSession, chunk []byte) (*transferResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := map[string]string{
		"upload_phase":      "transfer",
		"upload_session_id": session.UploadSessionID,
		"start_offset":      strconv.FormatInt(session.BytesSent, 10),
		"access_token":      token,
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, model.NewPipelineError(model.ErrUnknown, "graph", err)
		}
	}
	part, err := writer.CreateFormFile("video_file_chunk", "chunk")
	if err != nil {
		return nil, model.NewPipelineError(model.ErrUnknown, "graph", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return nil, model.NewPipelineError(model.ErrUnknown, "graph", err)
	}
	if err := writer.Close(); err != nil {
		return nil, model.NewPipelineError(model.ErrUnknown, "graph", err)
	}

	body := buf.Bytes()
	var out transferResponse
	err = c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// finishUpload closes the session and attaches the post metadata.
func (c *Client) finishUpload(ctx context.Context, endpoint, token string, session *model.UploadSession, meta VideoMeta) error {
	values := url.Values{
		"upload_phase":      {"finish"},
		"upload_session_id": {session.UploadSessionID},
		"description":       {meta.Caption},
		"access_token":      {token},
	}
	if encoded := SanitizeLabels(meta.Labels); encoded != "" {
		values.Set("custom_labels", encoded)
	}
	if meta.Locale != "" {
		values.Set("locale", meta.Locale)
	}
	var out finishResponse
	if err := c.postForm(ctx, endpoint, values, &out); err != nil {
		return err
	}
	if !out.Success {
		return model.NewPipelineError(model.ErrUnknown, "graph",
			fmt.Errorf("finish phase reported success=false for session %s", session.UploadSessionID))
	}
	return nil
}
