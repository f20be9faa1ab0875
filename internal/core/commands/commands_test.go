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

package commands_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/go-social-publisher/internal/core/commands"
	"github.com/jaycherian/go-social-publisher/internal/core/cor"
	"github.com/jaycherian/go-social-publisher/internal/core/fetch"
	"github.com/jaycherian/go-social-publisher/internal/core/model"
	"github.com/jaycherian/go-social-publisher/internal/core/transcode"
	"github.com/jaycherian/go-social-publisher/internal/graph"
	"github.com/jaycherian/go-social-publisher/internal/platform"
)

func newFetcherForTest(t *testing.T) *fetch.Fetcher {
	t.Helper()
	cfg := platform.NewConfig().Fetch
	return fetch.NewFetcher(cfg, t.TempDir())
}

// fakePublisher scripts per-path upload outcomes. Keys are file paths; a
// missing key means success with a generated id.
type fakePublisher struct {
	failures map[string]error
	calls    []string
}

func (p *fakePublisher) PublishVideo(_ context.Context, _, _, filePath string, _ graph.VideoMeta) (string, error) {
	p.calls = append(p.calls, filePath)
	if err, ok := p.failures[filePath]; ok {
		return "", err
	}
	return "post_" + filepath.Base(filePath), nil
}

// fakeTranscoder fabricates encoded outputs without running ffmpeg.
type fakeTranscoder struct {
	dir      string
	err      error
	profiles []string
	cleaned  int
}

func (tr *fakeTranscoder) Transcode(_ context.Context, _ string, profile transcode.Profile) (*transcode.Result, error) {
	tr.profiles = append(tr.profiles, profile.Name)
	if tr.err != nil {
		return nil, tr.err
	}
	path := filepath.Join(tr.dir, "encoded_"+profile.Name+".mp4")
	if err := os.WriteFile(path, []byte("encoded"), 0o644); err != nil {
		return nil, err
	}
	return &transcode.Result{
		OutputPath: path,
		SizeBytes:  7,
		Profile:    profile.Name,
		Cleanup:    func() { tr.cleaned++; _ = os.Remove(path) },
	}, nil
}

func uploadContext(t *testing.T, fetchedPath string) cor.Context {
	t.Helper()
	ctx := cor.NewBaseContext()
	ctx.SetContext(context.Background())
	ctx.Add(cor.CtxIn, &model.FetchResult{Success: true, FilePath: fetchedPath, SizeBytes: 1 << 20, Strategy: "direct_download"})
	return ctx
}

func testRequest() *model.UploadRequest {
	return &model.UploadRequest{
		PageID:      "page1",
		AccessToken: "tok",
		VideoURL:    "https://cdn.example.com/promo.mp4",
		Caption:     "promo",
		Language:    "en_US",
	}
}

func TestDirectUploadWinsWithoutTranscoding(t *testing.T) {
	fetched := filepath.Join(t.TempDir(), "working_1_abc.mp4")
	require.NoError(t, os.WriteFile(fetched, []byte("video"), 0o644))

	publisher := &fakePublisher{}
	transcoder := &fakeTranscoder{dir: t.TempDir()}
	chain := commands.NewVideoUploadChain(transcoder, publisher, testRequest())

	ctx := uploadContext(t, fetched)
	chain.Execute(ctx)

	require.False(t, ctx.HasErrors(), "errors: %v", ctx.GetErrors())
	outcome := ctx.Get(cor.CtxOut).(*model.UploadOutcome)
	assert.True(t, outcome.Success)
	assert.Equal(t, commands.MethodDirect, outcome.Method)
	assert.Empty(t, transcoder.profiles, "no encoding may happen when the original is accepted")
}

func TestMediaRejectionFallsThroughTheLadder(t *testing.T) {
	fetched := filepath.Join(t.TempDir(), "working_2_def.mp4")
	require.NoError(t, os.WriteFile(fetched, []byte("video"), 0o644))

	encodeDir := t.TempDir()
	transcoder := &fakeTranscoder{dir: encodeDir}
	mediaErr := model.NewPipelineError(model.ErrPlatformMediaRejected, "graph",
		fmt.Errorf("unsupported format"))
	publisher := &fakePublisher{failures: map[string]error{
		fetched: mediaErr,
		filepath.Join(encodeDir, "encoded_compatible.mp4"): mediaErr,
	}}

	chain := commands.NewVideoUploadChain(transcoder, publisher, testRequest())
	ctx := uploadContext(t, fetched)
	chain.Execute(ctx)

	require.False(t, ctx.HasErrors(), "errors: %v", ctx.GetErrors())
	outcome := ctx.Get(cor.CtxOut).(*model.UploadOutcome)
	assert.True(t, outcome.Success)
	assert.Equal(t, "high_quality", outcome.Method,
		"the outcome must record that a degraded variant was published")
	assert.Equal(t, []string{"compatible", "high_quality"}, transcoder.profiles,
		"the ladder advances one rung per rejection, in order")

	// Encoded intermediates are reclaimed when the workflow context closes.
	ctx.Close()
	assert.Equal(t, 2, transcoder.cleaned)
}

func TestAuthFailureStopsBeforeTranscoding(t *testing.T) {
	fetched := filepath.Join(t.TempDir(), "working_3_ghi.mp4")
	require.NoError(t, os.WriteFile(fetched, []byte("video"), 0o644))

	transcoder := &fakeTranscoder{dir: t.TempDir()}
	publisher := &fakePublisher{failures: map[string]error{
		fetched: model.NewPipelineError(model.ErrPlatformAuthFailure, "graph",
			fmt.Errorf("Error validating access token")),
	}}

	chain := commands.NewVideoUploadChain(transcoder, publisher, testRequest())
	ctx := uploadContext(t, fetched)
	chain.Execute(ctx)

	require.True(t, ctx.HasErrors())
	assert.Empty(t, transcoder.profiles,
		"re-encoding cannot fix an expired token, so no profile may run")

	var kinds []model.ErrorKind
	for _, err := range ctx.GetErrors() {
		kinds = append(kinds, model.Classify(err).Kind)
	}
	assert.Contains(t, kinds, model.ErrPlatformAuthFailure)
}

func TestGenericPlatformErrorStopsLadder(t *testing.T) {
	fetched := filepath.Join(t.TempDir(), "working_4_jkl.mp4")
	require.NoError(t, os.WriteFile(fetched, []byte("video"), 0o644))

	transcoder := &fakeTranscoder{dir: t.TempDir()}
	publisher := &fakePublisher{failures: map[string]error{
		fetched: fmt.Errorf("unexpected response from platform"),
	}}

	chain := commands.NewVideoUploadChain(transcoder, publisher, testRequest())
	ctx := uploadContext(t, fetched)
	chain.Execute(ctx)

	require.True(t, ctx.HasErrors())
	assert.Empty(t, transcoder.profiles,
		"only a media rejection justifies re-encoding; unclassified errors surface directly")
	assert.Len(t, publisher.calls, 1)
}

func TestSourceFetchChainRunsOnFreshContext(t *testing.T) {
	// A publish begins with nothing under the chain's piping keys; the
	// download strategies take their input from the reference bound at
	// construction time and must still execute.
	payload := []byte{0x00, 0x00, 0x00, 0x20}
	payload = append(payload, []byte("ftypisom")...)
	payload = append(payload, make([]byte, 4096-len(payload))...)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	cfg := platform.NewConfig().Fetch
	cfg.MinVideoSizeBytes = 64
	fetcher := fetch.NewFetcher(cfg, t.TempDir())

	ref, ok := model.NewVideoReference(server.URL + "/clip.mp4")
	require.True(t, ok)
	chain, err := commands.NewSourceFetchChain(fetcher, ref)
	require.NoError(t, err)

	ctx := cor.NewBaseContext()
	ctx.SetContext(context.Background())
	chain.Execute(ctx)

	require.False(t, ctx.HasErrors(), "errors: %v", ctx.GetErrors())
	result, ok := ctx.Get(cor.CtxOut).(*model.FetchResult)
	require.True(t, ok, "the winning strategy must leave its fetch result for the enclosing chain")
	assert.FileExists(t, result.FilePath)
}

func TestSourceFetchChainNamesStrategies(t *testing.T) {
	// Built from a reference with a multi-strategy table, the chain carries
	// one command per strategy; a malformed reference fails construction.
	fetcher := newFetcherForTest(t)

	ref, ok := model.NewVideoReference("https://drive.google.com/file/d/1AbCdEfGhIjKlMnOp/view")
	require.True(t, ok)
	chain, err := commands.NewSourceFetchChain(fetcher, ref)
	require.NoError(t, err)
	assert.Equal(t, "source_fetch", chain.GetName())

	bad, ok := model.NewVideoReference("https://drive.google.com/drive/my-drive")
	require.True(t, ok)
	_, err = commands.NewSourceFetchChain(fetcher, bad)
	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.ErrMalformedReference, perr.Kind)
}
