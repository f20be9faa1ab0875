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

// This file implements the scratch-disk janitor, the last line of defense
// against disk exhaustion when per-attempt cleanup closures are missed
// (process crash mid-upload, panicking strategy before registration).
//
// Logic Flow:
// The janitor sweeps on a fixed schedule plus once at process start. A sweep
// enumerates the scratch directory and deletes entries it can claim by one
// of two heuristics: the work-file naming prefix every pipeline component
// uses, or a known video file extension. Age shields in-flight uploads: only
// entries older than the configured maximum are touched. Deletion failures
// (file locked, already gone) are logged and skipped; the sweep never
// crashes the scheduler. After sweeping, aggregate disk usage is logged and
// a non-fatal warning fires above the high-water mark.
package workflow

import (
	goctx "context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sys/unix"

	"github.com/jaycherian/go-social-publisher/internal/core/fetch"
	"github.com/jaycherian/go-social-publisher/internal/platform"
)

// videoExtensions is the sweep's extension allow list. Anything else in the
// scratch directory is left alone: the janitor deletes only what the
// pipeline plausibly created.
var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".webm": true,
	".mkv": true, ".flv": true, ".m4v": true,
}

// SweepStats summarizes one sweep for logging and the stats endpoint.
type SweepStats struct {
	Examined     int       `json:"examined"`      // Entries enumerated in the scratch directory.
	Deleted      int       `json:"deleted"`       // Entries removed this sweep.
	Skipped      int       `json:"skipped"`       // Claimable entries left in place (too young or locked).
	ReclaimedMB  int64     `json:"reclaimed_mb"`  // Approximate bytes reclaimed, in megabytes.
	DiskUsedPct  float64   `json:"disk_used_pct"` // Filesystem usage of the scratch volume after the sweep.
	LastSweep    time.Time `json:"last_sweep"`
	HighWaterHit bool      `json:"high_water_hit"` // Whether usage exceeded the configured high-water mark.
}

// DiskJanitor periodically reclaims stale scratch files.
type DiskJanitor struct {
	cfg        platform.Janitor
	scratchDir string

	mu   sync.Mutex
	last SweepStats

	stop     chan struct{}
	stopOnce sync.Once
}

// NewDiskJanitor is the constructor for DiskJanitor.
//
// Inputs:
//   - cfg: The janitor section of the application configuration.
//   - scratchDir: The directory to sweep.
//
// Outputs:
//   - *DiskJanitor: A pointer to the newly instantiated janitor.
func NewDiskJanitor(cfg platform.Janitor, scratchDir string) *DiskJanitor {
	return &DiskJanitor{cfg: cfg, scratchDir: scratchDir, stop: make(chan struct{})}
}

// StartTimer kicks off the background sweep loop: one sweep immediately,
// then one per configured interval. It runs until Stop is called or the
// application shuts down.
func (j *DiskJanitor) StartTimer() {
	tracer := otel.Tracer("disk-janitor")
	ticker := time.NewTicker(time.Duration(j.cfg.SweepIntervalHours) * time.Hour)

	run := func() {
		traceCtx, span := tracer.Start(goctx.Background(), "scratch-sweep")
		stats := j.Sweep(traceCtx)
		if stats.HighWaterHit {
			span.SetStatus(codes.Error, "disk usage above high-water mark")
		} else {
			span.SetStatus(codes.Ok, "sweep completed")
		}
		span.End()
	}

	go func() {
		run()
		for {
			select {
			case <-ticker.C:
				run()
			case <-j.stop:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop terminates the sweep loop. Safe to call more than once.
func (j *DiskJanitor) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
}

// LastStats returns the most recent sweep summary.
func (j *DiskJanitor) LastStats() SweepStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Sweep performs one pass over the scratch directory.
//
// Inputs:
//   - ctx: Caller context, carried for trace correlation in logs.
//
// Outputs:
//   - SweepStats: The summary of this sweep.
func (j *DiskJanitor) Sweep(ctx goctx.Context) SweepStats {
	stats := SweepStats{LastSweep: time.Now()}
	cutoff := time.Now().Add(-time.Duration(j.cfg.MaxAgeHours) * time.Hour)

	entries, err := os.ReadDir(j.scratchDir)
	if err != nil {
		// A missing scratch dir is not an emergency; it will be recreated
		// by the next fetch.
		slog.WarnContext(ctx, "janitor could not read scratch dir", "dir", j.scratchDir, "error", err)
		return j.record(stats)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stats.Examined++
		if !j.claimable(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			stats.Skipped++
			continue
		}
		if info.ModTime().After(cutoff) {
			// Young enough to belong to an in-flight upload.
			stats.Skipped++
			continue
		}

		path := filepath.Join(j.scratchDir, entry.Name())
		if err := os.Remove(path); err != nil {
			// Locked or already gone. Log and move on; never crash the
			// scheduler over one file.
			slog.WarnContext(ctx, "janitor skipping undeletable file", "path", path, "error", err)
			stats.Skipped++
			continue
		}
		stats.Deleted++
		stats.ReclaimedMB += info.Size() / (1 << 20)
	}

	stats.DiskUsedPct = diskUsedPercent(j.scratchDir)
	stats.HighWaterHit = stats.DiskUsedPct >= j.cfg.HighWaterMarkPercent

	slog.InfoContext(ctx, "scratch sweep completed",
		"examined", stats.Examined,
		"deleted", stats.Deleted,
		"skipped", stats.Skipped,
		"reclaimed_mb", stats.ReclaimedMB,
		"disk_used_pct", stats.DiskUsedPct)
	if stats.HighWaterHit {
		slog.WarnContext(ctx, "scratch volume above high-water mark",
			"disk_used_pct", stats.DiskUsedPct,
			"high_water_pct", j.cfg.HighWaterMarkPercent)
	}
	return j.record(stats)
}

func (j *DiskJanitor) record(stats SweepStats) SweepStats {
	j.mu.Lock()
	j.last = stats
	j.mu.Unlock()
	return stats
}

// claimable reports whether the janitor may delete this entry: either it
// carries the pipeline's work-file prefix, or it has a video extension.
// Ownership is decided by name alone; no manifest exists.
func (j *DiskJanitor) claimable(name string) bool {
	if strings.HasPrefix(name, fetch.ScratchFilePrefix+"_") {
		return true
	}
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

// diskUsedPercent returns filesystem usage for the volume holding path, or
// zero when it cannot be determined.
func diskUsedPercent(path string) float64 {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil || st.Blocks == 0 {
		return 0
	}
	used := float64(st.Blocks-st.Bavail) / float64(st.Blocks)
	return used * 100
}
