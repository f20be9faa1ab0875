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

// This file defines the fixed transcoding profile ladder. Profiles are
// ordered quality-descending: when a direct upload is rejected as bad media,
// the workflow walks the ladder so the smallest acceptable quality loss is
// always tried first. Every profile emits H.264/AAC in an MP4 container with
// yuv420p pixel format and the faststart flag for progressive playback,
// since those are the parameters the target platform reliably accepts.
package transcode

// Profile is one rung of the quality ladder: a stable name plus the encoder
// arguments specific to that rung.
type Profile struct {
	Name string
	// encodeArgs are the profile-specific flags placed between the input
	// and the shared output arguments.
	encodeArgs []string
}

// Args assembles the full ffmpeg argument list for this profile.
//
// The shared prefix mirrors the probing optimizations used elsewhere in the
// pipeline (-analyzeduration 0 -probesize 5000000), overwrites without
// prompting, and suppresses the banner. The shared suffix forces the pixel
// format, audio codec, faststart flag, and MP4 output every rung needs.
func (p Profile) Args(inputPath, outputPath string) []string {
	args := []string{
		"-analyzeduration", "0",
		"-probesize", "5000000",
		"-y", "-hide_banner",
		"-i", inputPath,
	}
	args = append(args, p.encodeArgs...)
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-f", "mp4",
		outputPath,
	)
	return args
}

// Ladder returns the transcoding profiles in strict fallback order.
//
// Outputs:
//   - []Profile: compatible → high_quality → standard → facebook_compatible.
func Ladder() []Profile {
	return []Profile{
		{
			// Same resolution, quality-targeted encode with a capped
			// bitrate. Fixes container/codec incompatibilities without any
			// visible quality loss.
			Name: "compatible",
			encodeArgs: []string{
				"-c:v", "libx264",
				"-preset", "medium",
				"-crf", "20",
				"-maxrate", "8M",
				"-bufsize", "16M",
				"-c:a", "aac",
				"-b:a", "192k",
			},
		},
		{
			// 720p downscale. The scale filter keeps the aspect ratio and
			// forces an even width, which H.264 requires.
			Name: "high_quality",
			encodeArgs: []string{
				"-vf", "scale=-2:720",
				"-c:v", "libx264",
				"-preset", "medium",
				"-crf", "23",
				"-maxrate", "4M",
				"-bufsize", "8M",
				"-c:a", "aac",
				"-b:a", "128k",
			},
		},
		{
			// 480p baseline profile, the most broadly decodable output the
			// ladder produces before the platform-tuned last resort.
			Name: "standard",
			encodeArgs: []string{
				"-vf", "scale=-2:480",
				"-c:v", "libx264",
				"-profile:v", "baseline",
				"-level", "3.0",
				"-preset", "fast",
				"-crf", "26",
				"-maxrate", "2M",
				"-bufsize", "4M",
				"-c:a", "aac",
				"-b:a", "96k",
			},
		},
		{
			// Facebook's documented recommended upload parameters: 720p at
			// 30fps, main profile, 44.1kHz stereo audio.
			Name: "facebook_compatible",
			encodeArgs: []string{
				"-vf", "scale=-2:720,fps=30",
				"-c:v", "libx264",
				"-profile:v", "main",
				"-level", "4.0",
				"-preset", "medium",
				"-crf", "23",
				"-maxrate", "4M",
				"-bufsize", "8M",
				"-c:a", "aac",
				"-b:a", "128k",
				"-ar", "44100",
				"-ac", "2",
			},
		},
	}
}
