// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package config loads host-side bridge defaults from a JSON file over a
// set of CLI-flag defaults, adapted from kcptun's server/config.go
// parseJSONConfig: flags establish sane defaults, an optional JSON config
// file overrides them, and a missing file is a hard error rather than a
// silently-ignored override.
package config

import (
	"encoding/json"
	"os"
	"time"
)

// Config holds the host-side bridge's tunable defaults.
type Config struct {
	// ChannelNamePrefix prefixes generated channel names (spec.md §6:
	// "typically vsbridge_<uuid>").
	ChannelNamePrefix string `json:"channel_prefix"`
	// DefaultFrameBytes is used when a facade call omits frame_bytes.
	DefaultFrameBytes uint64 `json:"default_frame_bytes"`
	// DefaultChunkSize is a configurable chunk size. No facade operation
	// reads it: RunCommandIntoBuffer's chunked path derives its chunk size
	// from the channel's frame_bytes.
	DefaultChunkSize uint64 `json:"default_chunk_size"`
	// PublishTimeoutMS bounds a single-shot or per-chunk ack wait.
	PublishTimeoutMS int `json:"publish_timeout_ms"`
	// PullTimeoutFloorSeconds is the minimum pull timeout regardless of
	// frame size (spec.md §6 facade default: "max(30s, 2s/MiB*frame_bytes)").
	PullTimeoutFloorSeconds int `json:"pull_timeout_floor_seconds"`
	// PullTimeoutPerMiBMS is the per-MiB component of the pull default.
	PullTimeoutPerMiBMS int `json:"pull_timeout_per_mib_ms"`
	// Quiet suppresses the CLI banner.
	Quiet bool `json:"quiet"`
	// Pprof enables the net/http/pprof mux, exactly as kcptun's -pprof flag.
	Pprof bool `json:"pprof"`
}

// Default returns the built-in defaults before any flag or file override is
// applied.
func Default() Config {
	return Config{
		ChannelNamePrefix:       "vsbridge",
		DefaultFrameBytes:       4 << 20, // 4 MiB
		DefaultChunkSize:        4 << 20,
		PublishTimeoutMS:        30_000,
		PullTimeoutFloorSeconds: 30,
		PullTimeoutPerMiBMS:     2000,
	}
}

// ParseJSONFile merges path's JSON contents into cfg, overriding only the
// fields present in the file (encoding/json leaves absent fields alone).
func ParseJSONFile(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cfg)
}

// PullTimeout computes the facade default pull timeout for a region of
// frameBytes (spec.md §6).
func (c Config) PullTimeout(frameBytes uint64) time.Duration {
	floor := time.Duration(c.PullTimeoutFloorSeconds) * time.Second
	mib := float64(frameBytes) / (1 << 20)
	scaled := time.Duration(mib*float64(c.PullTimeoutPerMiBMS)) * time.Millisecond
	if scaled > floor {
		return scaled
	}
	return floor
}

// PublishTimeout returns the configured per-publication timeout.
func (c Config) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutMS) * time.Millisecond
}
