package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseJSONFileOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `{"channel_prefix":"custom","default_frame_bytes":8388608,"quiet":true}`)

	cfg := Default()
	if err := ParseJSONFile(&cfg, path); err != nil {
		t.Fatalf("ParseJSONFile returned error: %v", err)
	}

	if cfg.ChannelNamePrefix != "custom" {
		t.Fatalf("unexpected channel prefix: %+v", cfg)
	}
	if cfg.DefaultFrameBytes != 8388608 {
		t.Fatalf("unexpected default frame bytes: %+v", cfg)
	}
	if !cfg.Quiet {
		t.Fatalf("expected quiet to be overridden to true: %+v", cfg)
	}
	// Fields absent from the file keep their default value.
	if cfg.DefaultChunkSize != Default().DefaultChunkSize {
		t.Fatalf("unexpected chunk size drift: %+v", cfg)
	}
}

func TestParseJSONFileMissing(t *testing.T) {
	cfg := Default()
	missing := filepath.Join(t.TempDir(), "missing.json")
	if err := ParseJSONFile(&cfg, missing); err == nil {
		t.Fatalf("ParseJSONFile expected error for missing file")
	}
}

func TestPullTimeoutUsesFloorForSmallFrames(t *testing.T) {
	cfg := Default()
	got := cfg.PullTimeout(1 << 20) // 1 MiB
	want := 30_000_000_000          // 30s in ns
	if got.Nanoseconds() != int64(want) {
		t.Fatalf("PullTimeout(1MiB) = %v, want 30s floor", got)
	}
}

func TestPullTimeoutScalesWithFrameSize(t *testing.T) {
	cfg := Default()
	got := cfg.PullTimeout(100 << 20) // 100 MiB -> 200s, above the 30s floor
	if got.Seconds() != 200 {
		t.Fatalf("PullTimeout(100MiB) = %v, want 200s", got)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}
