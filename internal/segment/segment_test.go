package segment

import (
	"testing"

	"github.com/vsbridge/vsbridge/internal/xerrors"
)

func TestCreateThenOpenSeesSameFrameBytes(t *testing.T) {
	name := "seg-test-create-open"
	h, err := Create(name, 4096)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer h.Close()

	h2, err := Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h2.Close()

	if h2.FrameBytes() != 4096 {
		t.Fatalf("FrameBytes = %d, want 4096", h2.FrameBytes())
	}
}

func TestCreateRejectsZeroFrameBytes(t *testing.T) {
	if _, err := Create("seg-test-zero", 0); err == nil {
		t.Fatalf("expected error for zero frame_bytes")
	} else if !xerrors.Is(err, xerrors.KindSize) {
		t.Fatalf("expected SizeError, got %v", err)
	}
}

func TestCreateRejectsFrameBytesAboveMax(t *testing.T) {
	if _, err := Create("seg-test-toolarge", MaxFrameBytes+1); err == nil {
		t.Fatalf("expected error for over-max frame_bytes")
	} else if !xerrors.Is(err, xerrors.KindSize) {
		t.Fatalf("expected SizeError, got %v", err)
	}
}

func TestCreateWithMismatchedSizeFails(t *testing.T) {
	name := "seg-test-mismatch"
	h, err := Create(name, 1024)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer h.Close()

	if _, err := Create(name, 2048); err == nil {
		t.Fatalf("expected size mismatch error")
	} else if !xerrors.Is(err, xerrors.KindChannelOpen) {
		t.Fatalf("expected ChannelOpenError, got %v", err)
	}
}

func TestOpenMissingSegmentFails(t *testing.T) {
	if _, err := Open("seg-test-does-not-exist"); err == nil {
		t.Fatalf("expected error opening a missing segment")
	} else if !xerrors.Is(err, xerrors.KindChannelOpen) {
		t.Fatalf("expected ChannelOpenError, got %v", err)
	}
}

func TestRegionsAreDisjointAndSizedToFrameBytes(t *testing.T) {
	name := "seg-test-regions"
	h, err := Create(name, 16)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer h.Close()

	h2s := h.Region(DirH2S)
	s2h := h.Region(DirS2H)
	if len(h2s) != 16 || len(s2h) != 16 {
		t.Fatalf("unexpected region sizes: h2s=%d s2h=%d", len(h2s), len(s2h))
	}

	h2s[0] = 0xAB
	if s2h[0] == 0xAB {
		t.Fatalf("regions alias each other")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h, err := Create("seg-test-close-idempotent", 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
