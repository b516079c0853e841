// Package segment implements the shared segment of a vsbridge channel: a
// named, fixed-capacity mapping laid out as a control-word header followed by
// two symmetric per-direction data regions. Segment owns bytes only; the
// synchronization protocol lives in package events and the transfer state
// machine in package transfer.
package segment

import (
	"github.com/vsbridge/vsbridge/internal/xerrors"
)

// Header field byte offsets. All widths and offsets are part of the external
// contract (spec.md §6): every word is 4- or 8-byte aligned so it can be
// addressed with sync/atomic without further padding tricks.
const (
	OffFrameBytes    = 0  // u64, write-once at create
	OffH2SSeq        = 8  // u64
	OffS2HSeq        = 16 // u64
	OffH2SLen        = 24 // u64
	OffS2HLen        = 32 // u64
	OffH2STotal      = 40 // u64
	OffS2HTotal      = 48 // u64
	OffH2SChunkSize  = 56 // u64
	OffS2HChunkSize  = 64 // u64
	OffH2SChunkIdx   = 72 // u32
	OffS2HChunkIdx   = 76 // u32
	OffH2SState      = 80 // u32
	OffS2HState      = 84 // u32
	HeaderSize       = 96 // rounded up to a 16-byte boundary
)

// Direction-local transfer states (spec.md §3).
const (
	StateIdle     uint32 = 0
	StateTransfer uint32 = 1
	StateComplete uint32 = 2
)

// MaxFrameBytes bounds a single region's capacity. Chosen generously for
// the "tens to hundreds of MiB" payloads spec.md §1 targets, while keeping a
// create() call with a bad size fail fast instead of exhausting backing
// store.
const MaxFrameBytes = 1 << 31 // 2 GiB

// Handle owns a mapped shared segment: the header word region and the two
// data regions, as raw mutable byte spans (spec.md §4.1 map()).
type Handle interface {
	// FrameBytes returns the capacity of one region, as recorded at create.
	FrameBytes() uint64
	// Header returns the header's raw bytes. Length is always HeaderSize.
	Header() []byte
	// Region returns region 0 (host->shell) or region 1 (shell->host).
	Region(dir int) []byte
	// Close releases the mapping. Closing an already-closed Handle is a
	// no-op.
	Close() error
}

// Direction indices into Region.
const (
	DirH2S = 0
	DirS2H = 1
)

// Create creates the named segment if absent, sized HeaderSize+2*frameBytes.
// If a segment with the same name already exists, it is reused only when its
// frame_bytes matches; a mismatch is a ChannelOpenError.
func Create(name string, frameBytes uint64) (Handle, error) {
	if frameBytes == 0 || frameBytes > MaxFrameBytes {
		return nil, xerrors.New(xerrors.KindSize, name, errFrameBytes(frameBytes))
	}
	return create(name, frameBytes)
}

// Open opens an existing named segment and reads frame_bytes from its
// header. It fails with ChannelOpenError if the segment does not exist.
func Open(name string) (Handle, error) {
	return open(name)
}

// sizeMismatchError is returned when a named segment already exists with a
// different frame_bytes than requested (spec.md §4.1 create()).
type sizeMismatchError struct {
	existing, requested uint64
}

func (e *sizeMismatchError) Error() string {
	return "existing segment frame_bytes does not match requested size"
}

func errFrameBytes(v uint64) error {
	return &frameBytesError{v}
}

type frameBytesError struct{ v uint64 }

func (e *frameBytesError) Error() string {
	if e.v == 0 {
		return "frame_bytes must be non-zero"
	}
	return "frame_bytes exceeds implementation maximum"
}
