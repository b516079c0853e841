// Package channel implements the Channel Handle (spec.md §4.3): the
// process-local object owning a segment mapping and an event set, exposing
// the primitive operations the Transfer Engine is built from.
package channel

import (
	"sync/atomic"
	"time"

	"github.com/vsbridge/vsbridge/internal/events"
	"github.com/vsbridge/vsbridge/internal/segment"
	"github.com/vsbridge/vsbridge/internal/xerrors"
)

// Direction selects host->shell or shell->host.
type Direction int

const (
	H2S Direction = segment.DirH2S
	S2H Direction = segment.DirS2H
)

func (d Direction) String() string {
	if d == H2S {
		return "h2s"
	}
	return "s2h"
}

// Header offsets for the fields a given direction owns, selected once at
// construction so the rest of the package never branches on direction.
type dirOffsets struct {
	seq, length, total, chunkSize int
	chunkIdx, state                int
}

func offsetsFor(dir Direction) dirOffsets {
	if dir == H2S {
		return dirOffsets{
			seq: segment.OffH2SSeq, length: segment.OffH2SLen,
			total: segment.OffH2STotal, chunkSize: segment.OffH2SChunkSize,
			chunkIdx: segment.OffH2SChunkIdx, state: segment.OffH2SState,
		}
	}
	return dirOffsets{
		seq: segment.OffS2HSeq, length: segment.OffS2HLen,
		total: segment.OffS2HTotal, chunkSize: segment.OffS2HChunkSize,
		chunkIdx: segment.OffS2HChunkIdx, state: segment.OffS2HState,
	}
}

func eventsFor(dir Direction, evs *events.Set) (ready, ack events.Event) {
	if dir == H2S {
		return evs.H2SReady, evs.H2SAck
	}
	return evs.S2HReady, evs.S2HAck
}

// Publication is what AwaitPublication hands back: the header fields a
// consumer needs to locate and validate the available chunk.
type Publication struct {
	Seq       uint64
	Offset    uint64
	Length    uint64
	ChunkIdx  uint32
	Total     uint64
	ChunkSize uint64
}

// Handle is a process-local, single-owner view of a channel: one segment
// mapping plus one event set. Multiple Handles may exist in the same process
// for the same name (spec.md §4.3 Ownership); each owns its own OS
// references.
type Handle struct {
	name   string
	seg    segment.Handle
	evs    *events.Set
	header segment.HeaderView

	closed atomic.Bool
}

// OpenHost creates the segment and events, as the initiating side (spec.md
// §3 Lifecycle: "the host creates the segment and events").
func OpenHost(name string, frameBytes uint64) (*Handle, error) {
	seg, err := segment.Create(name, frameBytes)
	if err != nil {
		return nil, err
	}
	evs, err := events.CreateOrOpen(name)
	if err != nil {
		seg.Close()
		return nil, err
	}
	return &Handle{name: name, seg: seg, evs: evs, header: segment.NewHeaderView(seg.Header())}, nil
}

// OpenShell opens an existing segment and attaches to its events, as the
// attaching side (spec.md §3 Lifecycle: "the shell opens them by name").
func OpenShell(name string) (*Handle, error) {
	seg, err := segment.Open(name)
	if err != nil {
		return nil, err
	}
	evs, err := events.CreateOrOpen(name)
	if err != nil {
		seg.Close()
		return nil, err
	}
	return &Handle{name: name, seg: seg, evs: evs, header: segment.NewHeaderView(seg.Header())}, nil
}

// Name returns the channel's name.
func (h *Handle) Name() string { return h.name }

// FrameBytes returns the capacity of one region.
func (h *Handle) FrameBytes() uint64 { return h.seg.FrameBytes() }

func (h *Handle) checkOpen() error {
	if h.closed.Load() {
		return xerrors.New(xerrors.KindClosed, h.name, nil)
	}
	return nil
}

// WriteRegion copies src into dir's region at offset. Fails if the write
// would run past frame_bytes.
func (h *Handle) WriteRegion(dir Direction, src []byte, offset uint64) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	frame := h.seg.FrameBytes()
	if offset+uint64(len(src)) > frame {
		return xerrors.New(xerrors.KindSize, h.name, errOffsetOverflow(offset, uint64(len(src)), frame))
	}
	region := h.seg.Region(int(dir))
	copy(region[offset:], src)
	return nil
}

// Publish atomically records (len, chunk_idx, total, chunk_size), sets state,
// increments seq, then signals data_ready for dir. seq is incremented and
// all fields are release-stored before the signal, so a consumer that
// observes the signal observes these writes (spec.md §5).
func (h *Handle) Publish(dir Direction, offset, length uint64, chunkIdx uint32, total, chunkSize uint64, first bool) (uint64, error) {
	if err := h.checkOpen(); err != nil {
		return 0, err
	}
	if length == 0 {
		return 0, xerrors.New(xerrors.KindSize, h.name, errZeroLength())
	}
	off := offsetsFor(dir)

	h.header.StoreU64(off.length, length)
	h.header.StoreU32(off.chunkIdx, chunkIdx)
	h.header.StoreU64(off.total, total)
	h.header.StoreU64(off.chunkSize, chunkSize)
	if first {
		h.header.StoreU32(off.state, segment.StateTransfer)
	}
	seq := h.header.AddU64(off.seq, 1)

	ready, _ := eventsFor(dir, h.evs)
	if err := ready.Signal(); err != nil {
		return 0, xerrors.Wrap(xerrors.KindChannelOpen, h.name, err, "signal data_ready event")
	}
	return seq, nil
}

// MarkComplete transitions dir to COMPLETE after the final chunk's ack
// (spec.md §4.4.3).
func (h *Handle) MarkComplete(dir Direction) {
	off := offsetsFor(dir)
	h.header.StoreU32(off.state, segment.StateComplete)
}

// MarkIdle transitions dir back to IDLE, e.g. after a single-shot ack or
// when closing a completed chunked transfer.
func (h *Handle) MarkIdle(dir Direction) {
	off := offsetsFor(dir)
	h.header.StoreU32(off.state, segment.StateIdle)
}

// State returns dir's current state word.
func (h *Handle) State(dir Direction) uint32 {
	off := offsetsFor(dir)
	return h.header.LoadU32(off.state)
}

// AwaitPublication waits on dir's data_ready event and, on success,
// acquire-loads the header fields describing the available chunk.
func (h *Handle) AwaitPublication(dir Direction, timeout time.Duration) (Publication, events.WaitResult, error) {
	if err := h.checkOpen(); err != nil {
		return Publication{}, events.Abandoned, err
	}
	ready, _ := eventsFor(dir, h.evs)
	res, err := ready.Wait(timeout)
	if err != nil {
		return Publication{}, res, xerrors.Wrap(xerrors.KindChannelOpen, h.name, err, "wait on data_ready event")
	}
	if res != events.Signaled {
		return Publication{}, res, nil
	}

	off := offsetsFor(dir)
	pub := Publication{
		Seq:       h.header.LoadU64(off.seq),
		Offset:    0,
		Length:    h.header.LoadU64(off.length),
		ChunkIdx:  h.header.LoadU32(off.chunkIdx),
		Total:     h.header.LoadU64(off.total),
		ChunkSize: h.header.LoadU64(off.chunkSize),
	}
	return pub, events.Signaled, nil
}

// ViewRegion returns a zero-copy borrow over dir's region at [offset,
// offset+length). The caller MUST call View.Release before signaling Ack
// (spec.md §9: "ack MUST precede any possibility of producer overwrite, and
// the view MUST be released before ack").
func (h *Handle) ViewRegion(dir Direction, offset, length uint64) (*View, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	frame := h.seg.FrameBytes()
	if offset+length > frame {
		return nil, xerrors.New(xerrors.KindSize, h.name, errOffsetOverflow(offset, length, frame))
	}
	region := h.seg.Region(int(dir))
	return &View{owner: h, bytes: region[offset : offset+length]}, nil
}

// RawRegion returns dir's full region slice with none of the sequence/ack
// bookkeeping the rest of this package enforces. It exists solely for
// spec.md §4.5's create_buffer escape hatch, where "both sides may write
// through the variable's methods or the host's view; coordination is the
// caller's responsibility" — every other caller should go through
// WriteRegion/Publish/ViewRegion/Ack instead.
func (h *Handle) RawRegion(dir Direction) []byte {
	return h.seg.Region(int(dir))
}

// Ack signals dir's ack event, authorizing the producer to reuse the region.
func (h *Handle) Ack(dir Direction) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	_, ack := eventsFor(dir, h.evs)
	if err := ack.Signal(); err != nil {
		return xerrors.Wrap(xerrors.KindChannelOpen, h.name, err, "signal ack event")
	}
	return nil
}

// AwaitAck waits on dir's ack event.
func (h *Handle) AwaitAck(dir Direction, timeout time.Duration) (events.WaitResult, error) {
	if err := h.checkOpen(); err != nil {
		return events.Abandoned, err
	}
	_, ack := eventsFor(dir, h.evs)
	res, err := ack.Wait(timeout)
	if err != nil {
		return res, xerrors.Wrap(xerrors.KindChannelOpen, h.name, err, "wait on ack event")
	}
	return res, nil
}

// Close releases the event set and segment mapping. Idempotent.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	var first error
	if err := h.evs.Close(); err != nil {
		first = err
	}
	if err := h.seg.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// View is a zero-copy borrow over a region slice, lifetime-bound to the
// Handle that produced it (spec.md §9 "cyclic references"): it keeps no
// reference of its own to the segment mapping beyond the slice header, but
// embeds the owning Handle so callers that only hold a View still keep the
// segment reachable for documentation purposes; the mapping itself is only
// released when the owning Handle is closed.
type View struct {
	owner    *Handle
	bytes    []byte
	released atomic.Bool
}

// Bytes returns the borrowed slice. Calling this after Release is a logic
// error in the caller (the backing memory may already have been overwritten
// or unmapped) but will not panic, matching the spec's "reading after ack is
// not possible since the view has been released" framing at the protocol
// level rather than the memory level.
func (v *View) Bytes() []byte { return v.bytes }

// Release marks the view consumed. Idempotent.
func (v *View) Release() { v.released.Store(true) }

// Released reports whether Release has been called.
func (v *View) Released() bool { return v.released.Load() }

func errOffsetOverflow(offset, length, frame uint64) error {
	return &offsetOverflowError{offset: offset, length: length, frame: frame}
}

type offsetOverflowError struct {
	offset, length, frame uint64
}

func (e *offsetOverflowError) Error() string {
	return "offset+length exceeds frame_bytes"
}

func errZeroLength() error { return zeroLengthError{} }

type zeroLengthError struct{}

func (zeroLengthError) Error() string { return "length must be non-zero" }
