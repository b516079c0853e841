//go:build !windows

package segment

import (
	"encoding/binary"
	"sync"

	"github.com/vsbridge/vsbridge/internal/xerrors"
)

// The real backend (segment_windows.go) maps a named file mapping with
// windows.CreateFileMapping/MapViewOfFile. On every other platform — and for
// every test in this module — vsbridge runs against this in-process
// simulator instead: a process-wide registry of named byte buffers, reference
// counted the same way the OS reference-counts a named mapping across
// handles. The segment.Handle contract is identical either way, so the
// transfer engine and bridge facade never know which backend they're driving.
var registry = struct {
	sync.Mutex
	segments map[string]*simSegment
}{segments: make(map[string]*simSegment)}

type simSegment struct {
	mu         sync.Mutex
	name       string
	frameBytes uint64
	buf        []byte
	refs       int
}

type simHandle struct {
	seg    *simSegment
	closed bool
	mu     sync.Mutex
}

func create(name string, frameBytes uint64) (Handle, error) {
	registry.Lock()
	defer registry.Unlock()

	if seg, ok := registry.segments[name]; ok {
		if seg.frameBytes != frameBytes {
			return nil, xerrors.New(xerrors.KindChannelOpen, name,
				&sizeMismatchError{existing: seg.frameBytes, requested: frameBytes})
		}
		seg.refs++
		return &simHandle{seg: seg}, nil
	}

	buf := make([]byte, HeaderSize+2*int(frameBytes))
	binary.LittleEndian.PutUint64(buf[OffFrameBytes:], frameBytes)
	seg := &simSegment{name: name, frameBytes: frameBytes, buf: buf, refs: 1}
	registry.segments[name] = seg
	return &simHandle{seg: seg}, nil
}

func open(name string) (Handle, error) {
	registry.Lock()
	defer registry.Unlock()

	seg, ok := registry.segments[name]
	if !ok {
		return nil, xerrors.New(xerrors.KindChannelOpen, name, errNoSuchSegment(name))
	}
	seg.refs++
	return &simHandle{seg: seg}, nil
}

func (h *simHandle) FrameBytes() uint64 {
	return h.seg.frameBytes
}

func (h *simHandle) Header() []byte {
	return h.seg.buf[:HeaderSize]
}

func (h *simHandle) Region(dir int) []byte {
	start := HeaderSize + dir*int(h.seg.frameBytes)
	return h.seg.buf[start : start+int(h.seg.frameBytes)]
}

func (h *simHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	registry.Lock()
	defer registry.Unlock()
	h.seg.refs--
	if h.seg.refs <= 0 {
		delete(registry.segments, h.seg.name)
	}
	return nil
}

type noSuchSegmentError string

func (e noSuchSegmentError) Error() string { return "no such segment: " + string(e) }

func errNoSuchSegment(name string) error { return noSuchSegmentError(name) }
