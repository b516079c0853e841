//go:build windows

package segment

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/vsbridge/vsbridge/internal/xerrors"
)

// winHandle maps a named file mapping (backed by the system paging file, as
// CreateFileMapping with INVALID_HANDLE_VALUE does) and exposes its header
// and two regions as byte spans over the mapped view. Grounded on the
// windows.CreateEvent/WaitForSingleObject usage pattern carried in the
// retrieval pack's containerd shim_windows.go — the file-mapping calls
// follow the same golang.org/x/sys/windows calling convention.
type winHandle struct {
	mapping    windows.Handle
	view       uintptr
	size       uintptr
	frameBytes uint64
}

func create(name string, frameBytes uint64) (Handle, error) {
	size := uintptr(HeaderSize) + 2*uintptr(frameBytes)
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindChannelOpen, name, err, "encode segment name")
	}

	high := uint32(uint64(size) >> 32)
	low := uint32(uint64(size) & 0xffffffff)
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil,
		windows.PAGE_READWRITE, high, low, namePtr)
	alreadyExists := err == windows.ERROR_ALREADY_EXISTS
	if h == 0 {
		return nil, xerrors.Wrap(xerrors.KindChannelOpen, name, err, "CreateFileMapping")
	}

	view, err := windows.MapViewOfFile(h, windows.FILE_MAP_ALL_ACCESS, 0, 0, size)
	if err != nil {
		windows.CloseHandle(h)
		return nil, xerrors.Wrap(xerrors.KindChannelOpen, name, err, "MapViewOfFile")
	}

	wh := &winHandle{mapping: h, view: view, size: size, frameBytes: frameBytes}
	if alreadyExists {
		existing := wh.readFrameBytes()
		if existing != frameBytes {
			wh.Close()
			return nil, xerrors.New(xerrors.KindChannelOpen, name,
				&sizeMismatchError{existing: existing, requested: frameBytes})
		}
		return wh, nil
	}

	header := wh.Header()
	for i := range header {
		header[i] = 0
	}
	putU64(header, OffFrameBytes, frameBytes)
	return wh, nil
}

func open(name string) (Handle, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindChannelOpen, name, err, "encode segment name")
	}

	h, err := windows.OpenFileMapping(windows.FILE_MAP_ALL_ACCESS, false, namePtr)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindChannelOpen, name, err, "OpenFileMapping")
	}

	// Map just the header first to learn frame_bytes, then remap full size.
	headerView, err := windows.MapViewOfFile(h, windows.FILE_MAP_ALL_ACCESS, 0, 0, uintptr(HeaderSize))
	if err != nil {
		windows.CloseHandle(h)
		return nil, xerrors.Wrap(xerrors.KindChannelOpen, name, err, "MapViewOfFile (header probe)")
	}
	headerBytes := unsafe.Slice((*byte)(unsafe.Pointer(headerView)), HeaderSize)
	frameBytes := getU64(headerBytes, OffFrameBytes)
	windows.UnmapViewOfFile(headerView)

	size := uintptr(HeaderSize) + 2*uintptr(frameBytes)
	view, err := windows.MapViewOfFile(h, windows.FILE_MAP_ALL_ACCESS, 0, 0, size)
	if err != nil {
		windows.CloseHandle(h)
		return nil, xerrors.Wrap(xerrors.KindChannelOpen, name, err, "MapViewOfFile (full region)")
	}

	return &winHandle{mapping: h, view: view, size: size, frameBytes: frameBytes}, nil
}

func (h *winHandle) FrameBytes() uint64 { return h.frameBytes }

func (h *winHandle) Header() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(h.view)), HeaderSize)
}

func (h *winHandle) Region(dir int) []byte {
	start := h.view + uintptr(HeaderSize) + uintptr(dir)*uintptr(h.frameBytes)
	return unsafe.Slice((*byte)(unsafe.Pointer(start)), h.frameBytes)
}

func (h *winHandle) Close() error {
	if h.view != 0 {
		windows.UnmapViewOfFile(h.view)
		h.view = 0
	}
	if h.mapping != 0 {
		err := windows.CloseHandle(h.mapping)
		h.mapping = 0
		return err
	}
	return nil
}

func (h *winHandle) readFrameBytes() uint64 {
	return getU64(h.Header(), OffFrameBytes)
}

func putU64(b []byte, off int, v uint64) {
	_ = b[off+7]
	for i := 0; i < 8; i++ {
		b[off+i] = byte(v >> (8 * i))
	}
}

func getU64(b []byte, off int) uint64 {
	_ = b[off+7]
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[off+i]) << (8 * i)
	}
	return v
}
