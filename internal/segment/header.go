package segment

import (
	"sync/atomic"
	"unsafe"
)

// HeaderView wraps a mapped header's raw bytes with atomic, release/acquire
// ordered access to each control word (spec.md §3: "all control-word accesses
// are atomic with release-acquire ordering to pair with the event signals").
// It works identically whether the backing bytes come from the Windows
// mapped view or the in-process simulator, since both hand back a plain
// []byte of length HeaderSize at a stable address.
type HeaderView struct {
	b []byte
}

// NewHeaderView wraps h.Header(). b must stay alive and at a fixed address
// for the view's lifetime, which holds for both segment.Handle backends.
func NewHeaderView(b []byte) HeaderView {
	if len(b) != HeaderSize {
		panic("segment: header buffer has wrong size")
	}
	return HeaderView{b: b}
}

func (v HeaderView) u64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&v.b[off]))
}

func (v HeaderView) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&v.b[off]))
}

// LoadU64 performs an acquire-ordered load of the word at off.
func (v HeaderView) LoadU64(off int) uint64 { return atomic.LoadUint64(v.u64(off)) }

// StoreU64 performs a release-ordered store of the word at off.
func (v HeaderView) StoreU64(off int, val uint64) { atomic.StoreUint64(v.u64(off), val) }

// LoadU32 performs an acquire-ordered load of the word at off.
func (v HeaderView) LoadU32(off int) uint32 { return atomic.LoadUint32(v.u32(off)) }

// StoreU32 performs a release-ordered store of the word at off.
func (v HeaderView) StoreU32(off int, val uint32) { atomic.StoreUint32(v.u32(off), val) }

// AddU64 atomically increments the word at off and returns the new value.
func (v HeaderView) AddU64(off int, delta uint64) uint64 {
	return atomic.AddUint64(v.u64(off), delta)
}
