// Package transfer drives the per-direction state machines for single-shot
// and chunked transfers over a channel.Handle (spec.md §4.4): sequence
// management, ordering validation, timeouts, and the in-band chunk-header
// convention.
package transfer

import (
	"time"

	"go.uber.org/zap"

	"github.com/vsbridge/vsbridge/internal/channel"
	"github.com/vsbridge/vsbridge/internal/events"
	"github.com/vsbridge/vsbridge/internal/xerrors"
)

// Writer drives the producer side of one direction.
type Writer struct {
	ch  *channel.Handle
	dir channel.Direction
	log *zap.Logger
}

// NewWriter builds a Writer for dir over ch. log may be nil.
func NewWriter(ch *channel.Handle, dir channel.Direction, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{ch: ch, dir: dir, log: log}
}

// WriteOnce performs a single-shot write (spec.md §4.4.1). Preconditions:
// dir is IDLE or COMPLETE; len(payload) <= frame_bytes.
func (w *Writer) WriteOnce(payload []byte, timeout time.Duration) (seq uint64, err error) {
	name := w.ch.Name()
	if len(payload) == 0 {
		return 0, xerrors.New(xerrors.KindSize, name, nil)
	}
	frame := w.ch.FrameBytes()
	if uint64(len(payload)) > frame {
		return 0, xerrors.New(xerrors.KindSize, name, errPayloadTooLarge(uint64(len(payload)), frame))
	}

	if err := w.ch.WriteRegion(w.dir, payload, 0); err != nil {
		return 0, err
	}
	seq, err = w.ch.Publish(w.dir, 0, uint64(len(payload)), 0, 0, 0, true)
	if err != nil {
		return 0, err
	}

	res, err := w.ch.AwaitAck(w.dir, timeout)
	if err != nil {
		return seq, err
	}
	if res != events.Signaled {
		w.log.Warn("single-shot write timed out awaiting ack",
			zap.String("channel", name), zap.String("dir", w.dir.String()), zap.Uint64("seq", seq))
		return seq, xerrors.New(xerrors.KindTimeout, name, nil)
	}
	w.ch.MarkIdle(w.dir)
	return seq, nil
}

// chunkHeaderReserve bounds the worst-case wire size of the in-band
// CHUNKED|total|chunk_size|n| tag, so WriteAuto can always carve a chunkSize
// that leaves room for the header on chunk 0 without the caller having to
// reason about header length itself.
const chunkHeaderReserve = 64

// WriteAuto picks single-shot or chunked transfer for payload based on
// frame_bytes and drives whichever applies (spec.md §9 "supplemented
// features": the source's chunk-size auto-tuning, sizing the transfer in one
// shot if it fits a single frame, else switching to chunked mode). Callers
// that don't know ahead of time whether a region sized to the channel's
// frame_bytes will hold the whole payload should use this instead of picking
// WriteOnce/WriteChunked themselves.
func (w *Writer) WriteAuto(payload []byte, timeout time.Duration) error {
	frame := w.ch.FrameBytes()
	if uint64(len(payload)) <= frame {
		_, err := w.WriteOnce(payload, timeout)
		return err
	}
	chunkSize := frame
	if chunkSize > chunkHeaderReserve {
		chunkSize -= chunkHeaderReserve
	}
	return w.WriteChunked(payload, chunkSize, timeout)
}

// WriteChunked performs a chunked write of payload in chunks of chunkSize
// (spec.md §4.4.3), prefixing the mandatory in-band CHUNKED|...| header to
// the first chunk. On any per-chunk ack timeout the channel is left
// unusable and the error is returned immediately (spec.md §9: "on any
// timeout, the channel is not reusable").
func (w *Writer) WriteChunked(payload []byte, chunkSize uint64, timeout time.Duration) error {
	name := w.ch.Name()
	total := uint64(len(payload))
	if total == 0 {
		return xerrors.New(xerrors.KindSize, name, nil)
	}
	frame := w.ch.FrameBytes()
	if chunkSize == 0 || chunkSize > frame {
		return xerrors.New(xerrors.KindSize, name, errChunkSize(chunkSize, frame))
	}

	n := uint32((total + chunkSize - 1) / chunkSize)
	header := formatInBandHeader(total, chunkSize, n)
	if uint64(len(header))+chunkSize > frame {
		return xerrors.New(xerrors.KindSize, name, errChunkSize(chunkSize, frame))
	}

	for i := uint32(0); i < n; i++ {
		start := uint64(i) * chunkSize
		end := start + chunkSize
		if end > total {
			end = total
		}
		chunkBytes := payload[start:end]

		wire := chunkBytes
		if i == 0 {
			wire = append(append([]byte(nil), header...), chunkBytes...)
		}

		if err := w.ch.WriteRegion(w.dir, wire, 0); err != nil {
			return err
		}
		seq, err := w.ch.Publish(w.dir, 0, uint64(len(wire)), i, total, chunkSize, i == 0)
		if err != nil {
			return err
		}

		res, err := w.ch.AwaitAck(w.dir, timeout)
		if err != nil {
			return err
		}
		if res != events.Signaled {
			w.log.Warn("chunked write timed out awaiting ack",
				zap.String("channel", name), zap.String("dir", w.dir.String()),
				zap.Uint32("chunk_idx", i), zap.Uint32("n", n), zap.Uint64("seq", seq))
			return xerrors.New(xerrors.KindTimeout, name, nil)
		}
	}

	w.ch.MarkComplete(w.dir)
	return nil
}

// Reader drives the consumer side of one direction.
type Reader struct {
	ch       *channel.Handle
	dir      channel.Direction
	log      *zap.Logger
	lastSeq  uint64
	haveSeen bool
}

// NewReader builds a Reader for dir over ch. log may be nil.
func NewReader(ch *channel.Handle, dir channel.Direction, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{ch: ch, dir: dir, log: log}
}

func (r *Reader) validateSeq(seq uint64) error {
	if r.haveSeen && seq <= r.lastSeq {
		return xerrors.New(xerrors.KindProtocol, r.ch.Name(), errSeqNotIncreasing(r.lastSeq, seq))
	}
	r.lastSeq = seq
	r.haveSeen = true
	return nil
}

// ReadOnce performs a single-shot read (spec.md §4.4.2): await publication,
// copy the region slice out, release, and ack.
func (r *Reader) ReadOnce(timeout time.Duration) ([]byte, uint64, error) {
	name := r.ch.Name()
	pub, res, err := r.ch.AwaitPublication(r.dir, timeout)
	if err != nil {
		return nil, 0, err
	}
	if res != events.Signaled {
		return nil, 0, xerrors.New(xerrors.KindTimeout, name, nil)
	}
	if err := r.validateSeq(pub.Seq); err != nil {
		return nil, 0, err
	}

	view, err := r.ch.ViewRegion(r.dir, pub.Offset, pub.Length)
	if err != nil {
		return nil, 0, err
	}
	out := append([]byte(nil), view.Bytes()...)
	view.Release()

	if err := r.ch.Ack(r.dir); err != nil {
		return nil, 0, err
	}
	return out, pub.Seq, nil
}

// ReadChunked performs a full chunked read (spec.md §4.4.4), validating
// strictly increasing chunk indices and assembling the payload into a
// destination buffer of size total.
func (r *Reader) ReadChunked(timeout time.Duration) ([]byte, error) {
	name := r.ch.Name()
	queue := newChunkQueue[[]byte](8)

	var total uint64
	var n uint32
	var expectedIdx uint32
	haveShape := false

	for {
		pub, res, err := r.ch.AwaitPublication(r.dir, timeout)
		if err != nil {
			return nil, err
		}
		if res != events.Signaled {
			return nil, xerrors.New(xerrors.KindTimeout, name, nil)
		}
		if err := r.validateSeq(pub.Seq); err != nil {
			return nil, err
		}
		if pub.ChunkIdx != expectedIdx {
			return nil, xerrors.New(xerrors.KindProtocol, name, errChunkOutOfOrder(expectedIdx, pub.ChunkIdx))
		}

		view, err := r.ch.ViewRegion(r.dir, pub.Offset, pub.Length)
		if err != nil {
			return nil, err
		}
		chunkWire := append([]byte(nil), view.Bytes()...)
		view.Release()

		payload := chunkWire
		if pub.ChunkIdx == 0 {
			hdrTotal, hdrChunkSize, hdrN, rest, err := parseInBandHeader(name, chunkWire)
			if err != nil {
				return nil, err
			}
			total, n = hdrTotal, hdrN
			haveShape = true
			_ = hdrChunkSize
			payload = rest
		}
		if !haveShape {
			return nil, xerrors.New(xerrors.KindProtocol, name, errMalformedHeader("first chunk missing shape"))
		}

		queue.Push(payload)

		if err := r.ch.Ack(r.dir); err != nil {
			return nil, err
		}

		expectedIdx++
		if expectedIdx == n {
			break
		}
	}

	out := make([]byte, 0, total)
	for {
		chunk, ok := queue.Pop()
		if !ok {
			break
		}
		out = append(out, chunk...)
	}
	if uint64(len(out)) != total {
		return nil, xerrors.New(xerrors.KindProtocol, name, errAssembledSizeMismatch(total, uint64(len(out))))
	}
	return out, nil
}

func errPayloadTooLarge(got, frame uint64) error { return sizeDetail{"payload exceeds frame_bytes", got, frame} }
func errChunkSize(chunkSize, frame uint64) error {
	return sizeDetail{"chunk_size invalid for frame_bytes (including in-band header overhead)", chunkSize, frame}
}

type sizeDetail struct {
	msg      string
	got, max uint64
}

func (e sizeDetail) Error() string { return e.msg }

func errSeqNotIncreasing(last, got uint64) error { return seqError{last, got} }

type seqError struct{ last, got uint64 }

func (e seqError) Error() string { return "sequence number did not strictly increase" }

func errChunkOutOfOrder(expected, got uint32) error { return chunkOrderError{expected, got} }

type chunkOrderError struct{ expected, got uint32 }

func (e chunkOrderError) Error() string { return "chunk_idx received out of order" }

func errAssembledSizeMismatch(want, got uint64) error { return assembledSizeError{want, got} }

type assembledSizeError struct{ want, got uint64 }

func (e assembledSizeError) Error() string { return "assembled chunked payload size mismatch" }
