package transfer

// chunkQueueMin and chunkQueueExp mirror the growth thresholds of kcp-go's
// RingBuffer[T] (vendor/github.com/xtaci/kcp-go/v5/ringbuffer.go): double
// under 1024 elements, grow by 10% above it.
const (
	chunkQueueMin = 8
	chunkQueueExp = 1024
)

// chunkQueue is a generic ring buffer adapted from kcp-go's RingBuffer[T] and
// used as the pending-chunk queue a chunked reader drains into its
// destination buffer: the read loop pushes a copied chunk (and acks
// immediately, unblocking the producer) while a separate drain step pops
// chunks in order to append them to the caller's growing buffer. This keeps
// "wait for data_ready / copy out / ack" decoupled from "hand the bytes to
// the caller", so a slow caller never stalls the producer's flow control.
type chunkQueue[T any] struct {
	head, tail int
	elements   []T
}

func newChunkQueue[T any](size int) *chunkQueue[T] {
	if size <= chunkQueueMin {
		size = chunkQueueMin
	}
	return &chunkQueue[T]{elements: make([]T, size)}
}

func (q *chunkQueue[T]) Len() int {
	if q.head <= q.tail {
		return q.tail - q.head
	}
	return len(q.elements[q.head:]) + len(q.elements[:q.tail])
}

func (q *chunkQueue[T]) IsFull() bool {
	return (q.tail+1)%len(q.elements) == q.head
}

func (q *chunkQueue[T]) Push(v T) {
	if q.IsFull() {
		q.grow()
	}
	q.elements[q.tail] = v
	q.tail = (q.tail + 1) % len(q.elements)
}

func (q *chunkQueue[T]) Pop() (T, bool) {
	var zero T
	if q.Len() == 0 {
		return zero, false
	}
	v := q.elements[q.head]
	q.elements[q.head] = zero
	q.head = (q.head + 1) % len(q.elements)
	return v, true
}

func (q *chunkQueue[T]) grow() {
	currentSize := len(q.elements)
	var newSize int
	switch {
	case currentSize < chunkQueueMin:
		newSize = chunkQueueMin
	case currentSize < chunkQueueExp:
		newSize = currentSize * 2
	default:
		newSize = currentSize + (currentSize+9)/10
	}

	newElements := make([]T, newSize)
	if q.head < q.tail {
		copy(newElements, q.elements[q.head:q.tail])
	} else {
		n := copy(newElements, q.elements[q.head:])
		copy(newElements[n:], q.elements[:q.tail])
	}
	q.tail = q.Len()
	q.head = 0
	q.elements = newElements
}
