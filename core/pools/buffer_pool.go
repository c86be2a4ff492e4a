package pools

import (
	"sync"
	"sync/atomic"
)

// Buffer pool sizes
const (
	SmallBufferSize  = 2 * 1024  // request line and a few headers
	MediumBufferSize = 8 * 1024  // typical browser request
	LargeBufferSize  = 32 * 1024 // requests with bodies
)

// BufferPool recycles the growable receive buffers sessions accumulate
// request bytes into.
type BufferPool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool

	// Statistics
	smallHits  atomic.Uint64
	mediumHits atomic.Uint64
	largeHits  atomic.Uint64
	dropped    atomic.Uint64
	totalGets  atomic.Uint64
}

// NewBufferPool creates a new buffer pool
func NewBufferPool() *BufferPool {
	return &BufferPool{
		small: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, SmallBufferSize)
				return &buf
			},
		},
		medium: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, MediumBufferSize)
				return &buf
			},
		},
		large: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, LargeBufferSize)
				return &buf
			},
		},
	}
}

// Get acquires an empty buffer with at least estimatedSize capacity where
// possible
func (bp *BufferPool) Get(estimatedSize int) *[]byte {
	bp.totalGets.Add(1)

	if estimatedSize <= SmallBufferSize {
		bp.smallHits.Add(1)
		return bp.small.Get().(*[]byte)
	} else if estimatedSize <= MediumBufferSize {
		bp.mediumHits.Add(1)
		return bp.medium.Get().(*[]byte)
	}
	bp.largeHits.Add(1)
	return bp.large.Get().(*[]byte)
}

// Put returns a buffer to the pool. Buffers that grew past LargeBufferSize
// are left to the GC.
func (bp *BufferPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}

	*buf = (*buf)[:0]

	c := cap(*buf)
	switch {
	case c < SmallBufferSize:
		bp.dropped.Add(1)
	case c < MediumBufferSize:
		bp.small.Put(buf)
	case c < LargeBufferSize:
		bp.medium.Put(buf)
	case c == LargeBufferSize:
		bp.large.Put(buf)
	default:
		bp.dropped.Add(1)
	}
}

// Stats returns buffer pool statistics
func (bp *BufferPool) Stats() BufferStats {
	return BufferStats{
		SmallHits:  bp.smallHits.Load(),
		MediumHits: bp.mediumHits.Load(),
		LargeHits:  bp.largeHits.Load(),
		Dropped:    bp.dropped.Load(),
		TotalGets:  bp.totalGets.Load(),
	}
}

// BufferStats contains buffer pool statistics
type BufferStats struct {
	SmallHits  uint64
	MediumHits uint64
	LargeHits  uint64
	Dropped    uint64
	TotalGets  uint64
}
