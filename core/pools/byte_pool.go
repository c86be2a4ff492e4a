package pools

import "sync"

// BytePool hands out fixed-size read chunks, tiered by size class.
type BytePool struct {
	pools []*sync.Pool
	sizes []int
}

// Size classes for socket read chunks
var defaultSizes = []int{
	512,
	1024, // default session read chunk
	4096,
	16384,
}

// NewBytePool creates a byte pool with the standard size tiers
func NewBytePool() *BytePool {
	return NewBytePoolWithSizes(defaultSizes)
}

// NewBytePoolWithSizes creates a byte pool with custom size tiers
func NewBytePoolWithSizes(sizes []int) *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}

	for i, size := range sizes {
		sz := size
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, sz)
				return &buf
			},
		}
	}

	return bp
}

// Get returns a slice of exactly size bytes
func (bp *BytePool) Get(size int) []byte {
	for i, poolSize := range bp.sizes {
		if size <= poolSize {
			buf := *bp.pools[i].Get().(*[]byte)
			return buf[:size]
		}
	}

	// Larger than every tier
	return make([]byte, size)
}

// Put returns a slice obtained from Get
func (bp *BytePool) Put(buf []byte) {
	capacity := cap(buf)
	for i, poolSize := range bp.sizes {
		if capacity == poolSize {
			buf = buf[:capacity]
			bp.pools[i].Put(&buf)
			return
		}
	}
}
