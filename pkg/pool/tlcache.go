// tlcache.go implements the single-threaded fast path in front of the
// shared buffer pool: a small stack of cached buffers with no locking.
package pool

import (
	"github.com/dkhalov/tlswire/internal/constants"
	werrors "github.com/dkhalov/tlswire/internal/errors"
)

// ThreadLocalPool caches up to ThreadLocalCacheSize released buffers for a
// single owning goroutine. Acquire pops from the stack top or falls back
// to allocation; Release pushes or frees when the cache is full.
//
// The pool performs no synchronization. Sharing one instance between
// goroutines is a data race by construction; give each I/O goroutine its
// own.
type ThreadLocalPool struct {
	bufSize int
	cache   [constants.ThreadLocalCacheSize][]byte
	top     int

	acquires uint64
	cached   uint64 // acquires served from the cache
}

// NewThreadLocalPool creates a cache of bufSize-byte buffers.
func NewThreadLocalPool(bufSize int) *ThreadLocalPool {
	if bufSize <= 0 {
		bufSize = constants.RecordBufferSize
	}
	return &ThreadLocalPool{bufSize: bufSize}
}

// Acquire returns a buffer from the cache or a fresh allocation.
func (p *ThreadLocalPool) Acquire() []byte {
	p.acquires++
	if p.top > 0 {
		p.top--
		buf := p.cache[p.top]
		p.cache[p.top] = nil
		p.cached++
		return buf
	}
	return make([]byte, p.bufSize)
}

// Release returns a buffer to the cache; when the cache is full the buffer
// is dropped for the collector. Buffers of the wrong size panic.
func (p *ThreadLocalPool) Release(buf []byte) {
	if len(buf) != p.bufSize {
		panic(werrors.ErrForeignBuffer)
	}
	if p.top < len(p.cache) {
		p.cache[p.top] = buf
		p.top++
	}
}

// Cached returns the number of buffers currently held by the cache.
func (p *ThreadLocalPool) Cached() int {
	return p.top
}

// HitRate returns the fraction of acquires served from the cache.
func (p *ThreadLocalPool) HitRate() float64 {
	if p.acquires == 0 {
		return 0
	}
	return float64(p.cached) / float64(p.acquires)
}
