// Package pool provides the pooled-memory subsystem of the data plane: a
// shared buffer pool for record-sized buffers, a single-threaded cache in
// front of it, and an arena pool for handshake-scoped allocations.
//
// The buffer pool hands out fixed-size buffers through handles carrying a
// generation counter. The generation exists for debug-time double-release
// detection; production callers pay one integer compare per release.
package pool

import (
	"sync"

	"github.com/dkhalov/tlswire/internal/constants"
	werrors "github.com/dkhalov/tlswire/internal/errors"
)

// slot is one pool entry.
type slot struct {
	data       []byte
	inUse      bool
	generation uint32
}

// BufferPool is a multi-producer pool of fixed-size buffers. Acquire scans
// for a free slot under the pool mutex and allocates a new slot when none
// is free; first-free-wins, no LRU guarantee under contention.
type BufferPool struct {
	mu      sync.Mutex
	bufSize int
	slots   []slot

	stats Stats
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Hits          uint64 // acquires satisfied by an existing free slot
	Misses        uint64 // acquires that allocated a new slot
	Deallocations uint64 // releases
	ActiveBuffers uint64 // currently acquired
	PeakBuffers   uint64 // high-water mark of ActiveBuffers
}

// Buffer is an acquired buffer handle. It exclusively owns the underlying
// bytes until Release.
type Buffer struct {
	data       []byte
	pool       *BufferPool
	generation uint32
}

// Bytes returns the underlying buffer.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Generation returns the handle's acquire generation. Part of the stable
// handle shape; only the pool itself interprets it.
func (b *Buffer) Generation() uint32 {
	return b.generation
}

// Release returns the buffer to its pool. Releasing a handle twice is a
// programming error and panics: the slot generation has moved past the
// handle's.
func (b *Buffer) Release() {
	if b.pool != nil {
		b.pool.release(b)
		b.pool = nil
	}
}

// NewBufferPool creates a pool of bufSize-byte buffers with capacity
// preallocated slots. Capacity zero is valid; slots are then allocated on
// demand.
func NewBufferPool(bufSize, capacity int) *BufferPool {
	if bufSize <= 0 {
		bufSize = constants.RecordBufferSize
	}
	p := &BufferPool{
		bufSize: bufSize,
		slots:   make([]slot, 0, capacity),
	}
	for i := 0; i < capacity; i++ {
		p.slots = append(p.slots, slot{data: make([]byte, bufSize)})
	}
	return p
}

// NewRecordBufferPool creates a pool sized for full TLS records.
func NewRecordBufferPool(capacity int) *BufferPool {
	return NewBufferPool(constants.RecordBufferSize, capacity)
}

// BufferSize returns the fixed size of the pool's buffers.
func (p *BufferPool) BufferSize() int {
	return p.bufSize
}

// Acquire returns a free buffer, allocating a new slot if every existing
// one is in use.
func (p *BufferPool) Acquire() *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.slots {
		s := &p.slots[i]
		if !s.inUse {
			s.inUse = true
			s.generation++
			p.stats.Hits++
			p.noteAcquireLocked()
			return &Buffer{data: s.data, pool: p, generation: s.generation}
		}
	}

	p.slots = append(p.slots, slot{
		data:       make([]byte, p.bufSize),
		inUse:      true,
		generation: 1,
	})
	s := &p.slots[len(p.slots)-1]
	p.stats.Misses++
	p.noteAcquireLocked()
	return &Buffer{data: s.data, pool: p, generation: s.generation}
}

func (p *BufferPool) noteAcquireLocked() {
	p.stats.ActiveBuffers++
	if p.stats.ActiveBuffers > p.stats.PeakBuffers {
		p.stats.PeakBuffers = p.stats.ActiveBuffers
	}
}

// release finds the slot by slice identity and frees it, verifying the
// handle generation. A foreign buffer or size mismatch panics: both mean
// the caller corrupted buffer ownership.
func (p *BufferPool) release(b *Buffer) {
	if len(b.data) != p.bufSize {
		panic(werrors.ErrForeignBuffer)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.slots {
		s := &p.slots[i]
		if &s.data[0] == &b.data[0] {
			if !s.inUse || s.generation != b.generation {
				panic(werrors.ErrDoubleRelease)
			}
			s.inUse = false
			p.stats.Deallocations++
			p.stats.ActiveBuffers--
			return
		}
	}
	panic(werrors.ErrForeignBuffer)
}

// Stats returns a snapshot of the pool counters.
func (p *BufferPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
