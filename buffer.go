// buffer.go: Producer→consumer handoff fabric for MPSC logging
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package styx

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

// buffer is the handoff between producer goroutines and the single drainer.
// Two implementations: ringBuffer (bounded, newest-wins on overflow) and
// segmentQueue (unbounded, lossless).
type buffer interface {
	push(r *Record)
	tryPop(out *Record) bool
	// dropped counts records lost to overwrite; always zero for the
	// lossless implementation.
	dropped() uint64
}

const spinYieldMask = 31

// spinFlag is a one-word test-and-set lock. Critical sections here are O(1)
// record moves, so spinning beats parking; the scheduler is yielded to
// periodically so a preempted holder can run on a loaded machine.
type spinFlag struct {
	v atomic.Uint32
}

func (f *spinFlag) lock() {
	for i := 0; !f.v.CompareAndSwap(0, 1); i++ {
		if i&spinYieldMask == spinYieldMask {
			runtime.Gosched()
		}
	}
}

func (f *spinFlag) unlock() {
	f.v.Store(0)
}

// slot is one ring buffer cell: per-slot lock, written flag, in-place record.
// Sized to exactly 256 bytes so neighbouring slots never share the flag's
// cache line.
type slot struct {
	flag    spinFlag
	written atomic.Uint32
	rec     Record
}

var _ = [1]struct{}{}[unsafe.Sizeof(slot{})-256]

// slotsPerMB converts the configured buffer size to a slot count
// (256-byte slots, 4096 per megabyte).
const slotsPerMB = 4096

// ringBuffer is the bounded, non-guaranteed buffer. Producers claim slots by
// a monotonic fetch-and-increment; when they out-pace the drainer by the
// full capacity, new pushes overwrite un-drained slots and those records are
// lost. The per-slot lock serializes the overwrite against the drainer.
type ringBuffer struct {
	slots      []slot
	size       uint64
	writeIdx   atomic.Uint64
	dropOnWrap atomic.Uint64
	_          [48]byte // keep the consumer index off the producers' line
	readIdx    uint64   // consumer-private
}

func newRingBuffer(sizeMB uint32) *ringBuffer {
	if sizeMB < 1 {
		sizeMB = 1
	}
	n := uint64(sizeMB) * slotsPerMB
	return &ringBuffer{slots: make([]slot, n), size: n}
}

func (b *ringBuffer) push(r *Record) {
	idx := b.writeIdx.Add(1) - 1
	s := &b.slots[idx%b.size]
	s.flag.lock()
	if s.written.Load() == 1 {
		// Overwriting an un-drained record: the non-guaranteed contract.
		b.dropOnWrap.Add(1)
	}
	s.rec = *r
	s.written.Store(1)
	s.flag.unlock()
}

func (b *ringBuffer) dropped() uint64 {
	return b.dropOnWrap.Load()
}

func (b *ringBuffer) tryPop(out *Record) bool {
	s := &b.slots[b.readIdx%b.size]
	// Checked before the lock: an empty slot must not contend with a
	// producer wrapping to the same index. Only the consumer ever clears
	// written, so a set flag stays set until the record moves out below.
	if s.written.Load() == 0 {
		return false
	}
	s.flag.lock()
	*out = s.rec
	s.rec = Record{} // release heap and string references
	s.written.Store(0)
	s.flag.unlock()
	b.readIdx++
	return true
}

// cell is one segment cell, padded to the 256-byte slot footprint.
type cell struct {
	rec Record
	_   [256 - recordSize]byte
}

var _ = [1]struct{}{}[unsafe.Sizeof(cell{})-256]

// segmentSize is the default cell count per segment (8 MB of cells).
const segmentSize = 32768

// segment is one fixed block of cells plus n+1 counters: state[0..n-1] are
// the per-cell written flags, state[n] is the produced count. Written flags
// transition 0→1 exactly once.
type segment struct {
	cells []cell
	state []atomic.Uint32
}

func newSegment(n int) *segment {
	return &segment{
		cells: make([]cell, n),
		state: make([]atomic.Uint32, n+1),
	}
}

// push places the record into cell i and reports whether this producer
// completed the segment.
func (s *segment) push(r *Record, i uint64) bool {
	s.cells[i].rec = *r
	s.state[i].Store(1)
	n := uint32(len(s.cells))
	return s.state[n].Add(1) == n
}

// tryPop moves cell i out if its written flag is set.
func (s *segment) tryPop(out *Record, i uint64) bool {
	if s.state[i].Load() == 0 {
		return false
	}
	c := &s.cells[i]
	*out = c.rec
	c.rec = Record{}
	return true
}

// segmentQueue is the unbounded, guaranteed buffer: a FIFO of segments.
// A push never fails and never drops; producers briefly spin only while a
// full segment's successor is being installed. Segments are retired in
// strict FIFO order once fully drained.
type segmentQueue struct {
	segSize  uint64
	writeSeg atomic.Pointer[segment]
	writeIdx atomic.Uint64

	flag spinFlag
	segs []*segment

	readSeg *segment // consumer-private
	readIdx uint64
}

func newSegmentQueue() *segmentQueue {
	return newSegmentQueueSized(segmentSize)
}

func newSegmentQueueSized(n int) *segmentQueue {
	q := &segmentQueue{segSize: uint64(n)}
	q.setupNextWrite()
	return q
}

func (q *segmentQueue) push(r *Record) {
	for {
		idx := q.writeIdx.Add(1) - 1
		if idx < q.segSize {
			// The claimed cell pins the current write segment: the
			// installer cannot swap it until every cell, ours included,
			// has been produced.
			seg := q.writeSeg.Load()
			if seg.push(r, idx) {
				q.setupNextWrite()
			}
			return
		}
		// Another producer filled the segment first. Wait for the
		// installer to publish the successor and reset the index; the
		// index load synchronizes with the reset, so a reread below
		// segSize claims into the new segment.
		for q.writeIdx.Load() >= q.segSize {
			runtime.Gosched()
		}
	}
}

// setupNextWrite installs a fresh segment. The write segment is published
// before the index reset, so a producer that observes an index below
// segSize also observes the segment it claims into.
func (q *segmentQueue) setupNextWrite() {
	seg := newSegment(int(q.segSize))
	q.writeSeg.Store(seg)
	q.flag.lock()
	q.segs = append(q.segs, seg)
	q.flag.unlock()
	q.writeIdx.Store(0)
}

// dropped is always zero: the queue is lossless.
func (q *segmentQueue) dropped() uint64 {
	return 0
}

func (q *segmentQueue) tryPop(out *Record) bool {
	if q.readSeg == nil {
		q.flag.lock()
		if len(q.segs) == 0 {
			q.flag.unlock()
			return false
		}
		q.readSeg = q.segs[0]
		q.flag.unlock()
	}
	if !q.readSeg.tryPop(out, q.readIdx) {
		return false
	}
	q.readIdx++
	if q.readIdx == q.segSize {
		// Fully drained: retire the head and move on.
		q.readIdx = 0
		q.readSeg = nil
		q.flag.lock()
		q.segs[0] = nil
		q.segs = q.segs[1:]
		q.flag.unlock()
	}
	return true
}
