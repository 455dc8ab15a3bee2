// record.go: Binary-encoded log record with stack-first, heap-spill storage
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package styx

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
	"time"
	"unsafe"
)

// Level is the severity of a single record.
type Level uint8

const (
	LevelInfo Level = iota
	LevelWarn
	LevelCrit
)

// String returns the four-character level label used in the output format.
// An out-of-range level byte (a corrupted record) prints as XXXX.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelCrit:
		return "CRIT"
	}
	return "XXXX"
}

// Body type tags. The assignment 0..7 is part of the wire contract and must
// not be reordered.
const (
	tagChar uint8 = iota // 1 byte
	tagU32               // 4 bytes
	tagU64               // 8 bytes
	tagI32               // 4 bytes
	tagI64               // 8 bytes
	tagF64               // 8 bytes
	tagLit               // 8-byte reference index, zero-copy string
	tagStr               // owned bytes, NUL-terminated copy
)

const (
	// recordSize keeps a ring slot (flag + written flag + Record) at exactly
	// 256 bytes, a multiple of the 64-byte cache line.
	recordSize = 248

	// Header layout, little-endian, fixed order:
	// timestamp u64 | thread id u64 | file ref u64 | function ref u64 |
	// line u32 | level u8
	headerSize = 8 + 8 + 8 + 8 + 4 + 1

	// stackBufSize is the inline body region: recordSize minus the Go struct
	// overhead (used int, heap slice header, refs slice header).
	stackBufSize = recordSize - 8 - 24 - 24

	// First heap allocation on spill; growth doubles afterwards.
	firstHeapSize = 512
)

// Record is a single pending log line in self-describing binary form.
//
// The header and body are encoded into the inline stack region; once that
// overflows, ownership shifts to a heap slice and the inline bytes are copied
// over. Strings referenced by the header and by tag 6 arguments are never
// copied: the encoded payload carries an index into refs, which keeps the Go
// string reachable for the garbage collector until the record is drained.
// Records move by plain struct assignment; buffer(), not a stored slice,
// resolves the active storage so a moved record stays self-consistent.
type Record struct {
	used int
	heap []byte
	refs []string

	stack [stackBufSize]byte
}

// The slot and cell layouts depend on this exact size (64-bit platforms).
var _ = [1]struct{}{}[unsafe.Sizeof(Record{})-recordSize]

// newRecord captures the timestamp and producer thread id and encodes the
// six header fields in order.
func newRecord(level Level, file, function string, line uint32) Record {
	r := Record{refs: make([]string, 0, 4)}
	b := r.stack[:]
	binary.LittleEndian.PutUint64(b[0:], uint64(time.Now().UnixMicro()))
	binary.LittleEndian.PutUint64(b[8:], threadID())
	binary.LittleEndian.PutUint64(b[16:], r.ref(file))
	binary.LittleEndian.PutUint64(b[24:], r.ref(function))
	binary.LittleEndian.PutUint32(b[32:], line)
	b[36] = byte(level)
	r.used = headerSize
	return r
}

// buffer returns the active storage: heap after spill, the inline region
// before.
func (r *Record) buffer() []byte {
	if r.heap != nil {
		return r.heap
	}
	return r.stack[:]
}

// ref registers a zero-copy string and returns its reference index.
func (r *Record) ref(s string) uint64 {
	r.refs = append(r.refs, s)
	return uint64(len(r.refs) - 1)
}

// refString resolves a reference index read back from the payload. A
// corrupted index decodes as a placeholder rather than a panic.
func (r *Record) refString(idx uint64) string {
	if idx >= uint64(len(r.refs)) {
		return "???"
	}
	return r.refs[idx]
}

// grow ensures capacity for additional bytes. The first spill allocates
// max(firstHeapSize, required); subsequent growth doubles or sizes to
// required, whichever is larger.
func (r *Record) grow(additional int) {
	required := r.used + additional
	if r.heap == nil {
		if required <= stackBufSize {
			return
		}
		size := required
		if size < firstHeapSize {
			size = firstHeapSize
		}
		r.heap = make([]byte, size)
		copy(r.heap, r.stack[:r.used])
		return
	}
	if required <= len(r.heap) {
		return
	}
	size := 2 * len(r.heap)
	if size < required {
		size = required
	}
	next := make([]byte, size)
	copy(next, r.heap[:r.used])
	r.heap = next
}

// Chr appends a single byte character argument.
func (r *Record) Chr(v byte) *Record {
	r.grow(2)
	b := r.buffer()
	b[r.used] = tagChar
	b[r.used+1] = v
	r.used += 2
	return r
}

// U32 appends an unsigned 32-bit argument.
func (r *Record) U32(v uint32) *Record {
	r.grow(5)
	b := r.buffer()
	b[r.used] = tagU32
	binary.LittleEndian.PutUint32(b[r.used+1:], v)
	r.used += 5
	return r
}

// U64 appends an unsigned 64-bit argument.
func (r *Record) U64(v uint64) *Record {
	r.grow(9)
	b := r.buffer()
	b[r.used] = tagU64
	binary.LittleEndian.PutUint64(b[r.used+1:], v)
	r.used += 9
	return r
}

// I32 appends a signed 32-bit argument.
func (r *Record) I32(v int32) *Record {
	r.grow(5)
	b := r.buffer()
	b[r.used] = tagI32
	binary.LittleEndian.PutUint32(b[r.used+1:], uint32(v))
	r.used += 5
	return r
}

// I64 appends a signed 64-bit argument.
func (r *Record) I64(v int64) *Record {
	r.grow(9)
	b := r.buffer()
	b[r.used] = tagI64
	binary.LittleEndian.PutUint64(b[r.used+1:], uint64(v))
	r.used += 9
	return r
}

// F64 appends an IEEE-754 double argument.
func (r *Record) F64(v float64) *Record {
	r.grow(9)
	b := r.buffer()
	b[r.used] = tagF64
	binary.LittleEndian.PutUint64(b[r.used+1:], math.Float64bits(v))
	r.used += 9
	return r
}

// Lit appends a string without copying its bytes. The string must outlive
// the drain of this record; compile-time literals and runtime.Caller results
// always do. For anything with a shorter lifetime use Str.
func (r *Record) Lit(s string) *Record {
	r.grow(9)
	b := r.buffer()
	b[r.used] = tagLit
	binary.LittleEndian.PutUint64(b[r.used+1:], r.ref(s))
	r.used += 9
	return r
}

// Str appends an owned copy of s. The source may be mutated or discarded as
// soon as the call returns. Empty strings are skipped entirely.
func (r *Record) Str(s string) *Record {
	if len(s) == 0 {
		return r
	}
	r.grow(1 + len(s) + 1)
	b := r.buffer()
	b[r.used] = tagStr
	copy(b[r.used+1:], s)
	b[r.used+1+len(s)] = 0
	r.used += 1 + len(s) + 1
	return r
}

// Bytes appends an owned copy of p, same encoding as Str.
func (r *Record) Bytes(p []byte) *Record {
	if len(p) == 0 {
		return r
	}
	r.grow(1 + len(p) + 1)
	b := r.buffer()
	b[r.used] = tagStr
	copy(b[r.used+1:], p)
	b[r.used+1+len(p)] = 0
	r.used += 1 + len(p) + 1
	return r
}

// level reads the severity back out of the encoded header.
func (r *Record) level() Level {
	if r.used < headerSize {
		return Level(255)
	}
	return Level(r.buffer()[36])
}

// AppendFormat parses the binary payload back into one formatted text line
//
//	[YYYY-MM-DD HH:MM:SS.uuuuuu][LEVEL][THREAD][FILE:FUNCTION:LINE]<args...>\n
//
// and appends it to dst. Timestamps are UTC with microsecond precision.
// An unknown tag or a truncated value ends the body for this record only;
// decoding never panics.
func (r *Record) AppendFormat(dst []byte) []byte {
	if r.used < headerSize {
		return dst
	}
	b := r.buffer()[:r.used]

	ts := binary.LittleEndian.Uint64(b[0:])
	tid := binary.LittleEndian.Uint64(b[8:])
	fileRef := binary.LittleEndian.Uint64(b[16:])
	funcRef := binary.LittleEndian.Uint64(b[24:])
	line := binary.LittleEndian.Uint32(b[32:])
	level := Level(b[36])

	dst = appendTimestamp(dst, ts)
	dst = append(dst, '[')
	dst = append(dst, level.String()...)
	dst = append(dst, "]["...)
	dst = strconv.AppendUint(dst, tid, 10)
	dst = append(dst, "]["...)
	dst = append(dst, r.refString(fileRef)...)
	dst = append(dst, ':')
	dst = append(dst, r.refString(funcRef)...)
	dst = append(dst, ':')
	dst = strconv.AppendUint(dst, uint64(line), 10)
	dst = append(dst, ']')
	dst = r.appendArgs(dst, b[headerSize:])
	return append(dst, '\n')
}

// appendArgs decodes the typed argument sequence. Decoded values are
// concatenated with no separators.
func (r *Record) appendArgs(dst, b []byte) []byte {
	for len(b) > 0 {
		tag := b[0]
		b = b[1:]
		switch tag {
		case tagChar:
			if len(b) < 1 {
				return dst
			}
			dst = append(dst, b[0])
			b = b[1:]
		case tagU32:
			if len(b) < 4 {
				return dst
			}
			dst = strconv.AppendUint(dst, uint64(binary.LittleEndian.Uint32(b)), 10)
			b = b[4:]
		case tagU64:
			if len(b) < 8 {
				return dst
			}
			dst = strconv.AppendUint(dst, binary.LittleEndian.Uint64(b), 10)
			b = b[8:]
		case tagI32:
			if len(b) < 4 {
				return dst
			}
			dst = strconv.AppendInt(dst, int64(int32(binary.LittleEndian.Uint32(b))), 10)
			b = b[4:]
		case tagI64:
			if len(b) < 8 {
				return dst
			}
			dst = strconv.AppendInt(dst, int64(binary.LittleEndian.Uint64(b)), 10)
			b = b[8:]
		case tagF64:
			if len(b) < 8 {
				return dst
			}
			dst = strconv.AppendFloat(dst, math.Float64frombits(binary.LittleEndian.Uint64(b)), 'g', -1, 64)
			b = b[8:]
		case tagLit:
			if len(b) < 8 {
				return dst
			}
			dst = append(dst, r.refString(binary.LittleEndian.Uint64(b))...)
			b = b[8:]
		case tagStr:
			i := bytes.IndexByte(b, 0)
			if i < 0 {
				return append(dst, b...)
			}
			dst = append(dst, b[:i]...)
			b = b[i+1:]
		default:
			// Unknown tag: treat the rest of the body as corrupt and stop.
			return dst
		}
	}
	return dst
}

// appendTimestamp formats a microsecond epoch timestamp as
// [YYYY-MM-DD HH:MM:SS.uuuuuu] in UTC.
func appendTimestamp(dst []byte, usec uint64) []byte {
	t := time.UnixMicro(int64(usec)).UTC()
	dst = append(dst, '[')
	dst = t.AppendFormat(dst, "2006-01-02 15:04:05")
	dst = append(dst, '.')
	micro := usec % 1e6
	var pad [6]byte
	for i := 5; i >= 0; i-- {
		pad[i] = byte('0' + micro%10)
		micro /= 10
	}
	dst = append(dst, pad[:]...)
	return append(dst, ']')
}
