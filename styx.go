// styx.go: Public API - asynchronous low-latency logging core
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package styx

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// Lifecycle states. Transitions are monotonic and one-way.
const (
	stateInit uint32 = iota
	stateReady
	stateShutdown
)

const drainerIdleSleep = 50 * time.Microsecond

// Logger owns a handoff buffer, a file sink and the single drainer
// goroutine that moves records from one to the other. Producers only ever
// touch the buffer; all formatting and I/O happens on the drainer.
type Logger struct {
	buf  buffer
	sink *FileWriter

	state atomic.Uint32
	done  chan struct{}

	// Telemetry (all atomic)
	pushed       atomic.Uint64
	drained      atomic.Uint64
	totalLatency atomic.Uint64
	lastLatency  atomic.Uint64

	clock     *timecache.TimeCache
	closeOnce sync.Once
}

// NewLogger creates the buffer for the configured mode, opens the first
// roll file and starts the drainer. The returned logger is READY; records
// submitted from this point on are eventually written.
func NewLogger(cfg *Config) (*Logger, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	sink, err := newFileWriter(cfg)
	if err != nil {
		return nil, err
	}
	l := &Logger{
		buf:   cfg.Mode.newBuffer(),
		sink:  sink,
		done:  make(chan struct{}),
		clock: timecache.NewWithResolution(time.Millisecond),
	}
	go l.drain()
	l.state.Store(stateReady)
	return l, nil
}

// add moves a record into the buffer. Called by the facade; records
// arriving after shutdown are discarded silently.
func (l *Logger) add(r *Record) {
	if l.state.Load() == stateShutdown {
		return
	}
	start := l.clock.CachedTime()
	l.buf.push(r)
	l.pushed.Add(1)

	latencyNs := l.clock.CachedTime().Sub(start).Nanoseconds()
	if latencyNs < 0 {
		latencyNs = 0 // Protect against clock skew
	}
	latency := uint64(latencyNs)
	l.lastLatency.Store(latency)
	l.totalLatency.Add(latency)
}

// drain runs on the drainer goroutine: wait for the constructor to publish
// READY, pop and write until shutdown, then empty the buffer completely.
func (l *Logger) drain() {
	defer close(l.done)

	// Wait for construction to complete and pull its stores to this core.
	for l.state.Load() == stateInit {
		time.Sleep(drainerIdleSleep)
	}

	var rec Record
	for l.state.Load() == stateReady {
		if l.buf.tryPop(&rec) {
			l.write(&rec)
		} else {
			time.Sleep(drainerIdleSleep)
		}
	}

	// Shutdown: pop and write all remaining entries.
	for l.buf.tryPop(&rec) {
		l.write(&rec)
	}
	if err := l.sink.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "styx: final flush failed: %v\n", err)
	}
}

func (l *Logger) write(rec *Record) {
	// Sink errors are already reported; one record lost per failure.
	_ = l.sink.Write(rec)
	l.drained.Add(1)
}

// Close stores SHUTDOWN and joins the drainer. When it returns, every
// queued record has been flushed to the sink. Safe to call more than once.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.state.Store(stateShutdown)
		<-l.done
		l.clock.Stop()
		err = l.sink.Close()
	})
	return err
}

// Roll forces the sink onto the next numbered file. Must not race the
// drainer; call it before the first record or after Close.
func (l *Logger) Roll() error {
	return l.sink.Roll()
}

// Stats is a snapshot of logger telemetry.
type Stats struct {
	Pushed          uint64 `json:"pushed"`            // Records accepted into the buffer
	Drained         uint64 `json:"drained"`           // Records handed to the sink
	DroppedOnFull   uint64 `json:"dropped_on_full"`   // Records lost to overwrite (non-guaranteed mode only)
	AvgLatencyNs    uint64 `json:"avg_latency_ns"`    // Average producer-side push latency
	LastLatencyNs   uint64 `json:"last_latency_ns"`   // Last producer-side push latency
	RolledFiles     uint64 `json:"rolled_files"`      // Roll files opened so far
	CurrentFileSize int64  `json:"current_file_size"` // Bytes in the current roll file
}

// Stats returns current telemetry. Safe to call concurrently with
// producers and the drainer.
func (l *Logger) Stats() Stats {
	pushed := l.pushed.Load()
	var avg uint64
	if pushed > 0 {
		avg = l.totalLatency.Load() / pushed
	}
	return Stats{
		Pushed:          pushed,
		Drained:         l.drained.Load(),
		DroppedOnFull:   l.buf.dropped(),
		AvgLatencyNs:    avg,
		LastLatencyNs:   l.lastLatency.Load(),
		RolledFiles:     l.sink.fileNumber.Load(),
		CurrentFileSize: l.sink.written.Load(),
	}
}

// Process-wide gate: the published logger and the severity threshold.
var (
	activeLogger atomic.Pointer[Logger]
	levelGate    atomic.Uint32
)

// Initialize constructs a logger from cfg and publishes it as the
// process-wide active logger. A previously active logger is then shut
// down, draining its queued records.
func Initialize(cfg *Config) (*Logger, error) {
	l, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	SetLevel(cfg.Level)
	if old := activeLogger.Swap(l); old != nil {
		_ = old.Close()
	}
	return l, nil
}

// Shutdown unpublishes the active logger and drains it. Records submitted
// afterwards are discarded silently.
func Shutdown() error {
	if l := activeLogger.Swap(nil); l != nil {
		return l.Close()
	}
	return nil
}

// SetLevel changes the process-wide severity threshold.
func SetLevel(level Level) {
	levelGate.Store(uint32(level))
}

// IsLogged reports whether records at level pass the threshold. The read
// is deliberately unsynchronized with SetLevel: a handful of records may
// be admitted at the old threshold right after a change.
func IsLogged(level Level) bool {
	return uint32(level) >= levelGate.Load()
}

// Line is one record under construction at a call site. A nil *Line (a
// gated-off call) is a valid receiver for every chained method, so the
// argument appends cost nothing when the level is disabled beyond
// evaluating the arguments themselves.
type Line struct {
	rec Record
	log *Logger
}

// NewLine builds a record with explicit source coordinates. Most callers
// want Info/Warn/Crit, which capture the coordinates automatically.
func NewLine(level Level, file, function string, line uint32) *Line {
	return &Line{rec: newRecord(level, file, function, line), log: activeLogger.Load()}
}

// Info starts an INFO line, or returns nil when gated off.
func Info() *Line { return gated(LevelInfo) }

// Warn starts a WARN line, or returns nil when gated off.
func Warn() *Line { return gated(LevelWarn) }

// Crit starts a CRIT line, or returns nil when gated off.
func Crit() *Line { return gated(LevelCrit) }

func gated(level Level) *Line {
	if !IsLogged(level) {
		return nil
	}
	file, function, line := callerSite(3)
	return &Line{rec: newRecord(level, file, function, line), log: activeLogger.Load()}
}

// Chr appends a byte character argument.
func (ln *Line) Chr(v byte) *Line {
	if ln == nil {
		return nil
	}
	ln.rec.Chr(v)
	return ln
}

// U32 appends an unsigned 32-bit argument.
func (ln *Line) U32(v uint32) *Line {
	if ln == nil {
		return nil
	}
	ln.rec.U32(v)
	return ln
}

// U64 appends an unsigned 64-bit argument.
func (ln *Line) U64(v uint64) *Line {
	if ln == nil {
		return nil
	}
	ln.rec.U64(v)
	return ln
}

// I32 appends a signed 32-bit argument.
func (ln *Line) I32(v int32) *Line {
	if ln == nil {
		return nil
	}
	ln.rec.I32(v)
	return ln
}

// I64 appends a signed 64-bit argument.
func (ln *Line) I64(v int64) *Line {
	if ln == nil {
		return nil
	}
	ln.rec.I64(v)
	return ln
}

// F64 appends an IEEE-754 double argument.
func (ln *Line) F64(v float64) *Line {
	if ln == nil {
		return nil
	}
	ln.rec.F64(v)
	return ln
}

// Lit appends a string without copying; see Record.Lit for the lifetime
// contract.
func (ln *Line) Lit(s string) *Line {
	if ln == nil {
		return nil
	}
	ln.rec.Lit(s)
	return ln
}

// Str appends an owned copy of s.
func (ln *Line) Str(s string) *Line {
	if ln == nil {
		return nil
	}
	ln.rec.Str(s)
	return ln
}

// Bytes appends an owned copy of p.
func (ln *Line) Bytes(p []byte) *Line {
	if ln == nil {
		return nil
	}
	ln.rec.Bytes(p)
	return ln
}

// End submits the line to the active logger. Before Initialize or after
// Shutdown the record is discarded silently.
func (ln *Line) End() {
	if ln == nil || ln.log == nil {
		return
	}
	ln.log.add(&ln.rec)
}

// funcNameCache amortizes runtime.FuncForPC lookups: one slow resolution
// per call site, O(1) loads afterwards.
var funcNameCache sync.Map // map[uintptr]string

func callerSite(skip int) (file, function string, line uint32) {
	pc, file, ln, ok := runtime.Caller(skip)
	if !ok {
		return "???", "???", 0
	}
	function = "???"
	if cached, found := funcNameCache.Load(pc); found {
		function = cached.(string)
	} else if fn := runtime.FuncForPC(pc); fn != nil {
		function = fn.Name()
		funcNameCache.Store(pc, function)
	}
	return file, function, uint32(ln)
}
