// sink.go: Rolled text file sink for drained records
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package styx

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// Sink receives drained records. It is owned exclusively by the drainer
// goroutine; implementations need no locking.
type Sink interface {
	Write(r *Record) error
	Flush() error
	Close() error
}

var _ Sink = (*FileWriter)(nil)

const sinkBufferSize = 64 * 1024

// FileWriter appends formatted records to numbered roll files
// {directory}{name}.{N}.txt, N starting at 1, truncating on open. When the
// bytes written since the last roll exceed the configured budget, it rolls
// to the next file. Output is buffered; CRIT records are pushed through to
// durable storage immediately.
type FileWriter struct {
	rollSize   int64
	name       string // directory prefix + base file name
	fileMode   os.FileMode
	retryCount int
	retryDelay time.Duration
	onError    func(operation string, err error)

	file    *os.File
	w       *bufio.Writer
	scratch []byte

	// Read by Stats from other goroutines.
	written     atomic.Int64
	fileNumber  atomic.Uint64
	fileCreated atomic.Int64

	clock *timecache.TimeCache
}

// newFileWriter validates the target path, creates the directory if needed
// and opens the first roll file.
func newFileWriter(cfg *Config) (*FileWriter, error) {
	name := cfg.Directory + sanitizeFileName(cfg.FileName)
	if err := validatePath(name); err != nil {
		return nil, err
	}

	rollSize, err := cfg.rollSizeBytes()
	if err != nil {
		return nil, err
	}

	fw := &FileWriter{
		rollSize:   rollSize,
		name:       name,
		fileMode:   cfg.FileMode,
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		onError:    cfg.ErrorCallback,
		scratch:    make([]byte, 0, 512),
		clock:      timecache.NewWithResolution(time.Millisecond),
	}

	if dir := filepath.Dir(name); dir != "." {
		err := fw.retry(func() error {
			return os.MkdirAll(dir, 0750)
		})
		if err != nil {
			fw.clock.Stop()
			return nil, errors.Wrap(err, ErrCodeSinkOpen, "failed to create log directory")
		}
	}

	if err := fw.Roll(); err != nil {
		fw.clock.Stop()
		return nil, err
	}
	return fw, nil
}

// Write formats one record and appends it to the current roll file.
// A write error loses this record only; the drainer keeps going.
func (fw *FileWriter) Write(r *Record) error {
	fw.scratch = r.AppendFormat(fw.scratch[:0])
	n, err := fw.w.Write(fw.scratch)
	if n > 0 {
		fw.written.Add(int64(n))
	}
	if err != nil {
		fw.reportError("sink_write", err)
		return errors.Wrap(err, ErrCodeSinkWrite, "failed to write record")
	}
	if r.level() >= LevelCrit {
		if err := fw.Flush(); err != nil {
			return err
		}
	}
	if fw.written.Load() > fw.rollSize {
		return fw.Roll()
	}
	return nil
}

// Flush drains the output buffer and forces the file's contents to durable
// storage.
func (fw *FileWriter) Flush() error {
	if fw.file == nil {
		return nil
	}
	if err := fw.w.Flush(); err != nil {
		fw.reportError("sink_flush", err)
		return errors.Wrap(err, ErrCodeSinkWrite, "failed to flush log file")
	}
	if err := fw.file.Sync(); err != nil {
		fw.reportError("sink_flush", err)
		return errors.Wrap(err, ErrCodeSinkWrite, "failed to sync log file")
	}
	return nil
}

// Roll closes the current file and opens the next numbered one, truncated.
func (fw *FileWriter) Roll() error {
	if fw.file != nil {
		_ = fw.w.Flush()
		_ = fw.file.Sync()
		if err := fw.file.Close(); err != nil {
			fw.reportError("sink_roll", err)
		}
		fw.file = nil
	}

	fw.written.Store(0)
	next := fw.fileNumber.Add(1)
	path := fmt.Sprintf("%s.%d.txt", fw.name, next)

	var file *os.File
	err := fw.retry(func() error {
		var err error
		file, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fw.fileMode) // #nosec G304 -- path is sanitized application configuration, not user input
		return err
	})
	if err != nil {
		fw.reportError("sink_open", err)
		return errors.Wrap(err, ErrCodeSinkOpen, "failed to open roll file")
	}

	fw.file = file
	fw.w = bufio.NewWriterSize(file, sinkBufferSize)
	fw.fileCreated.Store(fw.clock.CachedTime().Unix())
	return nil
}

// Close flushes and closes the current roll file.
func (fw *FileWriter) Close() error {
	defer fw.clock.Stop()
	if fw.file == nil {
		return nil
	}
	_ = fw.w.Flush()
	_ = fw.file.Sync()
	err := fw.file.Close()
	fw.file = nil
	if err != nil {
		return errors.Wrap(err, ErrCodeSinkWrite, "failed to close log file")
	}
	return nil
}

// retry runs a file operation up to the configured attempt count.
// Transient filesystem failures (antivirus locks, busy network shares,
// overlay quirks) usually clear within a few milliseconds; the last error
// is returned unwrapped so callers can attach their own code.
func (fw *FileWriter) retry(op func() error) error {
	var err error
	for attempt := 0; attempt < fw.retryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(fw.retryDelay)
		}
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}

func (fw *FileWriter) reportError(operation string, err error) {
	fmt.Fprintf(os.Stderr, "styx: %s: %v\n", operation, err)
	if fw.onError != nil {
		fw.onError(operation, err)
	}
}

// sanitizeFileName replaces characters no target filesystem accepts in a
// file name with '_'. Windows is the strictest; applying its rules everywhere keeps
// roll files portable between platforms.
func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '|', '?', '*':
			return '_'
		}
		if r < 32 {
			return '_'
		}
		return r
	}, name)
}

// validatePath rejects path prefixes the platform cannot open, before the
// first roll fails with a less useful error.
func validatePath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "unresolvable log path")
	}
	limit := 4096 // Linux PATH_MAX
	if runtime.GOOS == "windows" {
		limit = 260 // historical MAX_PATH still enforced by default
	}
	if len(abs) > limit {
		return errors.New(ErrCodeInvalidConfig, "log path is "+strconv.Itoa(len(abs))+" characters, limit "+strconv.Itoa(limit))
	}
	return nil
}
