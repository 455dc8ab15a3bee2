// config.go: Configuration model and parsing utilities
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package styx

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/argus"
	"github.com/agilira/go-errors"
)

// Error codes for styx.
const (
	ErrCodeInvalidConfig errors.ErrorCode = "STYX_INVALID_CONFIG"
	ErrCodeSinkOpen      errors.ErrorCode = "STYX_SINK_OPEN"
	ErrCodeSinkWrite     errors.ErrorCode = "STYX_SINK_WRITE"
)

const defaultFileMode os.FileMode = 0644

// BufferMode selects the producer→consumer handoff strategy.
type BufferMode interface {
	newBuffer() buffer
}

// NonGuaranteed is the bounded, lossy mode: a ring buffer of
// RingBufferSizeMB megabytes of slots (4096 slots per MB, clamped to at
// least one MB). When producers out-pace the drainer by the full capacity,
// the newest records overwrite the oldest un-drained ones.
type NonGuaranteed struct {
	RingBufferSizeMB uint32
}

func (m NonGuaranteed) newBuffer() buffer {
	return newRingBuffer(m.RingBufferSizeMB)
}

// Guaranteed is the unbounded, lossless mode: a queue of fixed-size
// segments. Pushes never fail and never drop.
type Guaranteed struct{}

func (Guaranteed) newBuffer() buffer {
	return newSegmentQueue()
}

// Config holds the options for creating a Logger.
type Config struct {
	// Mode selects NonGuaranteed or Guaranteed buffering (default Guaranteed).
	Mode BufferMode

	// Directory is the path prefix for roll files. It is concatenated with
	// FileName as-is, so include a trailing separator when it names a
	// directory.
	Directory string

	// FileName is the base name; roll files are FileName.{N}.txt.
	FileName string

	// RollSizeMB is the per-file byte budget in MB, clamped to at least 1.
	RollSizeMB uint32

	// RollSize is the string form ("1MB", "512KB"); takes precedence over
	// RollSizeMB when set.
	RollSize string

	// Level is the initial severity threshold (default LevelInfo).
	Level Level

	// ErrorCallback is invoked for sink failures, after they are logged to
	// standard error. Optional.
	ErrorCallback func(operation string, err error)

	// File operation knobs (defaults apply when zero).
	FileMode   os.FileMode
	RetryCount int
	RetryDelay time.Duration

	// RetryDelayStr is the string form of RetryDelay ("10ms", "1s").
	RetryDelayStr string
}

// validate applies defaults and rejects unusable configurations.
func (c *Config) validate() error {
	if c.FileName == "" {
		return errors.New(ErrCodeInvalidConfig, "file name cannot be empty")
	}
	if c.Mode == nil {
		c.Mode = Guaranteed{}
	}
	if c.FileMode == 0 {
		c.FileMode = defaultFileMode
	}
	if c.RetryCount < 1 {
		c.RetryCount = 3
	}
	if c.RetryDelay > 0 && c.RetryDelayStr != "" {
		return errors.New(ErrCodeInvalidConfig, "cannot specify both RetryDelay and RetryDelayStr")
	}
	if c.RetryDelayStr != "" {
		d, err := ParseDuration(c.RetryDelayStr)
		if err != nil {
			return errors.Wrap(err, ErrCodeInvalidConfig, "invalid RetryDelayStr")
		}
		c.RetryDelay = d
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 10 * time.Millisecond
	}
	return nil
}

// rollSizeBytes resolves the per-file byte budget, clamped to ≥ 1 MB.
func (c *Config) rollSizeBytes() (int64, error) {
	if c.RollSize != "" {
		size, err := ParseSize(c.RollSize)
		if err != nil {
			return 0, errors.Wrap(err, ErrCodeInvalidConfig, "invalid RollSize")
		}
		if size < 1024*1024 {
			size = 1024 * 1024
		}
		return size, nil
	}
	mb := c.RollSizeMB
	if mb < 1 {
		mb = 1
	}
	return int64(mb) * 1024 * 1024, nil
}

// sizeUnits maps a size suffix to its byte multiplier. Both the one- and
// two-letter spellings are accepted; the empty suffix means plain bytes.
var sizeUnits = map[string]int64{
	"": 1, "B": 1,
	"K": 1 << 10, "KB": 1 << 10,
	"M": 1 << 20, "MB": 1 << 20,
	"G": 1 << 30, "GB": 1 << 30,
	"T": 1 << 40, "TB": 1 << 40,
}

// ParseSize converts a human-readable size such as "4MB", "512K" or
// "1048576" to a byte count, case-insensitively.
func ParseSize(s string) (int64, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	i := 0
	for i < len(t) && t[i] >= '0' && t[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, errors.New(ErrCodeInvalidConfig, "size "+strconv.Quote(s)+" has no numeric part")
	}
	mult, ok := sizeUnits[t[i:]]
	if !ok {
		return 0, errors.New(ErrCodeInvalidConfig, "unknown size unit in "+strconv.Quote(s))
	}
	n, err := strconv.ParseInt(t[:i], 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeInvalidConfig, "invalid size "+strconv.Quote(s))
	}
	if mult > 1 && n > math.MaxInt64/mult {
		return 0, errors.New(ErrCodeInvalidConfig, "size "+strconv.Quote(s)+" overflows")
	}
	return n * mult, nil
}

// ParseDuration accepts everything time.ParseDuration does, plus day, week
// and year suffixes ("7d", "2w", "1y").
func ParseDuration(s string) (time.Duration, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, errors.New(ErrCodeInvalidConfig, "empty duration")
	}
	if d, err := time.ParseDuration(t); err == nil {
		return d, nil
	}

	var mult time.Duration
	switch t[len(t)-1] {
	case 'd', 'D':
		mult = 24 * time.Hour
	case 'w', 'W':
		mult = 7 * 24 * time.Hour
	case 'y', 'Y':
		mult = 365 * 24 * time.Hour
	default:
		return 0, errors.New(ErrCodeInvalidConfig, "unknown duration suffix in "+strconv.Quote(s))
	}
	n, err := strconv.ParseInt(t[:len(t)-1], 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeInvalidConfig, "invalid duration "+strconv.Quote(s))
	}
	return time.Duration(n) * mult, nil
}

// ParseLevel converts a level name to a Level, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO":
		return LevelInfo, nil
	case "WARN":
		return LevelWarn, nil
	case "CRIT":
		return LevelCrit, nil
	}
	return LevelInfo, errors.New(ErrCodeInvalidConfig, "unknown level "+strconv.Quote(s))
}

// WatchConfig watches a configuration file and applies changes to the
// process-wide gate at runtime. The only key currently honoured is "level"
// (INFO, WARN, CRIT); unknown keys are ignored so the file can be shared
// with the application. The returned watcher should be stopped when the
// process shuts down.
//
//	watcher, err := styx.WatchConfig("styx.yml")
//	if err != nil { ... }
//	defer watcher.Stop()
func WatchConfig(path string) (*argus.Watcher, error) {
	return argus.UniversalConfigWatcher(path, func(config map[string]interface{}) {
		v, ok := config["level"]
		if !ok {
			return
		}
		s, ok := v.(string)
		if !ok {
			return
		}
		if level, err := ParseLevel(s); err == nil {
			SetLevel(level)
		}
	})
}
