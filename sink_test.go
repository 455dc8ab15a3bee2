// sink_test.go: Unit tests for the rolled file sink
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package styx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestWriter(t *testing.T, cfg *Config) *FileWriter {
	t.Helper()
	if err := cfg.validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	fw, err := newFileWriter(cfg)
	if err != nil {
		t.Fatalf("newFileWriter: %v", err)
	}
	return fw
}

func TestFileWriterNaming(t *testing.T) {
	dir := t.TempDir() + string(os.PathSeparator)
	fw := newTestWriter(t, &Config{Directory: dir, FileName: "app"})
	defer fw.Close()

	if _, err := os.Stat(dir + "app.1.txt"); err != nil {
		t.Fatalf("first roll file missing: %v", err)
	}
	if err := fw.Roll(); err != nil {
		t.Fatalf("manual roll: %v", err)
	}
	if _, err := os.Stat(dir + "app.2.txt"); err != nil {
		t.Fatalf("second roll file missing: %v", err)
	}
}

func TestFileWriterTruncatesOnOpen(t *testing.T) {
	dir := t.TempDir() + string(os.PathSeparator)
	stale := dir + "app.1.txt"
	if err := os.WriteFile(stale, []byte("stale contents from a previous run\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fw := newTestWriter(t, &Config{Directory: dir, FileName: "app"})
	defer fw.Close()

	info, err := os.Stat(stale)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Fatalf("roll file not truncated on open: %d bytes remain", info.Size())
	}
}

func TestFileWriterRollsOnSize(t *testing.T) {
	dir := t.TempDir() + string(os.PathSeparator)
	fw := newTestWriter(t, &Config{Directory: dir, FileName: "app", RollSizeMB: 1})
	defer fw.Close()

	payload := strings.Repeat("x", 200)
	var longest int64
	for i := 0; i < 10000; i++ {
		rec := newRecord(LevelInfo, "sink_test.go", "roll", 1)
		rec.Str(payload)
		if err := fw.Write(&rec); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if n := int64(len(fw.scratch)); n > longest {
			longest = n
		}
	}

	matches, err := filepath.Glob(dir + "app.*.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) < 2 {
		t.Fatalf("output spans %d files, want at least 2", len(matches))
	}
	limit := int64(1024*1024) + longest
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			t.Fatal(err)
		}
		if info.Size() > limit {
			t.Errorf("%s holds %d bytes, exceeds roll budget + one record (%d)", m, info.Size(), limit)
		}
	}
}

func TestFileWriterCritFlushesImmediately(t *testing.T) {
	dir := t.TempDir() + string(os.PathSeparator)
	fw := newTestWriter(t, &Config{Directory: dir, FileName: "app"})
	// Deliberately no Close: the record must be durable without it.

	rec := newRecord(LevelCrit, "sink_test.go", "crit", 1)
	rec.Lit("disk is on fire")
	if err := fw.Write(&rec); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(dir + "app.1.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "disk is on fire") {
		t.Fatalf("CRIT record not on disk before close: %q", data)
	}
	fw.Close()
}

func TestFileWriterErrorCallback(t *testing.T) {
	dir := t.TempDir() + string(os.PathSeparator)
	var ops []string
	fw := newTestWriter(t, &Config{
		Directory: dir,
		FileName:  "app",
		ErrorCallback: func(operation string, err error) {
			ops = append(ops, operation)
		},
	})

	defer func() { _ = fw.Close() }()

	// Close the file behind the writer's back; the buffered write itself
	// succeeds, so the failure surfaces on the CRIT flush-through.
	fw.file.Close()
	rec := newRecord(LevelCrit, "sink_test.go", "cb", 1)
	rec.Lit("lost")
	if err := fw.Write(&rec); err == nil {
		t.Fatal("flush to a closed file did not fail")
	}
	if len(ops) == 0 || ops[0] != "sink_flush" {
		t.Fatalf("error callback saw %v, want sink_flush", ops)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"app", "app"},
		{"app:2025", "app_2025"},
		{"a<b>c|d", "a_b_c_d"},
		{"tab\there", "tab_here"},
	}
	for _, tt := range tests {
		if got := sanitizeFileName(tt.input); got != tt.want {
			t.Errorf("sanitizeFileName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidatePathLimit(t *testing.T) {
	if err := validatePath("app"); err != nil {
		t.Errorf("short path rejected: %v", err)
	}
	if err := validatePath("/" + strings.Repeat("d", 5000)); err == nil {
		t.Error("oversized path accepted")
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	fw := &FileWriter{retryCount: 3, retryDelay: time.Millisecond}
	attempts := 0
	err := fw.retry(func() error {
		attempts++
		if attempts < 3 {
			return os.ErrPermission
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry gave up early: %v", err)
	}
	if attempts != 3 {
		t.Errorf("retried %d times, want 3", attempts)
	}

	failures := 0
	err = fw.retry(func() error {
		failures++
		return os.ErrPermission
	})
	if err == nil || failures != 3 {
		t.Errorf("exhausted retry: err=%v after %d attempts", err, failures)
	}
}

func TestFileWriterRollSizeClamp(t *testing.T) {
	cfg := &Config{Directory: "", FileName: "x", RollSizeMB: 0}
	size, err := cfg.rollSizeBytes()
	if err != nil {
		t.Fatal(err)
	}
	if size != 1024*1024 {
		t.Fatalf("roll size %d, want clamp to 1MB", size)
	}

	cfg = &Config{FileName: "x", RollSize: "512KB"}
	size, err = cfg.rollSizeBytes()
	if err != nil {
		t.Fatal(err)
	}
	if size != 1024*1024 {
		t.Fatalf("string roll size %d, want clamp to 1MB", size)
	}

	cfg = &Config{FileName: "x", RollSize: "2MB"}
	size, err = cfg.rollSizeBytes()
	if err != nil {
		t.Fatal(err)
	}
	if size != 2*1024*1024 {
		t.Fatalf("string roll size %d, want 2MB", size)
	}
}
