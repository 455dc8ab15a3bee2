// threadid_linux.go: Producer thread identification
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

//go:build linux

package styx

import "golang.org/x/sys/unix"

// threadID returns the kernel thread id of the OS thread running the
// producer. Goroutines migrate between threads, so this identifies the
// carrier at record-construction time; within one goroutine the submission
// order still holds regardless of migration.
func threadID() uint64 {
	return uint64(unix.Gettid())
}
