// threadid_other.go: Producer thread identification, portable fallback
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package styx

import "os"

// threadID has no portable per-thread handle outside Linux; the process id
// keeps the output format stable.
func threadID() uint64 {
	return uint64(os.Getpid())
}
