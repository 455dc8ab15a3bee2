// doc.go: Package documentation
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package styx provides a low-latency asynchronous logging core, designed,
// originally, as the file-backed tail of the AGILira logging fragments.
//
// Producer goroutines record log lines on their hot paths; a single
// background drainer formats them and writes rolled text files. All
// formatting is deferred to the drainer: a producer encodes its arguments
// into a compact binary record and hands it off through one of two buffer
// strategies, a bounded newest-wins ring (non-guaranteed) or an unbounded
// lossless segment queue (guaranteed).
//
// # Quick Start
//
// Initialize once, then log through the facade:
//
//	logger, err := styx.Initialize(&styx.Config{
//		Mode:       styx.Guaranteed{},
//		Directory:  "/var/log/app/",
//		FileName:   "app",
//		RollSizeMB: 64,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer styx.Shutdown()
//
//	styx.Info().Lit("service started on port ").U32(8080).End()
//	styx.Warn().Lit("queue depth ").I64(depth).Lit(" above watermark").End()
//
// Levels gate at the call site: a disabled level returns a nil line and
// every chained append is a no-op. Use IsLogged to skip expensive argument
// computation entirely:
//
//	if styx.IsLogged(styx.LevelInfo) {
//		styx.Info().Lit("state: ").Str(expensiveDump()).End()
//	}
//
// # Buffer Modes
//
// NonGuaranteed trades completeness for a bounded footprint: producers
// never block, and if they out-pace the drainer by the full ring capacity
// the newest records overwrite the oldest un-drained ones.
//
//	Mode: styx.NonGuaranteed{RingBufferSizeMB: 4}
//
// Guaranteed never drops: the queue grows by fixed segments, and a push at
// a segment boundary waits only for the O(1) installation of the next
// segment.
//
// # Output
//
// One line per record, written to {Directory}{FileName}.{N}.txt with N
// incrementing on each roll. The file coordinate is the path runtime.Caller
// reports for the call site:
//
//	[2025-06-01 12:00:00.000123][INFO][12345][/src/app/main.go:main.run:42]service started on port 8080
//
// CRIT records are flushed to durable storage as soon as they are written.
//
// # Hot Reload
//
// The severity threshold can follow a configuration file at runtime:
//
//	watcher, err := styx.WatchConfig("styx.yml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer watcher.Stop()
package styx
