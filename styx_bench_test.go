// styx_bench_test.go: Benchmarks for the producer hot path
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package styx

import (
	"os"
	"testing"
)

func BenchmarkRecordEncode(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		rec := newRecord(LevelInfo, "bench.go", "encode", 1)
		rec.Lit("value=").I64(int64(i)).Chr(' ').F64(0.5)
	}
}

func BenchmarkRingBufferPush(b *testing.B) {
	buf := newRingBuffer(8)
	rec := newRecord(LevelInfo, "bench.go", "push", 1)
	rec.Lit("payload")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.push(&rec)
	}
}

func BenchmarkRingBufferPushParallel(b *testing.B) {
	buf := newRingBuffer(8)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		rec := newRecord(LevelInfo, "bench.go", "push", 1)
		rec.Lit("payload")
		for pb.Next() {
			buf.push(&rec)
		}
	})
}

func BenchmarkSegmentQueuePush(b *testing.B) {
	q := newSegmentQueue()
	rec := newRecord(LevelInfo, "bench.go", "push", 1)
	rec.Lit("payload")
	var sink Record
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.push(&rec)
		// Keep the queue from growing without bound over long runs.
		if i&1023 == 1023 {
			for j := 0; j < 1024; j++ {
				q.tryPop(&sink)
			}
		}
	}
}

func BenchmarkFacadeGatedOff(b *testing.B) {
	SetLevel(LevelCrit)
	defer SetLevel(LevelInfo)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Info().Lit("never emitted ").U32(uint32(i)).End()
	}
}

func BenchmarkEndToEndGuaranteed(b *testing.B) {
	dir := b.TempDir() + string(os.PathSeparator)
	_, err := Initialize(&Config{Directory: dir, FileName: "bench", RollSizeMB: 512})
	if err != nil {
		b.Fatal(err)
	}
	defer Shutdown()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Info().Lit("iteration ").U64(uint64(i)).End()
	}
}
