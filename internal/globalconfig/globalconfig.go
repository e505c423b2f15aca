// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package globalconfig holds process-wide engine tunables behind atomics,
// mirroring the teacher's internal/globalconfig package (consumed by
// contrib defaults() functions as e.g. globalconfig.AnalyticsRate()).
package globalconfig

import (
	"time"

	"go.uber.org/atomic"
)

var (
	quietInterval   = atomic.NewDuration(5 * time.Second)
	maxDocumentSize = atomic.NewInt64(10 * 1024 * 1024) // 10MiB default ingestion cap
)

// QuietInterval returns the persistence debounce quiet interval (spec §4.6).
func QuietInterval() time.Duration {
	return quietInterval.Load()
}

// SetQuietInterval overrides the debounce quiet interval. Intended to be
// called once at engine construction via ace.WithQuietInterval.
func SetQuietInterval(d time.Duration) {
	quietInterval.Store(d)
}

// MaxDocumentSize returns the maximum accepted document size in bytes for
// ingestion (spec §6, "a maximum document size for ingestion (bytes)").
func MaxDocumentSize() int64 {
	return maxDocumentSize.Load()
}

// SetMaxDocumentSize overrides the maximum document size.
func SetMaxDocumentSize(n int64) {
	maxDocumentSize.Store(n)
}
