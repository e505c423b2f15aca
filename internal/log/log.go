// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package log provides the leveled logging facade used throughout the
// engine. Components never import log/slog directly; they call the
// package-level functions here, which forward to whatever Logger the host
// process installed with UseLogger.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Logger is the minimal interface the engine needs from a logging backend.
type Logger interface {
	Log(level slog.Level, msg string)
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Log(level slog.Level, msg string) {
	s.l.Log(context.Background(), level, msg)
}

var (
	mu      sync.RWMutex
	current Logger = &slogLogger{l: slog.New(slog.NewTextHandler(os.Stderr, nil))}
	debugOn atomic.Bool
)

// UseLogger installs l as the engine's logger. Passing nil restores the
// default stderr text logger.
func UseLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = &slogLogger{l: slog.New(slog.NewTextHandler(os.Stderr, nil))}
	}
	current = l
}

// SetDebug toggles whether Debug-level messages are emitted.
func SetDebug(on bool) {
	debugOn.Store(on)
}

func logger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Debug logs a debug-level message. It is a no-op unless SetDebug(true) was
// called, matching the teacher's pattern of keeping contrib wrapping chatter
// out of default output.
func Debug(format string, args ...any) {
	if !debugOn.Load() {
		return
	}
	logger().Log(slog.LevelDebug, fmt.Sprintf(format, args...))
}

// Info logs an info-level message.
func Info(format string, args ...any) {
	logger().Log(slog.LevelInfo, fmt.Sprintf(format, args...))
}

// Warn logs a warn-level message.
func Warn(format string, args ...any) {
	logger().Log(slog.LevelWarn, fmt.Sprintf(format, args...))
}

// Error logs an error-level message. The engine never panics on internal
// invariant violations (spec §7); this is the landing spot for those
// self-repair reports instead.
func Error(format string, args ...any) {
	logger().Log(slog.LevelError, fmt.Sprintf(format, args...))
}
