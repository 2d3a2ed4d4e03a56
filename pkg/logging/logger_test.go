// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// waitForEntries polls until the exporter holds at least n entries or
// the deadline passes. Export runs asynchronously, so tests must wait
// rather than read the buffer immediately.
func waitForEntries(t *testing.T, exporter *BufferedExporter, n int) []LogEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries := exporter.Entries()
		if len(entries) >= n {
			return entries
		}
		time.Sleep(10 * time.Millisecond)
	}
	return exporter.Entries()
}

// readLogLines reads the log file and decodes each line as JSON.
func readLogLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		lines = append(lines, m)
	}
	return lines
}

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.level.String()
			if got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo},
		{Level(-1), slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			got := tt.level.toSlogLevel()
			if got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_Constants(t *testing.T) {
	if LevelDebug >= LevelInfo {
		t.Error("LevelDebug should be < LevelInfo")
	}
	if LevelInfo >= LevelWarn {
		t.Error("LevelInfo should be < LevelWarn")
	}
	if LevelWarn >= LevelError {
		t.Error("LevelWarn should be < LevelError")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{" warn ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"ERROR", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Logger Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.Slog() == nil {
		t.Error("Slog() returned nil")
	}
	if logger.file != nil {
		t.Error("file handle should be nil without LogDir")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestNew_QuietWithoutDestinations(t *testing.T) {
	// Quiet with no file and no exporter must still produce a working
	// logger rather than a nil handler panic.
	logger := New(Config{Quiet: true})
	logger.Info("should not panic")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestNew_CreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "assistant",
		Quiet:   true,
	})

	logger.Info("rule pack loaded", "pack", "ftth_olt_health")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	wantName := fmt.Sprintf("assistant_%s.log", time.Now().Format("2006-01-02"))
	path := filepath.Join(dir, wantName)
	lines := readLogLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}
	if lines[0]["msg"] != "rule pack loaded" {
		t.Errorf("msg = %v, want %q", lines[0]["msg"], "rule pack loaded")
	}
	if lines[0]["service"] != "assistant" {
		t.Errorf("service = %v, want assistant", lines[0]["service"])
	}
	if lines[0]["pack"] != "ftth_olt_health" {
		t.Errorf("pack = %v, want ftth_olt_health", lines[0]["pack"])
	}
	if lines[0]["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", lines[0]["level"])
	}
}

func TestNew_DefaultServiceFilename(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Quiet: true})
	logger.Info("hello")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	wantName := fmt.Sprintf("netops_%s.log", time.Now().Format("2006-01-02"))
	if _, err := os.Stat(filepath.Join(dir, wantName)); err != nil {
		t.Errorf("expected log file %s: %v", wantName, err)
	}
}

func TestNew_CreatesMissingLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	logger := New(Config{LogDir: dir, Service: "cli", Quiet: true})
	logger.Info("created")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("log dir was not created: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d files in log dir, want 1", len(entries))
	}
}

func TestNew_UnusableLogDirFallsBack(t *testing.T) {
	// A file where the log directory should be makes MkdirAll fail.
	// The logger must come up anyway, just without file output.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	logger := New(Config{LogDir: blocker, Quiet: true})
	if logger.file != nil {
		t.Error("file handle should be nil when the directory is unusable")
	}
	logger.Info("still works")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default() returned nil")
	}
	if logger.config.Level != LevelInfo {
		t.Errorf("level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "netops" {
		t.Errorf("service = %q, want netops", logger.config.Service)
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestLogger_ExportsEntries(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Service:  "assistant",
		Quiet:    true,
		Exporter: exporter,
	})
	defer logger.Close()

	logger.Info("device checked", "device_id", "OLT-HOBO-01", "status", "HEALTHY")

	entries := waitForEntries(t, exporter, 1)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Message != "device checked" {
		t.Errorf("message = %q, want %q", entry.Message, "device checked")
	}
	if entry.Level != LevelInfo {
		t.Errorf("level = %v, want LevelInfo", entry.Level)
	}
	if entry.Service != "assistant" {
		t.Errorf("service = %q, want assistant", entry.Service)
	}
	if entry.Timestamp.IsZero() {
		t.Error("timestamp is zero")
	}
	if entry.Attrs["device_id"] != "OLT-HOBO-01" {
		t.Errorf("device_id attr = %v, want OLT-HOBO-01", entry.Attrs["device_id"])
	}
	if entry.Attrs["status"] != "HEALTHY" {
		t.Errorf("status attr = %v, want HEALTHY", entry.Attrs["status"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Quiet:    true,
		Exporter: exporter,
	})
	defer logger.Close()

	logger.Debug("filtered debug")
	logger.Info("filtered info")
	logger.Warn("kept warn")
	logger.Error("kept error")

	waitForEntries(t, exporter, 2)
	// Give stragglers a moment, then confirm nothing below Warn leaked.
	time.Sleep(50 * time.Millisecond)
	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	// Export goroutines race, so check membership rather than order.
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.Message] = true
		if e.Level < LevelWarn {
			t.Errorf("entry %q has level %v, below the configured minimum", e.Message, e.Level)
		}
	}
	if !seen["kept warn"] || !seen["kept error"] {
		t.Errorf("expected warn and error entries, got %v", seen)
	}
}

func TestLogger_WithAttrsReachFileNotExporter(t *testing.T) {
	dir := t.TempDir()
	exporter := NewBufferedExporter()
	logger := New(Config{
		LogDir:   dir,
		Service:  "assistant",
		Quiet:    true,
		Exporter: exporter,
	})

	child := logger.With("region", "hobo")
	child.Info("scoped entry")

	entries := waitForEntries(t, exporter, 1)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("got %d exported entries, want 1", len(entries))
	}
	if _, ok := entries[0].Attrs["region"]; ok {
		t.Error("exporter entries should carry call-site attrs only")
	}

	wantName := fmt.Sprintf("assistant_%s.log", time.Now().Format("2006-01-02"))
	lines := readLogLines(t, filepath.Join(dir, wantName))
	if len(lines) != 1 {
		t.Fatalf("got %d file lines, want 1", len(lines))
	}
	if lines[0]["region"] != "hobo" {
		t.Errorf("file entry region = %v, want hobo", lines[0]["region"])
	}
}

func TestLogger_ConcurrentLogging(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter})
	defer logger.Close()

	const goroutines = 10
	const perGoroutine = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				logger.Info("concurrent", "worker", id, "seq", j)
			}
		}(i)
	}
	wg.Wait()

	entries := waitForEntries(t, exporter, goroutines*perGoroutine)
	if len(entries) != goroutines*perGoroutine {
		t.Errorf("got %d entries, want %d", len(entries), goroutines*perGoroutine)
	}
}

// =============================================================================
// Built-in Exporter Tests
// =============================================================================

func TestBufferedExporter_EntriesReturnsCopy(t *testing.T) {
	exporter := NewBufferedExporter()
	ctx := context.Background()
	if err := exporter.Export(ctx, LogEntry{Message: "first"}); err != nil {
		t.Fatalf("Export() = %v", err)
	}

	entries := exporter.Entries()
	entries[0].Message = "mutated"

	again := exporter.Entries()
	if again[0].Message != "first" {
		t.Errorf("internal buffer was mutated through the returned slice")
	}
}

func TestNopExporter(t *testing.T) {
	var e NopExporter
	ctx := context.Background()
	if err := e.Export(ctx, LogEntry{}); err != nil {
		t.Errorf("Export() = %v", err)
	}
	if err := e.Flush(ctx); err != nil {
		t.Errorf("Flush() = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

// =============================================================================
// Multi-Handler Tests
// =============================================================================

func TestMultiHandler_FansOut(t *testing.T) {
	var first, second bytes.Buffer
	handler := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&first, nil),
		slog.NewJSONHandler(&second, nil),
	}}

	logger := slog.New(handler)
	logger.Info("fan out", "key", "value")

	for name, buf := range map[string]*bytes.Buffer{"first": &first, "second": &second} {
		if !strings.Contains(buf.String(), "fan out") {
			t.Errorf("%s handler missing the record: %q", name, buf.String())
		}
	}
}

func TestMultiHandler_EnabledIfAnyEnabled(t *testing.T) {
	var buf bytes.Buffer
	handler := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}}

	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(Debug) = false, want true when one handler accepts it")
	}
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	var first, second bytes.Buffer
	handler := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&first, nil),
		slog.NewJSONHandler(&second, nil),
	}}

	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("service", "cli")}))
	logger.Info("attributed")

	for name, buf := range map[string]*bytes.Buffer{"first": &first, "second": &second} {
		if !strings.Contains(buf.String(), `"service":"cli"`) {
			t.Errorf("%s handler missing the service attr: %q", name, buf.String())
		}
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	tests := []struct {
		input string
		want  string
	}{
		{"~/.netops/logs", filepath.Join(home, ".netops/logs")},
		{"/var/log/netops", "/var/log/netops"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := expandPath(tt.input); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"key1", "value1", "key2", 123})
	if got["key1"] != "value1" || got["key2"] != 123 {
		t.Errorf("argsToMap = %v", got)
	}

	// Trailing unpaired value is dropped.
	got = argsToMap([]any{"key1", "value1", "dangling"})
	if len(got) != 1 {
		t.Errorf("argsToMap with dangling value = %v, want 1 key", got)
	}

	// Non-string keys are skipped.
	got = argsToMap([]any{42, "value", "real", "pair"})
	if _, ok := got["real"]; !ok || len(got) != 1 {
		t.Errorf("argsToMap with non-string key = %v", got)
	}

	if got := argsToMap(nil); len(got) != 0 {
		t.Errorf("argsToMap(nil) = %v, want empty", got)
	}
}
