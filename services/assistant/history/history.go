// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history provides a BadgerDB-backed audit log of engine decisions.
//
// Every health classification the assistant serves can be appended here and
// read back newest-first per device. BadgerDB gives low-latency local
// storage (~100µs per write), so recording a decision never gates the
// request path on a remote store.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianNetOps/services/decision"
)

var tracer = otel.Tracer("aleutian.netops.history")

var (
	// ErrStoreClosed is returned when operations are called on a closed store.
	ErrStoreClosed = errors.New("history store is closed")

	// ErrNilResult is returned when attempting to append a nil decision result.
	ErrNilResult = errors.New("result must not be nil")

	// ErrEmptyDeviceID is returned when the device identifier is empty.
	ErrEmptyDeviceID = errors.New("device id must not be empty")
)

// DefaultRecentLimit is the number of entries Recent returns when the
// caller does not specify a limit.
const DefaultRecentLimit = 20

// entryKeyPrefix namespaces all decision entries within the database.
const entryKeyPrefix = "decision:"

// Entry is one recorded decision outcome for a device.
type Entry struct {
	// DeviceID identifies the device the decision was made for.
	DeviceID string `json:"device_id"`

	// RecordedAt is when the entry was appended, in Unix milliseconds.
	RecordedAt int64 `json:"recorded_at"`

	// Result is the engine output that was recorded.
	Result *decision.DecisionResult `json:"result"`
}

// Config holds configuration for the history store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Retention caps the number of entries kept per device.
	// Older entries are pruned after each append. 0 disables pruning.
	Retention int

	// GCInterval is how often to run value log garbage collection.
	// 0 disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64

	// Logger receives store and BadgerDB log output.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		Retention:      500,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
		GCInterval: 0,
	}
}

// ConfigFromEnv builds a Config from environment variables.
//
// # Description
//
// Reads NETOPS_HISTORY_PATH (default /var/lib/netops/history) and
// NETOPS_HISTORY_RETENTION (default 500) on top of DefaultConfig.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if path := strings.TrimSpace(os.Getenv("NETOPS_HISTORY_PATH")); path != "" {
		cfg.Path = path
	} else {
		cfg.Path = "/var/lib/netops/history"
	}

	if raw := strings.TrimSpace(os.Getenv("NETOPS_HISTORY_RETENTION")); raw != "" {
		var n int
		if _, err := fmt.Sscanf(raw, "%d", &n); err == nil && n >= 0 {
			cfg.Retention = n
		}
	}

	return cfg
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// StoreStats contains process-local store counters.
type StoreStats struct {
	// Appended is the number of entries written since the store opened.
	Appended int64

	// Pruned is the number of entries removed by retention since open.
	Pruned int64
}

// Store is a BadgerDB-backed decision audit log.
//
// Key format: "decision:{device_id}:{unix_nano:019d}". Device IDs pass the
// validation allowlist before reaching the store and never contain ':', so
// the layout is unambiguous. Keys sort chronologically per device, which
// makes newest-first reads a reverse prefix scan.
//
// Thread Safety: Safe for concurrent use from multiple goroutines.
type Store struct {
	db     *badger.DB
	config Config
	logger *slog.Logger

	appended atomic.Int64
	pruned   atomic.Int64
	closed   atomic.Bool

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open creates and opens a history store with the given configuration.
//
// # Inputs
//
//   - cfg: Store configuration. Path is required unless InMemory is true.
//
// # Outputs
//
//   - *Store: The opened store. Caller must call Close() when done.
//   - error: Non-nil if the path is invalid or the database cannot open.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent history store")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "history"))

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	s := &Store{
		db:     db,
		config: cfg,
		logger: logger,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.gcLoop()
	}

	logger.Info("history store opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
		slog.Int("retention", cfg.Retention))

	return s, nil
}

// deviceKeyPrefix returns the key prefix for one device's entries.
func deviceKeyPrefix(deviceID string) []byte {
	return []byte(entryKeyPrefix + deviceID + ":")
}

// entryKey generates a key for a device at a specific nanosecond timestamp.
func entryKey(deviceID string, nano int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d", entryKeyPrefix, deviceID, nano))
}

// Append records one decision result for a device.
//
// # Description
//
// Marshals the entry as JSON and writes it under a nanosecond-timestamped
// key. When Retention is set, older entries beyond the cap are pruned in a
// best-effort follow-up transaction; a prune failure never fails the append.
//
// # Inputs
//
//   - ctx: Context for cancellation. Must not be nil.
//   - deviceID: The device the decision belongs to. Must not be empty.
//   - result: The engine output to record. Must not be nil.
//
// # Outputs
//
//   - error: Non-nil if encoding or the write fails.
func (s *Store) Append(ctx context.Context, deviceID string, result *decision.DecisionResult) error {
	if deviceID == "" {
		return ErrEmptyDeviceID
	}
	if result == nil {
		return ErrNilResult
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	ctx, span := tracer.Start(ctx, "history.Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("device_id", deviceID),
		attribute.String("status", string(result.Status)),
	)

	now := time.Now()
	entry := Entry{
		DeviceID:   deviceID,
		RecordedAt: now.UnixMilli(),
		Result:     result,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return fmt.Errorf("encode history entry: %w", err)
	}

	key := entryKey(deviceID, now.UnixNano())
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return fmt.Errorf("write history entry: %w", err)
	}

	s.appended.Add(1)

	if s.config.Retention > 0 {
		if err := s.pruneDevice(ctx, deviceID); err != nil {
			s.logger.Warn("history prune failed",
				slog.String("device_id", deviceID),
				slog.String("error", err.Error()))
		}
	}

	s.logger.Debug("decision recorded",
		slog.String("device_id", deviceID),
		slog.String("status", string(result.Status)),
		slog.Int("bytes", len(data)))

	return nil
}

// pruneDevice removes the oldest entries beyond the retention cap.
func (s *Store) pruneDevice(ctx context.Context, deviceID string) error {
	prefix := deviceKeyPrefix(deviceID)

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	excess := len(keys) - s.config.Retention
	if excess <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Keys iterate oldest first, so the first excess keys are the ones to drop.
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys[:excess] {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.pruned.Add(int64(excess))
	return nil
}

// Recent returns the newest entries for a device, newest first.
//
// # Inputs
//
//   - ctx: Context for cancellation. Must not be nil.
//   - deviceID: The device to read. Must not be empty.
//   - limit: Maximum entries to return. <= 0 uses DefaultRecentLimit.
//
// # Outputs
//
//   - []Entry: Entries in reverse chronological order. Empty if none exist.
//   - error: Non-nil if the read fails.
func (s *Store) Recent(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	if deviceID == "" {
		return nil, ErrEmptyDeviceID
	}
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	_, span := tracer.Start(ctx, "history.Recent")
	defer span.End()
	span.SetAttributes(
		attribute.String("device_id", deviceID),
		attribute.Int("limit", limit),
	)

	prefix := deviceKeyPrefix(deviceID)
	entries := make([]Entry, 0, limit)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the highest possible key for this prefix, then walk back.
		seekKey := append(append([]byte{}, prefix...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(entries) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry Entry
				if err := json.Unmarshal(val, &entry); err != nil {
					s.logger.Warn("skipping undecodable history entry",
						slog.String("device_id", deviceID),
						slog.String("error", err.Error()))
					return nil
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, fmt.Errorf("read history for %s: %w", deviceID, err)
	}

	span.SetAttributes(attribute.Int("entry_count", len(entries)))
	return entries, nil
}

// Devices returns the distinct device IDs present in the store, sorted by
// key order.
func (s *Store) Devices(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	prefix := []byte(entryKeyPrefix)
	var devices []string
	var last string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			rest := key[len(entryKeyPrefix):]
			idx := strings.LastIndex(rest, ":")
			if idx <= 0 {
				continue
			}
			device := rest[:idx]
			if device != last {
				devices = append(devices, device)
				last = device
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list history devices: %w", err)
	}

	return devices, nil
}

// Stats returns process-local counters for the store.
func (s *Store) Stats() StoreStats {
	return StoreStats{
		Appended: s.appended.Load(),
		Pruned:   s.pruned.Load(),
	}
}

// Sync flushes pending writes to disk. No-op for in-memory stores.
func (s *Store) Sync() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if s.config.InMemory {
		return nil
	}
	return s.db.Sync()
}

// Close stops garbage collection and closes the database.
// Safe to call multiple times.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
	}

	s.logger.Info("closing history store")
	return s.db.Close()
}

// gcLoop runs periodic value log garbage collection until Close.
func (s *Store) gcLoop() {
	defer close(s.gcDone)

	ticker := time.NewTicker(s.config.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when no GC was needed.
			err := s.db.RunValueLogGC(s.config.GCDiscardRatio)
			if err == nil {
				s.logger.Debug("history value log GC completed")
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("history value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}
