// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditEvent represents an operationally relevant event for compliance
// logging.
//
// This struct captures the essential information needed for change audits,
// compliance reporting, and incident investigation in a network operations
// context.
//
// # Event Categories
//
// Events are categorized by type for filtering and alerting:
//   - Decisions: "decision.health", "decision.route"
//   - Knowledge base: "knowledge.ingest", "knowledge.delete"
//   - Chat: "chat.message", "chat.blocked"
//   - Authorization: "authz.denied", "authz.granted"
//
// # Compliance Fields
//
// For audit trail integrity, always populate:
//   - UserID: Who triggered the decision or change
//   - Timestamp: When the event occurred (always UTC)
//   - ResourceType/ResourceID: Which device or document was involved
type AuditEvent struct {
	// EventType categorizes the event for filtering and alerting.
	// Format: "category.action" (e.g., "decision.health", "knowledge.ingest")
	EventType string `json:"event_type"`

	// Timestamp is when the event occurred (always use UTC).
	// If zero, implementations should set it to time.Now().UTC().
	Timestamp time.Time `json:"timestamp"`

	// UserID identifies who performed the action.
	// Use "system" for automated actions, "anonymous" if unknown.
	UserID string `json:"user_id"`

	// Action describes what operation was attempted.
	// Common values: "analyze", "route", "ask", "write", "delete"
	Action string `json:"action"`

	// ResourceType is the category of resource involved.
	// Examples: "device", "knowledge", "chat", "history"
	ResourceType string `json:"resource_type"`

	// ResourceID is the specific resource instance (optional).
	// Examples: "OLT17PROP01", "olt_troubleshooting.md"
	ResourceID string `json:"resource_id,omitempty"`

	// Outcome indicates the result of the action.
	// Values: "success", "failure", "blocked", "denied"
	Outcome string `json:"outcome"`

	// Metadata holds additional event-specific data.
	//
	// Common metadata keys:
	//   - "error": error message if Outcome is "failure"
	//   - "request_id": the API request that triggered the event
	//   - "status": resulting severity tier for decision events
	//   - "duration_ms": operation duration for performance analysis
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AuditFilter defines criteria for querying audit events.
//
// All fields are optional; only non-zero values are used as filters.
// Multiple fields are combined with AND logic.
type AuditFilter struct {
	// EventTypes limits results to specific event types.
	// If empty, all event types are included.
	EventTypes []string

	// UserID limits results to events from a specific operator.
	UserID string

	// StartTime is the earliest event timestamp to include (inclusive).
	// If zero, no lower bound is applied.
	StartTime time.Time

	// EndTime is the latest event timestamp to include (exclusive).
	// If zero, no upper bound is applied.
	EndTime time.Time

	// ResourceType limits results to events involving specific resource
	// types.
	ResourceType string

	// ResourceID limits results to events involving a specific resource.
	ResourceID string

	// Outcome limits results to events with specific outcomes.
	Outcome string

	// Limit is the maximum number of events to return.
	// If zero, an implementation-specific default is used.
	Limit int
}

// AuditLogger records operationally relevant events for compliance and
// analysis.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// The Log method should be non-blocking or have reasonable timeouts to
// avoid impacting decision latency.
//
// # Open Source Behavior
//
// The default NopAuditLogger discards all events. FileAuditLogger writes
// JSON Lines to a local file for NOC deployments that want a trail without
// SIEM infrastructure.
//
// # Enterprise Implementation
//
// Enterprise versions send events to SIEM systems (Splunk, Datadog, ELK)
// or compliance databases.
type AuditLogger interface {
	// Log records an operationally relevant event.
	//
	// Implementations should:
	//  1. Set Timestamp if zero
	//  2. Persist or transmit the event
	//  3. Return quickly (use async if needed)
	Log(ctx context.Context, event AuditEvent) error

	// Query retrieves audit events matching the filter criteria, ordered
	// by Timestamp descending. Implementations without read support return
	// an empty slice.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush ensures all buffered events are persisted. Call this before
	// application shutdown to prevent event loss.
	Flush(ctx context.Context) error
}

// NopAuditLogger is the default audit logger for open source.
//
// It discards all events without recording them. This is appropriate
// for local single-operator deployments where audit trails aren't
// required.
//
// Thread-safe: This implementation has no mutable state.
type NopAuditLogger struct{}

// Log discards the event without recording it.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error {
	return nil
}

// Query returns an empty slice (no events are stored).
func (l *NopAuditLogger) Query(_ context.Context, _ AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

// Flush is a no-op since nothing is buffered.
func (l *NopAuditLogger) Flush(_ context.Context) error {
	return nil
}

// FileAuditLogger appends events to a JSON Lines file.
//
// One event per line, marshaled as JSON. The file is opened lazily on the
// first Log call and kept open for the logger's lifetime. Writes are
// serialized with a mutex so concurrent handlers produce intact lines.
//
// Query scans the whole file on every call; this is acceptable for the
// NOC-local trail sizes it is meant for, not for SIEM-scale retention.
type FileAuditLogger struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewFileAuditLogger creates a logger appending to path. The file is
// created on first write if it does not exist.
func NewFileAuditLogger(path string) *FileAuditLogger {
	return &FileAuditLogger{path: path}
}

// Log appends the event as one JSON line.
func (l *FileAuditLogger) Log(_ context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open audit log %s: %w", l.path, err)
		}
		l.file = file
	}

	return json.NewEncoder(l.file).Encode(event)
}

// Query reads the file back and returns matching events, newest first.
func (l *FileAuditLogger) Query(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return []AuditEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log %s: %w", l.path, err)
	}

	var events []AuditEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var event AuditEvent
		if err := dec.Decode(&event); err != nil {
			// A torn trailing line from a crash is not a query failure.
			break
		}
		if filter.matches(&event) {
			events = append(events, event)
		}
	}

	// Newest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}

// Flush syncs the underlying file.
func (l *FileAuditLogger) Flush(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Sync()
}

// Close releases the file handle. Subsequent Log calls reopen it.
func (l *FileAuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// matches reports whether the event passes every non-zero filter field.
func (f *AuditFilter) matches(event *AuditEvent) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == event.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.UserID != "" && f.UserID != event.UserID {
		return false
	}
	if f.ResourceType != "" && f.ResourceType != event.ResourceType {
		return false
	}
	if f.ResourceID != "" && f.ResourceID != event.ResourceID {
		return false
	}
	if f.Outcome != "" && f.Outcome != event.Outcome {
		return false
	}
	if !f.StartTime.IsZero() && event.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && !event.Timestamp.Before(f.EndTime) {
		return false
	}
	return true
}

// Compile-time interface compliance checks.
var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*FileAuditLogger)(nil)
)
