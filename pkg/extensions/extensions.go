// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines interfaces for enterprise functionality.
//
// This package provides extension points that allow enterprise builds to
// add capabilities without modifying the core assistant codebase. The
// open source version uses no-op defaults for all interfaces.
//
// # Design Philosophy
//
// The assistant is designed as a fully functional NOC-local utility that
// works without identity infrastructure. Enterprise features are
// implemented by providing concrete implementations of these interfaces
// and injecting them via ServiceOptions.
//
// # Extension Categories
//
// The package is organized by domain:
//
//   - auth.go: Operator authentication and authorization (AuthProvider, AuthzProvider)
//   - audit.go: Decision audit logging (AuditLogger, FileAuditLogger)
//   - filter.go: Query redaction before LLM calls (QueryFilter)
//
// # Usage (Open Source)
//
// The open source version uses no-op implementations:
//
//	opts := extensions.DefaultOptions()
//	handler := handlers.NewAnalysisHandler(engine, inv, historian, store, llmClient, opts)
//
// # Usage (Enterprise)
//
// Enterprise provides concrete implementations:
//
//	opts := extensions.ServiceOptions{
//	    AuthProvider: enterprise.NewOktaProvider(config),
//	    AuditLogger:  enterprise.NewSplunkAuditor(config),
//	    QueryFilter:  enterprise.NewSubscriberPIIFilter(policy),
//	}
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
// Multiple goroutines may call methods simultaneously.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// Pass this to handler constructors to enable enterprise features.
// All fields are optional; nil values are replaced with no-op defaults
// when DefaultOptions() is called or when services check for nil.
type ServiceOptions struct {
	// AuthProvider validates authentication tokens.
	// Default: NopAuthProvider (always returns a valid local operator)
	AuthProvider AuthProvider

	// AuthzProvider checks authorization permissions.
	// Default: NopAuthzProvider (always allows all actions)
	AuthzProvider AuthzProvider

	// AuditLogger records decision and knowledge-base events.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger

	// QueryFilter transforms operator queries before and after LLM calls.
	// Default: NopQueryFilter (passes through unchanged)
	QueryFilter QueryFilter
}

// DefaultOptions returns ServiceOptions with no-op defaults.
//
// This is the configuration used by the open source version.
// All operations are allowed, no audit trail, no filtering.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:  &NopAuthProvider{},
		AuthzProvider: &NopAuthzProvider{},
		AuditLogger:   &NopAuditLogger{},
		QueryFilter:   &NopQueryFilter{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
// Useful for fluent configuration.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAuthz returns a copy of opts with the given AuthzProvider.
func (opts ServiceOptions) WithAuthz(provider AuthzProvider) ServiceOptions {
	opts.AuthzProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// WithFilter returns a copy of opts with the given QueryFilter.
func (opts ServiceOptions) WithFilter(filter QueryFilter) ServiceOptions {
	opts.QueryFilter = filter
	return opts
}
