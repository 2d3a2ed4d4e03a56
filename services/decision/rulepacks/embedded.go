// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package rulepacks carries the built-in rule documents baked into the binary
with the Go embed package. The engine falls back to these when the
knowledge base is unreachable or has no rules for an entity type, so they
must always ship with the executable rather than live on the host
filesystem.
*/
package rulepacks

import (
	_ "embed"
)

// FTTHOLTHealth holds the raw YAML of the built-in FTTH OLT health rule
// set, populated at compile time.
//
//go:embed ftth_olt_health.yaml
var FTTHOLTHealth []byte

// QueryRouting holds the raw YAML of the built-in query routing guidance
// rule set, populated at compile time.
//
//go:embed query_routing.yaml
var QueryRouting []byte
