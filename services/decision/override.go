// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package decision

import (
	"fmt"
	"strings"
)

// applyOverrides enforces per-environment floors on top of the classified
// status. An override fires when the entity's environment matches and
// either a minimum-count threshold is violated or a required flag is off.
// Overrides escalate to CRITICAL and nothing else: a healthy-looking UAT
// device with too few services becomes CRITICAL, but no override can ever
// soften a classification.
func (e *Engine) applyOverrides(rs *RuleSet, fs *FeatureSet, status SeverityTier) (SeverityTier, []string) {
	env, ok := fs.Get("environment")
	if !ok {
		return status, nil
	}
	envName, ok := env.AsString()
	if !ok || envName == "" {
		return status, nil
	}

	var violations []string
	for i := range rs.Overrides {
		ov := &rs.Overrides[i]
		if !strings.EqualFold(ov.Environment, envName) {
			continue
		}
		for field, min := range ov.MinCounts {
			got, _ := fs.Get(field)
			n, isNum := got.AsNumber()
			if !isNum {
				n = 0
			}
			if n < min {
				violations = append(violations, fmt.Sprintf("%s=%g below %s minimum %g", field, n, ov.Environment, min))
			}
		}
		for field, required := range ov.RequireFlags {
			if !required {
				continue
			}
			got, _ := fs.Get(field)
			if b, isBool := got.AsBool(); !isBool || !b {
				violations = append(violations, fmt.Sprintf("%s required in %s", field, ov.Environment))
			}
		}
	}

	if len(violations) == 0 {
		return status, nil
	}
	return SeverityCritical, violations
}
