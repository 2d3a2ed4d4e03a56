// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"sync"
	"testing"
)

// =============================================================================
// CurrentLevel / SetPersonalityLevel Tests
// =============================================================================

func TestSetPersonalityLevel_Full(t *testing.T) {
	orig := CurrentLevel()
	defer SetPersonalityLevel(orig)

	SetPersonalityLevel(PersonalityFull)

	if CurrentLevel() != PersonalityFull {
		t.Errorf("expected PersonalityFull, got %v", CurrentLevel())
	}
}

func TestSetPersonalityLevel_Standard(t *testing.T) {
	orig := CurrentLevel()
	defer SetPersonalityLevel(orig)

	SetPersonalityLevel(PersonalityStandard)

	if CurrentLevel() != PersonalityStandard {
		t.Errorf("expected PersonalityStandard, got %v", CurrentLevel())
	}
}

func TestSetPersonalityLevel_Minimal(t *testing.T) {
	orig := CurrentLevel()
	defer SetPersonalityLevel(orig)

	SetPersonalityLevel(PersonalityMinimal)

	if CurrentLevel() != PersonalityMinimal {
		t.Errorf("expected PersonalityMinimal, got %v", CurrentLevel())
	}
}

func TestSetPersonalityLevel_Machine(t *testing.T) {
	orig := CurrentLevel()
	defer SetPersonalityLevel(orig)

	SetPersonalityLevel(PersonalityMachine)

	if CurrentLevel() != PersonalityMachine {
		t.Errorf("expected PersonalityMachine, got %v", CurrentLevel())
	}
}

func TestCurrentLevel_ConcurrentAccess(t *testing.T) {
	orig := CurrentLevel()
	defer SetPersonalityLevel(orig)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetPersonalityLevel(PersonalityMinimal)
		}()
		go func() {
			defer wg.Done()
			_ = CurrentLevel()
		}()
	}
	wg.Wait()
}

// =============================================================================
// ParsePersonalityLevel Tests
// =============================================================================

func TestParsePersonalityLevel_Full(t *testing.T) {
	inputs := []string{"full", "Full", "FULL", "f"}
	for _, input := range inputs {
		result := ParsePersonalityLevel(input)
		if result != PersonalityFull {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want PersonalityFull", input, result)
		}
	}
}

func TestParsePersonalityLevel_Standard(t *testing.T) {
	inputs := []string{"standard", "Standard", "STANDARD", "std", "s"}
	for _, input := range inputs {
		result := ParsePersonalityLevel(input)
		if result != PersonalityStandard {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want PersonalityStandard", input, result)
		}
	}
}

func TestParsePersonalityLevel_Minimal(t *testing.T) {
	inputs := []string{"minimal", "Minimal", "MINIMAL", "min", "m"}
	for _, input := range inputs {
		result := ParsePersonalityLevel(input)
		if result != PersonalityMinimal {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want PersonalityMinimal", input, result)
		}
	}
}

func TestParsePersonalityLevel_Machine(t *testing.T) {
	inputs := []string{"machine", "Machine", "MACHINE", "quiet", "q"}
	for _, input := range inputs {
		result := ParsePersonalityLevel(input)
		if result != PersonalityMachine {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want PersonalityMachine", input, result)
		}
	}
}

func TestParsePersonalityLevel_Default(t *testing.T) {
	// Unknown inputs should default to standard
	inputs := []string{"unknown", "invalid", "", "xyz", "12345"}
	for _, input := range inputs {
		result := ParsePersonalityLevel(input)
		if result != PersonalityStandard {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want PersonalityStandard (default)", input, result)
		}
	}
}
