package validation

import (
	"testing"
)

func TestValidateDeviceID(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		wantErr  bool
	}{
		// Valid device IDs
		{"olt name", "OLT17PROP01", false},
		{"single char", "A", false},
		{"with hyphen", "OLT99AB-02", false},
		{"with underscore", "SW_CORE_01", false},
		{"all digits", "1234567890", false},
		{"max length", "OLT0123456789012345678901234567", false},

		// Invalid device IDs - injection attempts
		{"empty", "", true},
		{"injection attempt", `OLT01") |> drop()`, true},
		{"sql injection", "OLT'; DROP TABLE--", true},
		{"newline injection", "OLT01\n|> drop()", true},
		{"lowercase", "olt17prop01", true},
		{"too long", "OLT01234567890123456789012345678X", true},
		{"special chars", "OLT@#$", true},
		{"spaces", "OLT 01", true},
		{"starts with hyphen", "-OLT01", true},
		{"starts with underscore", "_OLT01", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeviceID(tt.deviceID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDeviceID(%q) error = %v, wantErr %v", tt.deviceID, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDeviceIDs(t *testing.T) {
	tests := []struct {
		name      string
		deviceIDs []string
		wantErr   bool
	}{
		{"all valid", []string{"OLT17PROP01", "OLT99AB02", "SW-CORE-01"}, false},
		{"one invalid", []string{"OLT17PROP01", "bad!", "OLT99AB02"}, true},
		{"all invalid", []string{"olt", "sw core"}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeviceIDs(tt.deviceIDs)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDeviceIDs(%v) error = %v, wantErr %v", tt.deviceIDs, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeDeviceID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"already clean", "OLT17PROP01", "OLT17PROP01", false},
		{"lowercase normalized", "olt17prop01", "OLT17PROP01", false},
		{"whitespace trimmed", "  OLT17PROP01  ", "OLT17PROP01", false},
		{"injection rejected", `olt") |> drop()`, "", true},
		{"empty rejected", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeDeviceID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SanitizeDeviceID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SanitizeDeviceID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeRegion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"simple", "HOBO", "HOBO", false},
		{"lowercase normalized", "antw", "ANTW", false},
		{"hyphenated", "gent-north", "GENT-NORTH", false},
		{"empty", "", "", true},
		{"single char", "H", "", true},
		{"injection", `HOBO"; drop`, "", true},
		{"digits first", "1ABC", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeRegion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SanitizeRegion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SanitizeRegion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
