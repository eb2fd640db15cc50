package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		hexLength  int
		wantPrefix string
		wantLength int // expected total length: prefix + hexLength
	}{
		{
			name:       "outbox ID format",
			prefix:     "out_",
			hexLength:  32,
			wantPrefix: "out_",
			wantLength: 36,
		},
		{
			name:       "custom prefix",
			prefix:     "test_",
			hexLength:  16,
			wantPrefix: "test_",
			wantLength: 21,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomID(tt.prefix, tt.hexLength)

			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("GenerateRandomID() = %v, want prefix %v", got, tt.wantPrefix)
			}

			if len(got) != tt.wantLength {
				t.Errorf("GenerateRandomID() length = %v, want %v", len(got), tt.wantLength)
			}

			hexPart := got[len(tt.wantPrefix):]
			if !isValidHex(hexPart) {
				t.Errorf("GenerateRandomID() hex part = %v is not valid hex", hexPart)
			}
		})
	}
}

func TestGenerateRandomHex(t *testing.T) {
	tests := []struct {
		name   string
		length int
		want   int
	}{
		{"zero length", 0, 0},
		{"negative length", -1, 0},
		{"small length", 8, 8},
		{"large length", 64, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomHex(tt.length)

			if len(got) != tt.want {
				t.Errorf("GenerateRandomHex() length = %v, want %v", len(got), tt.want)
			}

			if tt.want > 0 && !isValidHex(got) {
				t.Errorf("GenerateRandomHex() = %v is not valid hex", got)
			}
		})
	}
}

func TestGenerateNumericCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateNumericCode(6)
		if err != nil {
			t.Fatalf("GenerateNumericCode() error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("GenerateNumericCode() length = %d, want 6 (%q)", len(code), code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("GenerateNumericCode() = %q contains a non-digit", code)
			}
		}
	}
}

func TestGenerateNumericCode_InvalidLength(t *testing.T) {
	if _, err := GenerateNumericCode(0); err == nil {
		t.Error("expected error for zero length")
	}
}

func TestGenerateNumericCode_Spread(t *testing.T) {
	const iterations = 500
	seen := make(map[string]bool)
	for i := 0; i < iterations; i++ {
		code, err := GenerateNumericCode(6)
		if err != nil {
			t.Fatalf("GenerateNumericCode() error: %v", err)
		}
		seen[code] = true
	}
	// 500 draws from a million values; a handful of collisions is possible, hundreds is not.
	if len(seen) < iterations-20 {
		t.Errorf("too many repeated codes: %d distinct out of %d", len(seen), iterations)
	}
}

func TestGenerateOutboxID(t *testing.T) {
	got := GenerateOutboxID()
	if !strings.HasPrefix(got, "out_") || len(got) != 36 {
		t.Errorf("GenerateOutboxID() = %v, want out_ + 32 hex chars", got)
	}
}

// Helper function to validate hex strings
func isValidHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
