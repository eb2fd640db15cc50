package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"OFF", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("INTAKE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("INTAKE_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 10 * time.Minute},
		{"5m", 5 * time.Minute},
		{"-1m", 10 * time.Minute},
		{"soon", 10 * time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("INTAKE_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("INTAKE_TEST_DURATION", 10*time.Minute); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
