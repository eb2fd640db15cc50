// Package util provides utility functions for the ClinicIntake application.
package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
// Not suitable for secrets; use GenerateNumericCode for anything a user must prove.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[mrand.Intn(16)])
	}

	return builder.String()
}

// GenerateNumericCode returns a string of length decimal digits drawn from
// crypto/rand. Leading zeros are kept, so every code has exactly length digits.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}
	var builder strings.Builder
	builder.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to read random digit: %w", err)
		}
		builder.WriteByte(byte('0' + d.Int64()))
	}
	return builder.String(), nil
}

// GenerateOutboxID generates a unique outbox message ID with "out_" prefix.
func GenerateOutboxID() string {
	return GenerateRandomID("out_", 32)
}
