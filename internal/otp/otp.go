// Package otp generates the 6-digit one-time passcodes that gate document
// retrieval and admin credential changes.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

// Generate returns a random 6-digit decimal passcode, zero-padded.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Valid reports whether s is exactly 6 decimal digits.
func Valid(s string) bool {
	return sixDigits.MatchString(s)
}
