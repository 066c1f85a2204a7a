package service

import (
	"math/rand"
	"strings"
	"time"
)

const (
	codeLength      = 6
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	verificationTTL = 24 * time.Hour
)

// generateCode draws a code uniformly from codeAlphabet. Codes are short-lived
// and scoped to one user, so a non-cryptographic source is acceptable.
func generateCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
