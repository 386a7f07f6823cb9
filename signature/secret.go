package signature

import (
	"crypto/rand"
	"encoding/hex"
)

// SecretPrefix starts every generated secret.
const SecretPrefix = "whsec_"

// maskedLen is how many leading characters Mask keeps.
const maskedLen = 8

// GenerateSecret returns "whsec_" followed by 32 random bytes hex encoded.
func GenerateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("herald: failed to generate random secret: " + err.Error())
	}
	return SecretPrefix + hex.EncodeToString(b)
}

// Mask keeps the first eight characters of secret and appends "...".
func Mask(secret string) string {
	if len(secret) <= maskedLen {
		return secret + "..."
	}
	return secret[:maskedLen] + "..."
}
