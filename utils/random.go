package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateCode returns a random hexadecimal string of 2*n characters.
// Used for device API keys and lock lease tokens.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return hex.EncodeToString(byt), nil
}
