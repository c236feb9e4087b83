package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	slugBytes    = 10
	slugAttempts = 5
)

// newShareSlug returns an unguessable URL-safe slug.
func newShareSlug() (string, error) {
	b := make([]byte, slugBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate share slug: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
