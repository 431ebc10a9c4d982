package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// GuestTokenPrefix marks a bearer credential as an anonymous session token.
const GuestTokenPrefix = "guest_"

// NewGuestToken mints an opaque guest bearer capability: the prefix plus 32
// bytes of URL-safe random. Possession of the string is the whole credential.
func NewGuestToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("guest token entropy: %w", err)
	}
	return GuestTokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// IsGuestToken reports whether a bearer credential is a guest token rather
// than a JWT.
func IsGuestToken(token string) bool {
	return strings.HasPrefix(token, GuestTokenPrefix) && len(token) > len(GuestTokenPrefix)
}
