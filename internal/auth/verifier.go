// Package auth resolves bearer tokens to admin identities.
package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
)

// Verifier maps a bearer token to an admin id.
type Verifier interface {
	Verify(ctx context.Context, token string) (adminID string, err error)
}

// StaticVerifier checks tokens against a fixed token -> admin id table.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier creates a verifier from a token -> admin id table.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	copied := make(map[string]string, len(tokens))
	for k, v := range tokens {
		copied[k] = v
	}
	return &StaticVerifier{tokens: copied}
}

// Verify returns the admin id for token or an auth.invalid error.
func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperr.New(apperr.CodeAuthInvalid, "missing bearer token")
	}
	for known, adminID := range v.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return adminID, nil
		}
	}
	return "", apperr.New(apperr.CodeAuthInvalid, "invalid bearer token")
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
