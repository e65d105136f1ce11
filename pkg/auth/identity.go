package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	"placeme/pkg/config"
)

// SignUserID mints a hex HMAC-SHA256 signature binding a user identity to
// one of the configured signing keys. Backend services call this (via the
// sign endpoint) and hand the signature to their frontend.
func SignUserID(key, userID string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyUserSignature checks sig against every configured signing key.
func VerifyUserSignature(userID, sig string) bool {
	if userID == "" || sig == "" {
		return false
	}
	given, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	for key := range config.GetSigningKeys() {
		mac := hmac.New(sha256.New, []byte(key))
		mac.Write([]byte(userID))
		if hmac.Equal(given, mac.Sum(nil)) {
			return true
		}
	}
	return false
}

// ResolveAuthorFromRequest determines the acting user identity for a
// request. Backend and admin callers are trusted to assert any identity via
// X-User-ID; frontend callers must present a signature minted by a backend.
func ResolveAuthorFromRequest(r *http.Request) (string, error) {
	role, ok := RoleFromContext(r.Context())
	if !ok {
		return "", fmt.Errorf("no authenticated role")
	}
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		return "", fmt.Errorf("missing user identity")
	}
	switch role {
	case RoleBackend, RoleAdmin:
		return userID, nil
	case RoleFrontend:
		sig := r.Header.Get("X-User-Signature")
		if sig == "" {
			sig = r.URL.Query().Get("sig")
		}
		if !VerifyUserSignature(userID, sig) {
			return "", fmt.Errorf("invalid user signature")
		}
		return userID, nil
	}
	return "", fmt.Errorf("unknown role")
}

type authorKey struct{}

// WithAuthor returns a context carrying the resolved author identity.
func WithAuthor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, authorKey{}, userID)
}

// AuthorIDFromContext returns the author identity placed by WithAuthor.
func AuthorIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(authorKey{}).(string)
	return id, ok && id != ""
}
