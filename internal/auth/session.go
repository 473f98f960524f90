package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	// SessionCookie carries the admin session token.
	SessionCookie = "admin_session"
	// SessionTTL is the lifetime of an admin session token.
	SessionTTL = 7 * 24 * time.Hour
)

// ErrUnauthorized is returned when an email is not the configured admin.
var ErrUnauthorized = errors.New("unauthorized")

type sessionPayload struct {
	Email string `json:"email"`
	Exp   int64  `json:"exp"` // unix milliseconds
}

// SessionSigner issues and verifies admin session tokens of the form
// base64url(payload) "." base64url(HMAC-SHA256(secret, base64url(payload))).
// Rotating the secret invalidates every outstanding token; there is no other revocation.
type SessionSigner struct {
	secret     []byte
	adminEmail string
	now        func() time.Time
}

// NewSessionSigner creates a signer for the single allow-listed admin address.
func NewSessionSigner(secret, adminEmail string) *SessionSigner {
	return &SessionSigner{
		secret:     []byte(secret),
		adminEmail: normalizeEmail(adminEmail),
		now:        time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsAdmin reports whether email is the configured admin address.
func (s *SessionSigner) IsAdmin(email string) bool {
	email = normalizeEmail(email)
	return s.adminEmail != "" && subtle.ConstantTimeCompare([]byte(email), []byte(s.adminEmail)) == 1
}

// Issue returns a token for email, or ErrUnauthorized if it is not the admin address.
func (s *SessionSigner) Issue(email string) (string, error) {
	if !s.IsAdmin(email) {
		return "", ErrUnauthorized
	}
	payload, err := json.Marshal(sessionPayload{
		Email: s.adminEmail,
		Exp:   s.now().Add(SessionTTL).UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + s.sign(encoded), nil
}

// Verify checks signature, expiry and admin address.
func (s *SessionSigner) Verify(token string) bool {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || sig == "" || strings.Contains(sig, ".") {
		return false
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(encoded))) {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}
	var p sessionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return false
	}
	if s.now().UnixMilli() >= p.Exp {
		return false
	}
	return s.IsAdmin(p.Email)
}

func (s *SessionSigner) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
