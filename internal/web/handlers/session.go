package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Cookie names. The owner cookie is HMAC-signed; the device cookie is an
// unsigned identifier used only to key tool preferences for anonymous
// visitors.
const (
	OwnerCookie  = "relay_session"
	DeviceCookie = "relay_device"
)

// Sessions resolves and issues session cookies. The owner cookie value is
// "<owner id>.<hex hmac>"; a missing or invalid cookie means anonymous,
// which is allowed everywhere except deletion.
type Sessions struct {
	secret []byte
	isDev  bool
}

// NewSessions creates a session resolver. secret must be at least 32
// bytes; the caller validates that at startup.
func NewSessions(secret []byte, isDev bool) *Sessions {
	return &Sessions{secret: secret, isDev: isDev}
}

// Owner returns the authenticated owner id from the request, or "" for
// anonymous. Tampered cookies resolve to anonymous rather than erroring.
func (s *Sessions) Owner(r *http.Request) string {
	c, err := r.Cookie(OwnerCookie)
	if err != nil {
		return ""
	}
	owner, sig, ok := strings.Cut(c.Value, ".")
	if !ok || owner == "" {
		return ""
	}
	want := s.sign(owner)
	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(got, want) {
		return ""
	}
	return owner
}

// Issue sets a signed owner cookie.
func (s *Sessions) Issue(w http.ResponseWriter, owner string) {
	http.SetCookie(w, &http.Cookie{
		Name:     OwnerCookie,
		Value:    owner + "." + hex.EncodeToString(s.sign(owner)),
		Path:     "/",
		HttpOnly: true,
		Secure:   !s.isDev,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Sessions) sign(owner string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(owner))
	return mac.Sum(nil)
}

// PrefsKey returns the identifier preferences are stored under: the owner
// id when authenticated, otherwise a device cookie minted on first use.
func (s *Sessions) PrefsKey(w http.ResponseWriter, r *http.Request) string {
	if owner := s.Owner(r); owner != "" {
		return owner
	}
	if c, err := r.Cookie(DeviceCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   !s.isDev,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   365 * 24 * 3600,
	})
	return id
}
