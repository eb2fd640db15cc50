package otp

import (
	"crypto/subtle"
	"net/http"
	"time"
)

// Cookie names used by the credential stores.
const (
	CookieName        = "otp_code"
	SessionCookieName = "otp_session"
)

// DefaultTTL is how long an issued code stays valid.
const DefaultTTL = 10 * time.Minute

// CredentialStore keeps an issued code between the issue and verify requests.
type CredentialStore interface {
	// Save records code for the client behind r, replacing any earlier code.
	Save(w http.ResponseWriter, r *http.Request, code string) error
	// Verify checks code against the stored credential. A match consumes the
	// credential. A mismatch leaves it in place.
	Verify(w http.ResponseWriter, r *http.Request, code string) error
}

// CookieStore keeps the code itself in an HttpOnly, SameSite=Strict cookie.
// Expiry is enforced by the client through Max-Age.
type CookieStore struct {
	TTL    time.Duration
	Secure bool
}

var _ CredentialStore = (*CookieStore)(nil)

// NewCookieStore returns a CookieStore. A non-positive ttl selects DefaultTTL.
func NewCookieStore(ttl time.Duration, secure bool) *CookieStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CookieStore{TTL: ttl, Secure: secure}
}

func (s *CookieStore) Save(w http.ResponseWriter, r *http.Request, code string) error {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    code,
		Path:     "/",
		MaxAge:   int(s.TTL / time.Second),
		Expires:  time.Now().Add(s.TTL),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func (s *CookieStore) Verify(w http.ResponseWriter, r *http.Request, code string) error {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return ErrCodeNotFound
	}
	if subtle.ConstantTimeCompare([]byte(c.Value), []byte(code)) != 1 {
		return ErrCodeMismatch
	}
	clearCookie(w, CookieName, s.Secure)
	return nil
}

func clearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
