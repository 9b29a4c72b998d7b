package httpx

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	// CSRFCookieName holds the double-submit token. Readable by page scripts.
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName must echo the cookie on cookie-authenticated writes.
	CSRFHeaderName = "X-Csrf-Token"

	csrfTokenBytes = 32
)

// CSRFProtection applies the double-submit cookie pattern to state-changing
// requests that rely on the session cookie. Requests carrying a bearer token
// are exempt since browsers never attach one on their own.
func CSRFProtection(cookieDomain string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(CSRFCookieName); err == nil {
				token = c.Value
			}
			if token == "" {
				var err error
				if token, err = newCSRFToken(); err != nil {
					http.Error(w, "unable to generate CSRF token", http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     CSRFCookieName,
					Value:    token,
					Path:     "/",
					Domain:   cookieDomain,
					Secure:   isSecureRequest(r),
					SameSite: http.SameSiteStrictMode,
					MaxAge:   12 * 3600,
				})
			}
			r = r.WithContext(context.WithValue(r.Context(), csrfTokenKey{}, token))

			if needsCSRFCheck(r) && !validCSRFHeader(r, token) {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "csrf_failed",
					Err:     errors.New("CSRF token validation failed"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func needsCSRFCheck(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return bearerToken(r) == ""
}

func validCSRFHeader(r *http.Request, cookieToken string) bool {
	header := r.Header.Get(CSRFHeaderName)
	return header != "" && subtle.ConstantTimeCompare([]byte(header), []byte(cookieToken)) == 1
}

func newCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf token generation failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// isSecureRequest reports whether the request arrived over HTTPS, directly or
// through a proxy.
func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	for _, proto := range strings.Split(r.Header.Get("X-Forwarded-Proto"), ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}

type csrfTokenKey struct{}

// CSRFToken returns the token for the current request, for embedding in pages.
func CSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenKey{}).(string)
	return token
}
