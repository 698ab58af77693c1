package padsession

import (
	"net/http"
	"strings"
	"time"
)

// CookieName is the cookie Etherpad reads group session ids from.
const CookieName = "sessionID"

// Cookie carries the session ids a browser presents to Etherpad. Etherpad
// reads it from client-side script, so it is never HttpOnly.
type Cookie struct {
	Name    string
	Value   string
	Domain  string
	Path    string
	Expires time.Time
	Secure  bool
}

func newCookie(sessionIDs []string, domain string, expires time.Time, secure bool) Cookie {
	return Cookie{
		Name:    CookieName,
		Value:   strings.Join(sessionIDs, ","),
		Domain:  domain,
		Path:    "/",
		Expires: expires,
		Secure:  secure,
	}
}

// SessionIDs splits the cookie value back into session ids.
func (c Cookie) SessionIDs() []string {
	if c.Value == "" {
		return nil
	}
	return strings.Split(c.Value, ",")
}

// HTTPCookie converts c for use with http.SetCookie.
func (c Cookie) HTTPCookie() *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if c.Secure {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires.UTC(),
		Secure:   c.Secure,
		HttpOnly: false,
		SameSite: sameSite,
	}
}
