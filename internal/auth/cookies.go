package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// isHTTPS detects HTTPS from the current request or a reverse proxy header
func isHTTPS(c *gin.Context) bool {
	return c.Request != nil && (c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https"))
}

func (f *Feature) sameSite() http.SameSite {
	if f.host.UseSameSiteCookies {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// setCookie writes a cookie. maxAge 0 makes it a browser session cookie, < 0 deletes it.
func (f *Feature) setCookie(c *gin.Context, name, value string, maxAge time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   isHTTPS(c),
		SameSite: f.sameSite(),
	}
	switch {
	case maxAge < 0:
		cookie.MaxAge = -1
	case maxAge > 0:
		cookie.MaxAge = int(maxAge.Seconds())
	}
	http.SetCookie(c.Writer, cookie)
}

// setSessionCookies issues ss-id, and ss-pid plus ss-opt=perm for remember-me logins
func (f *Feature) setSessionCookies(c *gin.Context, sessionID string, perm bool) {
	f.setCookie(c, SessionCookie, sessionID, 0)
	if perm {
		f.setCookie(c, PermSessionCookie, sessionID, f.sessions.permExpiry)
		f.setCookie(c, SessionOptCookie, PermOption, f.sessions.permExpiry)
		return
	}
	f.setCookie(c, PermSessionCookie, "", -1)
	f.setCookie(c, SessionOptCookie, "temp", 0)
}

func (f *Feature) clearSessionCookies(c *gin.Context) {
	f.setCookie(c, SessionCookie, "", -1)
	f.setCookie(c, PermSessionCookie, "", -1)
	f.setCookie(c, SessionOptCookie, "", -1)
}

// isPerm reports whether the caller opted into a permanent session
func isPerm(c *gin.Context) bool {
	opt, err := c.Cookie(SessionOptCookie)
	return err == nil && opt == PermOption
}

// SessionID returns the caller's session id: the X-ss-id header first,
// then ss-pid for permanent sessions, then ss-id.
func SessionID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(SessionHeader)); id != "" {
		return id
	}
	if isPerm(c) {
		if id, err := c.Cookie(PermSessionCookie); err == nil && id != "" {
			return id
		}
	}
	if id, err := c.Cookie(SessionCookie); err == nil {
		return id
	}
	return ""
}
