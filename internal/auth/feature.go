package auth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-while/checkweb/internal/config"
	"github.com/go-while/checkweb/internal/models"
	"go.uber.org/zap"
)

// SessionContextKey is the gin context key holding the authenticated session
const SessionContextKey = "session"

// Host is what the feature needs from the web host: request binding
// (including validation), content negotiated responses and the HTML check.
type Host interface {
	Bind(c *gin.Context, dto any) bool
	Respond(c *gin.Context, status int, dto any)
	WantsHTML(c *gin.Context) bool
}

// Feature wires sessions and credentials into gin
type Feature struct {
	sessions *SessionStore
	creds    *CredentialsProvider
	host     config.HostConfig
	web      Host
	logger   *zap.Logger
}

func NewFeature(sessions *SessionStore, creds *CredentialsProvider, host config.HostConfig, web Host, logger *zap.Logger) *Feature {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feature{
		sessions: sessions,
		creds:    creds,
		host:     host,
		web:      web,
		logger:   logger,
	}
}

// Sessions returns the session store
func (f *Feature) Sessions() *SessionStore {
	return f.sessions
}

// Register adds the /auth routes
func (f *Feature) Register(r gin.IRoutes) {
	r.Any("/auth", f.handleAuth)
	r.Any("/auth/logout", f.handleLogout)
	r.Any("/auth/:provider", f.handleLogin)
}

// ErrorResponse builds the wire error for a status code
func ErrorResponse(code, message string) models.ErrorResponse {
	return models.ErrorResponse{ResponseStatus: models.ResponseStatus{ErrorCode: code, Message: message}}
}

// CurrentSession returns the session stored by Authenticate
func CurrentSession(c *gin.Context) *models.AuthUserSession {
	if v, ok := c.Get(SessionContextKey); ok {
		if s, ok := v.(*models.AuthUserSession); ok {
			return s
		}
	}
	return nil
}

// LoadSession looks up the caller's authenticated session
func (f *Feature) LoadSession(c *gin.Context) (*models.AuthUserSession, error) {
	return f.sessions.Get(c.Request.Context(), SessionID(c))
}

// Authenticate rejects anonymous callers. HTML callers are redirected to
// the login page, everyone else gets 401.
func (f *Feature) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := f.LoadSession(c)
		if err != nil {
			if !errors.Is(err, ErrNotAuthenticated) {
				f.logger.Error("session lookup failed", zap.Error(err))
				f.web.Respond(c, http.StatusInternalServerError, ErrorResponse("Exception", err.Error()))
				c.Abort()
				return
			}
			f.unauthorized(c)
			c.Abort()
			return
		}

		// sliding expiry
		if err := f.sessions.Touch(c.Request.Context(), session); err != nil {
			if errors.Is(err, ErrNotAuthenticated) {
				// logged out while this request was in flight
				f.unauthorized(c)
				c.Abort()
				return
			}
			f.logger.Warn("failed to refresh session", zap.String("session", session.ID), zap.Error(err))
		}
		c.Set(SessionContextKey, session)
		c.Next()
	}
}

func (f *Feature) unauthorized(c *gin.Context) {
	if f.host.HtmlRedirect != "" && f.web.WantsHTML(c) {
		c.Redirect(http.StatusFound, f.loginRedirect(c))
		return
	}
	f.web.Respond(c, http.StatusUnauthorized, ErrorResponse("Unauthorized", "Not Authenticated"))
}

// loginRedirect is HtmlRedirect, with the original URL attached when enabled
func (f *Feature) loginRedirect(c *gin.Context) string {
	target := f.host.HtmlRedirect
	if !f.host.AddRedirectParamsToQueryString {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + "redirect=" + url.QueryEscape(c.Request.URL.RequestURI())
}

// handleAuth returns the current session info
func (f *Feature) handleAuth(c *gin.Context) {
	session, err := f.LoadSession(c)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			f.web.Respond(c, http.StatusUnauthorized, ErrorResponse("Unauthorized", "Not Authenticated"))
			return
		}
		f.web.Respond(c, http.StatusInternalServerError, ErrorResponse("Exception", err.Error()))
		return
	}
	f.web.Respond(c, http.StatusOK, authResponse(session, ""))
}

// handleLogin authenticates with the credentials provider
func (f *Feature) handleLogin(c *gin.Context) {
	if provider := c.Param("provider"); provider != CredentialsProviderName {
		f.web.Respond(c, http.StatusNotFound, ErrorResponse("NotFound", "No configuration was added for OAuth provider '"+provider+"'"))
		return
	}

	var req models.Authenticate
	if !f.web.Bind(c, &req) {
		return
	}

	user, err := f.creds.Authenticate(c.Request.Context(), req.UserName, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		f.logger.Info("login failed", zap.String("login", req.UserName), zap.String("ip", c.ClientIP()))
		f.web.Respond(c, http.StatusUnauthorized, ErrorResponse("Unauthorized", "Invalid UserName or Password"))
		return
	case errors.Is(err, ErrLockedOut):
		f.logger.Warn("login locked out", zap.String("login", req.UserName), zap.String("ip", c.ClientIP()))
		f.web.Respond(c, http.StatusUnauthorized, ErrorResponse("AccountLocked", "Account temporarily locked due to too many failed attempts"))
		return
	case err != nil:
		f.logger.Error("login error", zap.Error(err))
		f.web.Respond(c, http.StatusInternalServerError, ErrorResponse("Exception", err.Error()))
		return
	}

	ctx := c.Request.Context()
	// a login always starts a fresh session
	if old := SessionID(c); old != "" {
		if err := f.sessions.Remove(ctx, old); err != nil {
			f.logger.Warn("failed to drop previous session", zap.Error(err))
		}
	}
	session := NewUserSession(NewSessionID(), user, CredentialsProviderName)
	if err := f.sessions.Save(ctx, session, req.RememberMe); err != nil {
		f.logger.Error("failed to save session", zap.Error(err))
		f.web.Respond(c, http.StatusInternalServerError, ErrorResponse("Exception", err.Error()))
		return
	}
	f.setSessionCookies(c, session.ID, req.RememberMe)
	f.logger.Info("login", zap.String("user", user.Username), zap.Bool("remember_me", req.RememberMe))

	referrer := safeRedirect(continueParam(c, req.Continue))
	if f.web.WantsHTML(c) {
		if referrer == "" {
			referrer = f.host.DefaultRedirectPath
		}
		if referrer != "" {
			c.Redirect(http.StatusFound, referrer)
			return
		}
	}
	f.web.Respond(c, http.StatusOK, authResponse(session, referrer))
}

// handleLogout drops the session and its cookies
func (f *Feature) handleLogout(c *gin.Context) {
	if id := SessionID(c); id != "" {
		if err := f.sessions.Remove(c.Request.Context(), id); err != nil {
			f.logger.Warn("failed to remove session", zap.Error(err))
		}
	}
	f.clearSessionCookies(c)

	referrer := safeRedirect(continueParam(c, ""))
	if f.web.WantsHTML(c) {
		if referrer == "" {
			referrer = f.host.DefaultRedirectPath
		}
		if referrer != "" {
			c.Redirect(http.StatusFound, referrer)
			return
		}
	}
	f.web.Respond(c, http.StatusOK, models.AuthenticateResponse{ReferrerURL: referrer})
}

func authResponse(s *models.AuthUserSession, referrer string) models.AuthenticateResponse {
	return models.AuthenticateResponse{
		UserID:      s.UserAuthID,
		SessionID:   s.ID,
		UserName:    s.UserName,
		DisplayName: s.DisplayName,
		ReferrerURL: referrer,
	}
}

// continueParam picks the post login target from the request
func continueParam(c *gin.Context, fromBody string) string {
	for _, v := range []string{fromBody, c.Query("continue"), c.Query("redirect"), c.PostForm("continue"), c.PostForm("redirect")} {
		if v != "" {
			return v
		}
	}
	return ""
}

// safeRedirect only allows local absolute paths
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return ""
	}
	return target
}
