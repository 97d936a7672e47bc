package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-while/checkweb/internal/cache"
	"github.com/go-while/checkweb/internal/config"
	"github.com/go-while/checkweb/internal/database"
	"github.com/go-while/checkweb/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memStore is an in memory UserStore
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	attempts map[string]int
}

func newMemStore(t *testing.T, users ...*models.User) *memStore {
	t.Helper()
	s := &memStore{users: map[string]*models.User{}, attempts: map[string]int{}}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

func (s *memStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		cp := *u
		cp.LoginAttempts = s.attempts[u.Username]
		return &cp, nil
	}
	return nil, database.ErrUserNotFound
}

func (s *memStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	var name string
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			name = u.Username
		}
	}
	s.mu.Unlock()
	if name == "" {
		return nil, database.ErrUserNotFound
	}
	return s.GetUserByUsername(ctx, name)
}

func (s *memStore) resolve(login string) string {
	for _, u := range s.users {
		if u.Username == login || strings.EqualFold(u.Email, login) {
			return u.Username
		}
	}
	return ""
}

func (s *memStore) IncrementLoginAttempts(_ context.Context, login string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name := s.resolve(login); name != "" {
		s.attempts[name]++
	}
	return nil
}

func (s *memStore) ResetLoginAttempts(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == userID {
			s.attempts[u.Username] = 0
		}
	}
	return nil
}

func (s *memStore) IsUserLockedOut(_ context.Context, login string, maxAttempts int, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := s.resolve(login)
	return name != "" && maxAttempts > 0 && s.attempts[name] >= maxAttempts, nil
}

func testUser(t *testing.T) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           7,
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: string(hash),
		DisplayName:  "Alice",
		Roles:        []string{"Admin"},
	}
}

// jsonHost answers in JSON and treats Accept: text/html as an HTML caller
type jsonHost struct{}

func (jsonHost) Bind(c *gin.Context, dto any) bool {
	if err := c.ShouldBind(dto); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("SerializationException", err.Error()))
		return false
	}
	return true
}

func (jsonHost) Respond(c *gin.Context, status int, dto any) {
	c.JSON(status, dto)
}

func (jsonHost) WantsHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}

type fixture struct {
	router  *gin.Engine
	feature *Feature
	store   *memStore
	cache   cache.Client
}

func newFixture(t *testing.T, host config.HostConfig) *fixture {
	t.Helper()
	mc := cache.NewMemoryClient(100, time.Hour, 0)
	t.Cleanup(func() { mc.Close() })
	return newFixtureWithCache(t, host, mc)
}

func newFixtureWithCache(t *testing.T, host config.HostConfig, client cache.Client) *fixture {
	t.Helper()
	store := newMemStore(t, testUser(t))
	sessions := NewSessionStore(client, 3*time.Hour, 14*24*time.Hour)
	feature := NewFeature(sessions, NewCredentialsProvider(store, 5, 15*time.Minute), host, jsonHost{}, nil)

	r := gin.New()
	feature.Register(r)
	r.GET("/session", feature.Authenticate(), func(c *gin.Context) {
		c.JSON(http.StatusOK, CurrentSession(c))
	})
	return &fixture{router: r, feature: feature, store: store, cache: client}
}

// recordingCache remembers the ttl of every write and can run a hook after reads
type recordingCache struct {
	cache.Client

	mu       sync.Mutex
	ttls     map[string]time.Duration
	writes   int
	afterGet func(key string)
}

func newRecordingCache(t *testing.T) *recordingCache {
	t.Helper()
	mc := cache.NewMemoryClient(100, time.Hour, 0)
	t.Cleanup(func() { mc.Close() })
	return &recordingCache{Client: mc, ttls: map[string]time.Duration{}}
}

func (r *recordingCache) record(key string, ttl time.Duration) {
	r.mu.Lock()
	r.ttls[key] = ttl
	r.writes++
	r.mu.Unlock()
}

func (r *recordingCache) ttl(key string) (time.Duration, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttls[key], r.writes
}

func (r *recordingCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	found, err := r.Client.Get(ctx, key, dst)
	r.mu.Lock()
	hook := r.afterGet
	r.afterGet = nil
	r.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return found, err
}

func (r *recordingCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	r.record(key, ttl)
	return r.Client.Set(ctx, key, value, ttl)
}

func (r *recordingCache) Replace(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	ok, err := r.Client.Replace(ctx, key, value, ttl)
	if ok {
		r.record(key, ttl)
	}
	return ok, err
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(t *testing.T, rememberMe bool) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"username":"alice","password":"secret123","remember_me":` + map[bool]string{true: "true", false: "false"}[rememberMe] + `}`
	req := httptest.NewRequest(http.MethodPost, "/auth/credentials", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return w
}

func cookieByName(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSessionStore(t *testing.T) {
	mc := cache.NewMemoryClient(10, time.Hour, 0)
	defer mc.Close()
	store := NewSessionStore(mc, time.Hour, 24*time.Hour)
	ctx := context.Background()

	_, err := store.Get(ctx, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	s := &models.AuthUserSession{ID: NewSessionID(), UserName: "bob", IsAuthenticated: true}
	require.NoError(t, store.Save(ctx, s, false))
	assert.False(t, s.CreatedAt.IsZero())

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.UserName)

	// stored under the well known key
	var raw models.AuthUserSession
	found, err := mc.Get(ctx, "urn:iauthsession:"+s.ID, &raw)
	require.NoError(t, err)
	assert.True(t, found)

	anon := &models.AuthUserSession{ID: NewSessionID()}
	require.NoError(t, store.Save(ctx, anon, false))
	_, err = store.Get(ctx, anon.ID)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, store.Remove(ctx, s.ID))
	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	assert.Error(t, store.Save(ctx, &models.AuthUserSession{}, false))
}

func TestSessionStoreTouch(t *testing.T) {
	rc := newRecordingCache(t)
	store := NewSessionStore(rc, time.Hour, 24*time.Hour)
	ctx := context.Background()

	s := &models.AuthUserSession{ID: NewSessionID(), UserName: "bob", IsAuthenticated: true}
	require.NoError(t, store.Save(ctx, s, true))
	assert.True(t, s.Perm)

	// the remember-me choice travels with the stored session
	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.Perm)
	require.NoError(t, store.Touch(ctx, got))
	ttl, _ := rc.ttl(SessionKey(s.ID))
	assert.Equal(t, 24*time.Hour, ttl)

	// a removed session is not written back
	require.NoError(t, store.Remove(ctx, s.ID))
	assert.ErrorIs(t, store.Touch(ctx, got), ErrNotAuthenticated)
	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	assert.ErrorIs(t, store.Touch(ctx, &models.AuthUserSession{}), ErrNotAuthenticated)
}

func TestCredentialsProvider(t *testing.T) {
	store := newMemStore(t, testUser(t))
	p := NewCredentialsProvider(store, 5, 15*time.Minute)
	ctx := context.Background()

	user, err := p.Authenticate(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)

	user, err = p.Authenticate(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = p.Authenticate(ctx, "nobody", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.Authenticate(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	for i := 0; i < 5; i++ {
		_, err = p.Authenticate(ctx, "alice", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = p.Authenticate(ctx, "alice", "secret123")
	assert.ErrorIs(t, err, ErrLockedOut)
}

func TestCredentialsResetsAttemptsOnSuccess(t *testing.T) {
	store := newMemStore(t, testUser(t))
	p := NewCredentialsProvider(store, 5, 15*time.Minute)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = p.Authenticate(ctx, "alice", "wrong")
	}
	_, err := p.Authenticate(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, 0, store.attempts["alice"])
}

func TestAuthenticateRejectsAnonymousJSON(t *testing.T) {
	f := newFixture(t, config.NewDefaultConfig().Host)

	w := f.do(httptest.NewRequest(http.MethodGet, "/session", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Unauthorized", resp.ResponseStatus.ErrorCode)
}

func TestAuthenticateRedirectsAnonymousHTML(t *testing.T) {
	f := newFixture(t, config.NewDefaultConfig().Host)

	req := httptest.NewRequest(http.MethodGet, "/session?x=1", nil)
	req.Header.Set("Accept", "text/html")
	w := f.do(req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirect="+url.QueryEscape("/session?x=1"), w.Header().Get("Location"))

	host := config.NewDefaultConfig().Host
	host.AddRedirectParamsToQueryString = false
	f = newFixture(t, host)
	w = f.do(req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestLoginThenSession(t *testing.T) {
	f := newFixture(t, config.NewDefaultConfig().Host)

	w := f.login(t, false)
	var resp models.AuthenticateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "7", resp.UserID)
	assert.Equal(t, "alice", resp.UserName)
	require.NotEmpty(t, resp.SessionID)

	ssid := cookieByName(w, SessionCookie)
	require.NotNil(t, ssid)
	assert.Equal(t, resp.SessionID, ssid.Value)
	assert.True(t, ssid.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, ssid.SameSite)
	assert.Equal(t, "temp", cookieByName(w, SessionOptCookie).Value)

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.AddCookie(ssid)
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	var session models.AuthUserSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.Equal(t, "alice", session.UserName)
	assert.Equal(t, "Alice", session.DisplayName)
	assert.True(t, session.IsAuthenticated)
	assert.Equal(t, []string{"Admin"}, session.Roles)

	// header works as well
	req = httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set(SessionHeader, resp.SessionID)
	assert.Equal(t, http.StatusOK, f.do(req).Code)

	// /auth reports the same session
	req = httptest.NewRequest(http.MethodGet, "/auth", nil)
	req.AddCookie(ssid)
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), resp.SessionID)
}

func TestRememberMeUsesPermanentCookie(t *testing.T) {
	f := newFixture(t, config.NewDefaultConfig().Host)

	w := f.login(t, true)
	pid := cookieByName(w, PermSessionCookie)
	opt := cookieByName(w, SessionOptCookie)
	require.NotNil(t, pid)
	require.NotNil(t, opt)
	assert.Equal(t, PermOption, opt.Value)
	assert.Equal(t, int((14 * 24 * time.Hour).Seconds()), pid.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.AddCookie(pid)
	req.AddCookie(opt)
	assert.Equal(t, http.StatusOK, f.do(req).Code)
}

func TestRememberMeExpirySurvivesHeaderAccess(t *testing.T) {
	rc := newRecordingCache(t)
	f := newFixtureWithCache(t, config.NewDefaultConfig().Host, rc)

	var resp models.AuthenticateResponse
	require.NoError(t, json.Unmarshal(f.login(t, true).Body.Bytes(), &resp))
	key := SessionKey(resp.SessionID)
	ttl, writes := rc.ttl(key)
	assert.Equal(t, 14*24*time.Hour, ttl)

	// no ss-opt cookie, only the header
	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set(SessionHeader, resp.SessionID)
	require.Equal(t, http.StatusOK, f.do(req).Code)

	ttl, after := rc.ttl(key)
	assert.Greater(t, after, writes, "the expiry was refreshed")
	assert.Equal(t, 14*24*time.Hour, ttl)
}

func TestLaxCookiesWithoutSameSite(t *testing.T) {
	host := config.NewDefaultConfig().Host
	host.UseSameSiteCookies = false
	f := newFixture(t, host)

	w := f.login(t, false)
	assert.Equal(t, http.SameSiteLaxMode, cookieByName(w, SessionCookie).SameSite)
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t, config.NewDefaultConfig().Host)

	req := httptest.NewRequest(http.MethodGet, "/auth/credentials?username=alice&password=nope", nil)
	w := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, cookieByName(w, SessionCookie))

	w = f.do(httptest.NewRequest(http.MethodGet, "/auth/github", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/auth", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHTMLLoginRedirectsToContinue(t *testing.T) {
	f := newFixture(t, config.NewDefaultConfig().Host)

	form := url.Values{"username": {"alice"}, "password": {"secret123"}, "continue": {"/session"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/credentials", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	w := f.do(req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/session", w.Header().Get("Location"))

	// no open redirects
	form.Set("continue", "//evil.example.com/")
	req = httptest.NewRequest(http.MethodPost, "/auth/credentials", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	w = f.do(req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestLogout(t *testing.T) {
	f := newFixture(t, config.NewDefaultConfig().Host)
	ssid := cookieByName(f.login(t, false), SessionCookie)

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	req.AddCookie(ssid)
	w := f.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, -1, cookieByName(w, SessionCookie).MaxAge)

	req = httptest.NewRequest(http.MethodGet, "/session", nil)
	req.AddCookie(ssid)
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)
}

func TestLogoutDuringRequestStaysLoggedOut(t *testing.T) {
	rc := newRecordingCache(t)
	f := newFixtureWithCache(t, config.NewDefaultConfig().Host, rc)
	ssid := cookieByName(f.login(t, false), SessionCookie)

	// the logout lands between the session lookup and its refresh
	var logoutCode int
	rc.mu.Lock()
	rc.afterGet = func(string) {
		req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
		req.AddCookie(ssid)
		logoutCode = f.do(req).Code
	}
	rc.mu.Unlock()

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.AddCookie(ssid)
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)
	assert.Equal(t, http.StatusOK, logoutCode)

	_, err := f.feature.Sessions().Get(context.Background(), ssid.Value)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSafeRedirect(t *testing.T) {
	tests := map[string]string{
		"/session":           "/session",
		"/a?b=c":             "/a?b=c",
		"":                   "",
		"http://example.com": "",
		"//example.com":      "",
		"/\\example.com":     "",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeRedirect(in), in)
	}
}

func TestValidateUsernameAndPassword(t *testing.T) {
	assert.NoError(t, ValidateUsername("alice_01"))
	assert.Error(t, ValidateUsername("al"))
	assert.Error(t, ValidateUsername("alice!"))
	assert.NoError(t, ValidatePassword("secret123"))
	assert.Error(t, ValidatePassword("short"))

	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	assert.True(t, CheckPassword("secret123", hash))
	assert.False(t, CheckPassword("secret124", hash))
}
