package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/petermazzocco/go-image-host/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuth = config.AuthConfig{
	SessionSecret: "0123456789abcdef0123456789abcdef",
	Admins:        []string{"Admin@Example.com"},
}

// sessionCookies signs admin in and returns the cookies the browser would
// send back.
func sessionCookies(t *testing.T, store sessions.Store, admin Admin) []*http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
	require.NoError(t, SignIn(rec, req, store, admin))
	return rec.Result().Cookies()
}

func protected(t *testing.T, store sessions.Store, cookies []*http.Cookie) (*httptest.ResponseRecorder, *Admin) {
	t.Helper()

	var seen *Admin
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := AdminFromContext(r.Context())
		require.True(t, ok)
		seen = &admin
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	AdminMiddleware(store, testAuth, nil)(next).ServeHTTP(rec, req)
	return rec, seen
}

func TestAdminMiddleware_AllowsAdmin(t *testing.T) {
	store := NewSessionStore(testAuth)
	cookies := sessionCookies(t, store, Admin{Email: "admin@example.com", Name: "Admin"})

	rec, admin := protected(t, store, cookies)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, admin)
	assert.Equal(t, "admin@example.com", admin.Email)
	assert.Equal(t, "Admin", admin.Name)
}

func TestAdminMiddleware_RejectsMissingSession(t *testing.T) {
	store := NewSessionStore(testAuth)

	rec, admin := protected(t, store, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"not authorized"}`, rec.Body.String())
	assert.Nil(t, admin)
}

func TestAdminMiddleware_RejectsNonAdmin(t *testing.T) {
	store := NewSessionStore(testAuth)
	cookies := sessionCookies(t, store, Admin{Email: "someone@example.com"})

	rec, admin := protected(t, store, cookies)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, admin)
}

func TestAdminMiddleware_RejectsForeignCookie(t *testing.T) {
	other := NewSessionStore(config.AuthConfig{SessionSecret: "another-secret-another-secret-xx"})
	cookies := sessionCookies(t, other, Admin{Email: "admin@example.com"})

	rec, admin := protected(t, NewSessionStore(testAuth), cookies)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, admin)
}

func TestSignOut(t *testing.T) {
	store := NewSessionStore(testAuth)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/logout/google", nil)
	require.NoError(t, SignOut(rec, req, store))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestSignIn_CookieAttributes(t *testing.T) {
	cfg := testAuth
	cfg.SecureCookie = true
	store := NewSessionStore(cfg)

	cookies := sessionCookies(t, store, Admin{Email: "admin@example.com"})
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, SessionName, c.Name)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, sessionMaxAge, c.MaxAge)
}

func TestSetup_WithoutCredentials(t *testing.T) {
	assert.False(t, Setup(config.AuthConfig{}, NewSessionStore(testAuth)))
}
