package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
	"github.com/petermazzocco/go-image-host/internal/config"
)

const sessionMaxAge = 86400 * 30

// NewSessionStore builds the cookie store shared by gothic and the admin
// middleware.
func NewSessionStore(cfg config.AuthConfig) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.MaxAge(sessionMaxAge)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = cfg.SecureCookie
	return store
}

// Setup registers the Google provider and points gothic at store. It
// reports false when no OAuth credentials are configured.
func Setup(cfg config.AuthConfig, store sessions.Store) bool {
	gothic.Store = store
	if cfg.GoogleKey == "" || cfg.GoogleSecret == "" {
		return false
	}
	goth.UseProviders(google.New(cfg.GoogleKey, cfg.GoogleSecret, cfg.CallbackURL, "email", "profile"))
	return true
}

// SignIn records the admin in the session.
func SignIn(w http.ResponseWriter, r *http.Request, store sessions.Store, admin Admin) error {
	session, err := store.Get(r, SessionName)
	if err != nil && session == nil {
		return err
	}
	session.Options.MaxAge = sessionMaxAge
	session.Values[emailKey] = admin.Email
	session.Values[nameKey] = admin.Name
	return session.Save(r, w)
}

// SignOut expires the session cookie.
func SignOut(w http.ResponseWriter, r *http.Request, store sessions.Store) error {
	session, err := store.Get(r, SessionName)
	if err != nil && session == nil {
		return err
	}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
