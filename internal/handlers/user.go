package handlers

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth/gothic"
	"github.com/petermazzocco/go-image-host/internal/auth"
	"github.com/petermazzocco/go-image-host/internal/config"
	"go.uber.org/zap"
)

// AuthHandler signs admins in through an OAuth provider.
type AuthHandler struct {
	store sessions.Store
	cfg   config.AuthConfig
	log   *zap.Logger
}

func NewAuthHandler(store sessions.Store, cfg config.AuthConfig, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{store: store, cfg: cfg, log: log}
}

func (a *AuthHandler) Begin(w http.ResponseWriter, r *http.Request) {
	if user, err := gothic.CompleteUserAuth(w, r); err == nil {
		writeJSON(w, http.StatusOK, auth.Admin{Email: user.Email, Name: user.Name})
		return
	}
	gothic.BeginAuthHandler(w, r)
}

func (a *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	user, err := gothic.CompleteUserAuth(w, r)
	if err != nil {
		a.log.Warn("oauth callback failed", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	if !a.cfg.IsAdmin(user.Email) {
		a.log.Warn("login from non-admin account", zap.String("email", user.Email))
		writeError(w, http.StatusUnauthorized, "not authorized")
		return
	}

	if err := auth.SignIn(w, r, a.store, auth.Admin{Email: user.Email, Name: user.Name}); err != nil {
		a.log.Error("failed to save session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save session")
		return
	}

	a.log.Info("admin signed in", zap.String("email", user.Email))
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

func (a *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	_ = gothic.Logout(w, r)
	if err := auth.SignOut(w, r, a.store); err != nil {
		a.log.Warn("failed to clear session", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the signed-in admin.
func (a *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	admin, ok := auth.AdminFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authorized")
		return
	}
	writeJSON(w, http.StatusOK, admin)
}
