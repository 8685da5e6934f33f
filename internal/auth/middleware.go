// Package auth guards the admin API with a goth-backed session and an e-mail
// allowlist.
package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/petermazzocco/go-image-host/internal/config"
	"go.uber.org/zap"
)

// SessionName is the cookie that carries the signed-in admin. It must differ
// from gothic's own session, which gothic expires at the end of every
// callback.
const SessionName = "imagehost_admin"

const (
	emailKey = "email"
	nameKey  = "name"
)

type contextKey struct{}

// Admin is the signed-in user attached to the request context.
type Admin struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func AdminFromContext(ctx context.Context) (Admin, bool) {
	admin, ok := ctx.Value(contextKey{}).(Admin)
	return admin, ok
}

func WithAdmin(ctx context.Context, admin Admin) context.Context {
	return context.WithValue(ctx, contextKey{}, admin)
}

// AdminMiddleware lets a request through only when its session belongs to an
// allowlisted e-mail address.
func AdminMiddleware(store sessions.Store, cfg config.AuthConfig, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := store.Get(r, SessionName)
			if err != nil {
				log.Debug("invalid session cookie", zap.Error(err))
				notAuthorized(w)
				return
			}

			email, _ := session.Values[emailKey].(string)
			if email == "" {
				notAuthorized(w)
				return
			}
			if !cfg.IsAdmin(email) {
				log.Warn("non-admin session rejected", zap.String("email", email))
				notAuthorized(w)
				return
			}

			name, _ := session.Values[nameKey].(string)
			ctx := WithAdmin(r.Context(), Admin{Email: email, Name: name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func notAuthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "not authorized"})
}
