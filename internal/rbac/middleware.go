package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/obra-ledger/obra-ledger/internal/platform/httpx"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// Middleware resolves the acting user and enforces role gates for HTTP handlers.
type Middleware struct {
	Sessions  SessionStore
	Directory Directory
	Logger    *slog.Logger
}

// Authenticate attaches the actor behind the bearer token or rejects the request.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		userID, err := m.Sessions.UserID(r.Context(), token)
		if err != nil {
			if !errors.Is(err, ErrNoSession) && m.Logger != nil {
				m.Logger.Error("rbac session lookup", slog.Any("error", err))
			}
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		actor, err := m.Directory.Lookup(r.Context(), userID)
		if err != nil {
			if errors.Is(err, shared.ErrUserNotFound) {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if m.Logger != nil {
				m.Logger.Error("rbac actor lookup", slog.Int64("user_id", userID), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireAdmin ensures the current actor holds an administrative role.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		if !actor.Role.IsAdmin() {
			httpx.RespondError(w, shared.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
