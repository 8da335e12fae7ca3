package middleware

import (
	"net/http"

	"cediman-be/internal/auth"
	"cediman-be/internal/logger"
	"cediman-be/internal/utils"

	"go.uber.org/zap"
)

// Auth verifies session tokens. With no secret configured every request is
// anonymous and role checks are skipped.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

func (a *Auth) Enabled() bool {
	return len(a.secret) > 0
}

// Middleware places the caller's identity in the request context. A request
// without a token passes through anonymously; a bad token is rejected.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := auth.ExtractAccessToken(r)
		if tokenStr == "" || !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := auth.ParseToken(tokenStr, a.secret)
		if err != nil {
			logger.FromCtx(r.Context()).Warn("rejected token",
				zap.String("layer", "middleware"),
				zap.Error(err),
			)
			utils.WriteJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := utils.SetUserContext(r.Context(), claims.UserID, claims.Email, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !a.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := utils.GetUserIDFromContext(r.Context()); !ok {
				utils.WriteJSONError(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			if utils.GetUserRoleFromContext(r.Context()) != role {
				utils.WriteJSONError(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
