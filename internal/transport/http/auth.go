package http

import (
	"context"
	"net/http"
	"strings"

	"auth-service/internal/signer"
)

type claimsCtxKey struct{}

// RequireAuth проверяет заголовок Authorization: Bearer <token> и кладёт
// проверенные claims в контекст запроса. Невалидный или истёкший токен -> 401.
func (s *AuthServer) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		claims, err := s.service.ValidateToken(r.Context(), strings.TrimSpace(token))
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func withClaims(ctx context.Context, claims *signer.Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, claims)
}

func claimsFromContext(ctx context.Context) (*signer.Claims, bool) {
	claims, ok := ctx.Value(claimsCtxKey{}).(*signer.Claims)
	return claims, ok
}
