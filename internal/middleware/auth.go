package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
)

// TokenParser validates an access token and returns the user id it carries.
type TokenParser interface {
	ParseToken(token string) (int64, error)
}

// JWTAuth requires a valid Bearer token and puts the user id into the
// request context. WebSocket clients cannot set headers from the browser,
// so a token query parameter is accepted as a fallback.
func JWTAuth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			} else if q := r.URL.Query().Get("token"); q != "" {
				token = q
			}
			if token == "" {
				unauthorized(w, "missing token")
				return
			}
			userID, err := parser.ParseToken(token)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
