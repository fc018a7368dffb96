package middleware

import (
	"net/http"

	"github.com/pribylovaa/go-outreach-web/internal/credentials"
)

// Credentials читает cookie с токенами и кладёт credentials.Session в контекст.
// Через неё клиент API берёт bearer-токен, а тихое обновление пишет новые cookie
// в ответ этого же запроса.
func Credentials(policy credentials.Policy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := credentials.NewSession(w, r, policy)
			next.ServeHTTP(w, r.WithContext(credentials.Into(r.Context(), s)))
		})
	}
}
