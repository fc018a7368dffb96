package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-outreach-web/internal/apiclient"
)

// maxRequestIDLen — длиннее входящий id не принимаем.
const maxRequestIDLen = 128

// RequestID обеспечивает наличие X-Request-Id:
//  1. берёт заголовок X-Request-Id, если он есть и безопасен для логов;
//  2. иначе генерирует UUID без дефисов (32 hex-символа);
//  3. кладёт id в Response Header, Request Header и в контекст через
//     apiclient.WithRequestID: его читает metadata-перехватчик клиента API,
//     так что один id проходит браузер -> web-edge -> удалённый API.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if !validRequestID(id) {
				id = genID()
				// errors.WriteError берёт id из заголовка запроса.
				r.Header.Set("X-Request-Id", id)
			}
			w.Header().Set("X-Request-Id", id)

			ctx := apiclient.WithRequestID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func genID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// validRequestID пропускает только [A-Za-z0-9._-], чтобы id нельзя было
// использовать для подделки строк лога.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}

	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}

	return true
}
