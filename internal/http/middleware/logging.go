package middleware

import (
	"log/slog"
	"net/http"
	"time"

	logctx "github.com/pribylovaa/go-outreach-web/internal/pkg/log"
)

// quietPaths — пробы и скрейп метрик логируются на Debug.
var quietPaths = map[string]struct{}{
	"/livez":   {},
	"/healthz": {},
	"/metrics": {},
}

// Logging кладёт в контекст логгер с request_id и пишет одну запись "http"
// на запрос. 5xx — Warn, пробы — Debug, остальное — Info.
func Logging(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := l
			if rid := r.Header.Get("X-Request-Id"); rid != "" {
				reqLogger = reqLogger.With(slog.String("request_id", rid))
			}
			r = r.WithContext(logctx.Into(r.Context(), reqLogger))

			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("dur", time.Since(start)),
				slog.Int("bytes", sw.count),
			}
			if loc := sw.Header().Get("Location"); loc != "" && status >= 300 && status < 400 {
				attrs = append(attrs, slog.String("location", loc))
			}

			lvl := slog.LevelInfo
			switch {
			case status >= 500:
				lvl = slog.LevelWarn
			case isQuiet(r.URL.Path):
				lvl = slog.LevelDebug
			}

			reqLogger.LogAttrs(r.Context(), lvl, "http", attrs...)
		})
	}
}

func isQuiet(path string) bool {
	_, ok := quietPaths[path]
	return ok
}
