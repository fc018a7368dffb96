package apiclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-outreach-web/internal/credentials"
	logctx "github.com/pribylovaa/go-outreach-web/internal/pkg/log"
)

// Имена стандартных перехватчиков.
const (
	MetadataInterceptor = "metadata"
	TimeoutInterceptor  = "timeout"
	LoggingInterceptor  = "logging"
	RefreshInterceptor  = "refresh_retry"
)

const headerRequestID = "X-Request-Id"

type requestIDKey struct{}

// WithRequestID кладёт id входящего запроса в контекст; его подхватывает WithMetadata.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom возвращает id входящего запроса из контекста.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithMetadata — добавляет в исходящий вызов заголовки:
//   - X-Request-Id (из контекста, иначе новый UUID),
//   - Authorization: Bearer <access> (из сессии запроса, если есть),
//   - User-Agent (если передан параметром).
//
// Уже выставленные на запросе заголовки не перезаписываются.
func WithMetadata(userAgent string) Interceptor {
	return func(req *http.Request, next Invoker) (*http.Response, error) {
		ctx := req.Context()

		if req.Header.Get(headerRequestID) == "" {
			rid := RequestIDFrom(ctx)
			if rid == "" {
				rid = uuid.NewString()
			}
			req.Header.Set(headerRequestID, rid)
		}

		if req.Header.Get("Authorization") == "" {
			if s, ok := credentials.FromContext(ctx); ok {
				if tok := s.AccessToken(); tok != "" {
					req.Header.Set("Authorization", "Bearer "+tok)
				}
			}
		}

		if userAgent != "" && req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", userAgent)
		}

		return next(req)
	}
}

// WithTimeout навешивает таймаут d на исходящий вызов, если у контекста
// ещё нет дедлайна. d <= 0 — без изменений.
//
// Тело ответа читается уже после возврата из перехватчика, поэтому cancel
// вызывается при закрытии тела, а не по выходу из функции.
func WithTimeout(d time.Duration) Interceptor {
	return func(req *http.Request, next Invoker) (*http.Response, error) {
		if d <= 0 {
			return next(req)
		}
		if _, ok := req.Context().Deadline(); ok {
			return next(req)
		}

		ctx, cancel := context.WithTimeout(req.Context(), d)
		resp, err := next(req.WithContext(ctx))
		if err != nil || resp == nil || resp.Body == nil {
			cancel()
			return resp, err
		}

		resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// Logging — одна итоговая запись на исходящий вызов: msg="api", status, dur.
// Пишет в request-scoped логгер входящего запроса; base — только для вызовов
// вне HTTP-запроса. Логгер с полями request_id/method/path кладётся в
// контекст вызова. Тело и заголовки авторизации не логируются.
func Logging(base *slog.Logger) Interceptor {
	return func(req *http.Request, next Invoker) (*http.Response, error) {
		start := time.Now()

		l := logctx.FromOr(req.Context(), base).With(
			slog.String("request_id", req.Header.Get(headerRequestID)),
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
		)
		req = req.WithContext(logctx.Into(req.Context(), l))

		resp, err := next(req)

		attrs := []slog.Attr{slog.Duration("dur", time.Since(start))}
		lvl := slog.LevelInfo
		switch {
		case err != nil:
			lvl = slog.LevelWarn
			attrs = append(attrs, slog.String("err", err.Error()))
		case resp != nil:
			attrs = append(attrs, slog.Int("status", resp.StatusCode))
			if resp.StatusCode >= http.StatusInternalServerError {
				lvl = slog.LevelWarn
			}
		}
		l.LogAttrs(req.Context(), lvl, "api", attrs...)

		return resp, err
	}
}
