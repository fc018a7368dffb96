package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/pribylovaa/go-outreach-web/internal/credentials"
	"github.com/pribylovaa/go-outreach-web/internal/metrics"
	"github.com/pribylovaa/go-outreach-web/internal/models"
	logctx "github.com/pribylovaa/go-outreach-web/internal/pkg/log"
)

//go:generate mockgen -destination=../../mocks/mock_refresher.go -package=mocks github.com/pribylovaa/go-outreach-web/internal/apiclient Refresher

// Refresher обменивает refresh-токен на новую пару.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

type skipRefreshKey struct{}

// skipRefresh помечает вызов, который RefreshRetry не перехватывает:
// само обновление, логин, логаут и приём приглашения (там 401 — про
// токен приглашения, а не про сессию).
func skipRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipRefreshKey{}, true)
}

func refreshSkipped(ctx context.Context) bool {
	v, _ := ctx.Value(skipRefreshKey{}).(bool)
	return v
}

// RefreshRetry — тихое обновление учётных данных.
//
// На 401 от любого вызова, кроме помеченных skipRefresh:
//  1. обменивает refresh-токен сессии запроса на новую пару (один раз);
//  2. ротирует сессию, что пишет обе cookie в ответ;
//  3. повторяет исходный запрос ровно один раз с новым access-токеном.
//
// Если обновление не удалось, сессия сбрасывается (все три cookie очищаются)
// и возвращается ErrSessionExpired. Второго повтора нет.
//
// Конкурентные 401 в рамках одной сессии делят одно обновление: refresh-токен
// одноразовый, второй обмен того же токена API отклонит.
func RefreshRetry(refresher Refresher, m *metrics.Metrics) Interceptor {
	var group singleflight.Group

	return func(req *http.Request, next Invoker) (*http.Response, error) {
		const op = "apiclient.RefreshRetry"

		ctx := req.Context()
		if refreshSkipped(ctx) {
			return next(req)
		}

		sess, hasSession := credentials.FromContext(ctx)
		if !hasSession {
			return next(req)
		}

		sentWith := sess.AccessToken()

		resp, err := next(req)
		if err != nil || resp.StatusCode != http.StatusUnauthorized {
			return resp, err
		}

		log := logctx.From(ctx)

		// Повтор требует перечитать тело.
		if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
			return resp, nil
		}

		drain(resp)

		// Обновляем, только если сессию ещё не ротировал параллельный вызов.
		if cur := sess.AccessToken(); cur == "" || cur == sentWith {
			refreshToken := sess.RefreshToken()
			if refreshToken == "" {
				sess.Invalidate()
				m.TokenRefresh(metrics.RefreshFailed)
				log.Info("api_refresh_skipped_no_token")
				return nil, fmt.Errorf("%s: %w", op, ErrSessionExpired)
			}

			v, rerr, shared := group.Do(refreshToken, func() (any, error) {
				return refresher.Refresh(skipRefresh(ctx), refreshToken)
			})
			if rerr != nil {
				sess.Invalidate()
				m.TokenRefresh(metrics.RefreshFailed)
				log.Info("api_refresh_failed", slog.String("err", rerr.Error()))
				return nil, fmt.Errorf("%s: %w", op, errors.Join(ErrSessionExpired, rerr))
			}

			pair := v.(models.TokenPair)
			if shared {
				m.TokenRefresh(metrics.RefreshShared)
			} else {
				m.TokenRefresh(metrics.RefreshRotated)
			}
			if sess.AccessToken() != pair.AccessToken {
				sess.Rotate(pair)
			}
			log.Debug("api_refresh_rotated", slog.Bool("shared", shared))
		}

		retry, err := replay(req, sess.AccessToken())
		if err != nil {
			return nil, fmt.Errorf("%s: replay: %w", op, err)
		}

		return next(retry)
	}
}

// replay готовит копию запроса с новым bearer-токеном и перечитанным телом.
func replay(req *http.Request, access string) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}

	out.Header.Set("Authorization", "Bearer "+access)
	return out, nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
