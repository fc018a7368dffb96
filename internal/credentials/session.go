package credentials

import (
	"context"
	"net/http"
	"sync"

	"github.com/pribylovaa/go-outreach-web/internal/models"
)

// Session — учётные данные одного входящего запроса.
// Через неё пайплайн клиента API берёт bearer-токен, а при тихом обновлении
// ротирует пару: новые cookie сразу пишутся в ответ.
//
// Безопасна для конкурентного использования внутри одного запроса.
type Session struct {
	mu          sync.Mutex
	jar         Jar
	w           http.ResponseWriter
	policy      Policy
	invalidated bool
}

// NewSession связывает учётные данные запроса с его ResponseWriter.
func NewSession(w http.ResponseWriter, r *http.Request, policy Policy) *Session {
	return &Session{jar: Read(r), w: w, policy: policy}
}

// AccessToken — текущий access-токен (пустой, если его нет или сессия сброшена).
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.jar.Access
}

// RefreshToken — текущий refresh-токен.
func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.jar.Refresh
}

// Rotate заменяет пару токенов и пишет обе cookie в ответ.
func (s *Session) Rotate(pair models.TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jar.Access = pair.AccessToken
	s.jar.Refresh = pair.RefreshToken
	s.invalidated = false
	if s.w != nil {
		s.policy.WritePair(s.w, pair)
	}
}

// Invalidate сбрасывает сессию и очищает все три cookie. Повторный вызов — no-op.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.invalidated {
		return
	}

	s.invalidated = true
	s.jar = Jar{}
	if s.w != nil {
		s.policy.ClearAll(s.w)
	}
}

// Invalidated — сессия была сброшена в рамках этого запроса.
func (s *Session) Invalidated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.invalidated
}

type sessionKey struct{}

// Into кладёт сессию в контекст.
func Into(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext достаёт сессию запроса.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
