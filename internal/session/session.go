// session — контекст сессии: кто сейчас аутентифицирован.
//
// Состояние неизменяемо: провайдер заменяет его целиком при пересчёте и
// отдаёт потребителям только копии (State) и подписку на чтение (Subscribe).
// Аутентифицированность — локальная проверка наличия обеих cookie,
// без обращения к API.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/pribylovaa/go-outreach-web/internal/apiclient"
	"github.com/pribylovaa/go-outreach-web/internal/credentials"
	"github.com/pribylovaa/go-outreach-web/internal/metrics"
	"github.com/pribylovaa/go-outreach-web/internal/models"
	logctx "github.com/pribylovaa/go-outreach-web/internal/pkg/log"
)

// State — снимок состояния сессии.
type State struct {
	IsAuthenticated bool            `json:"is_authenticated"`
	User            *models.Profile `json:"user"`
	Loading         bool            `json:"loading"`
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Provider владеет состоянием сессии одной загрузки приложения.
type Provider struct {
	state atomic.Pointer[State]

	mountOnce sync.Once

	mu   sync.Mutex
	subs map[chan State]struct{}

	pipeline  *apiclient.Pipeline
	refresher apiclient.Refresher
	metrics   *metrics.Metrics
}

// NewProvider создаёт провайдер в состоянии загрузки.
// pipeline и refresher могут быть nil: тогда тихое обновление не ставится.
func NewProvider(pipeline *apiclient.Pipeline, refresher apiclient.Refresher, m *metrics.Metrics) *Provider {
	p := &Provider{
		subs:      make(map[chan State]struct{}),
		pipeline:  pipeline,
		refresher: refresher,
		metrics:   m,
	}
	p.state.Store(&State{Loading: true})

	return p
}

// Mount вычисляет состояние по cookie и ставит перехватчик тихого обновления.
// Выполняется один раз за жизнь провайдера; повторные вызовы возвращают текущее состояние.
func (p *Provider) Mount(ctx context.Context, jar credentials.Jar) State {
	p.mountOnce.Do(func() {
		if p.pipeline != nil && p.refresher != nil {
			installed := p.pipeline.UseOnce(apiclient.RefreshInterceptor, func() apiclient.Interceptor {
				return apiclient.RefreshRetry(p.refresher, p.metrics)
			})
			if installed {
				logctx.From(ctx).Info("session_refresh_installed")
			}
		}

		next := State{IsAuthenticated: jar.Complete()}
		if u, ok := jar.Profile(); ok {
			next.User = u
		} else if jar.User != "" {
			logctx.From(ctx).Debug("session_user_cookie_malformed")
		}

		p.publish(next)
		logctx.From(ctx).Debug("session_mounted",
			slog.Bool("authenticated", next.IsAuthenticated),
			slog.Bool("has_user", next.User != nil),
		)
	})

	return p.State()
}

// State — копия текущего состояния.
func (p *Provider) State() State {
	return p.state.Load().clone()
}

// Subscribe возвращает канал последних состояний (сразу содержит текущее)
// и функцию отписки. Медленный подписчик видит только последнее значение.
func (p *Provider) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	p.mu.Lock()
	p.subs[ch] = struct{}{}
	ch <- p.State()
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, ch)
			close(ch)
			p.mu.Unlock()
		})
	}

	return ch, cancel
}

func (p *Provider) publish(next State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.Store(&next)

	for ch := range p.subs {
		// Вытесняем непрочитанное значение.
		select {
		case <-ch:
		default:
		}
		ch <- next.clone()
	}
}

type providerKey struct{}

// Into кладёт провайдер в контекст.
func Into(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// ProviderFrom достаёт провайдер запроса.
func ProviderFrom(ctx context.Context) (*Provider, bool) {
	p, ok := ctx.Value(providerKey{}).(*Provider)
	return p, ok && p != nil
}

// FromContext — текущее состояние сессии запроса.
// Без провайдера — неаутентифицированное состояние после загрузки.
func FromContext(ctx context.Context) State {
	if p, ok := ProviderFrom(ctx); ok {
		return p.State()
	}

	return State{}
}

// Middleware монтирует провайдер на каждый входящий запрос.
func Middleware(pipeline *apiclient.Pipeline, refresher apiclient.Refresher, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := NewProvider(pipeline, refresher, m)
			p.Mount(r.Context(), credentials.Read(r))

			next.ServeHTTP(w, r.WithContext(Into(r.Context(), p)))
		})
	}
}
