// edgeguard — проверка учётных данных на входе в защищённые маршруты.
//
// Для каждого запроса под защищённым префиксом:
//   - нет ни access, ни refresh cookie -> редирект на логин, токены очищаются,
//     обновление не вызывается;
//   - есть refresh cookie -> ровно один вызов обновления; успех пишет новую
//     пару в ответ и пропускает запрос дальше уже со свежими cookie, любая
//     ошибка -> редирект на логин и очистка всех трёх cookie;
//   - есть только access cookie -> обновить нечем, как при ошибке обновления.
//
// Результат не кэшируется: каждый защищённый запрос платит одним обращением к API.
package edgeguard

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/pribylovaa/go-outreach-web/internal/apiclient"
	"github.com/pribylovaa/go-outreach-web/internal/credentials"
	"github.com/pribylovaa/go-outreach-web/internal/metrics"
	logctx "github.com/pribylovaa/go-outreach-web/internal/pkg/log"
)

// NextParam — параметр логина с путём, куда вернуться.
const NextParam = "next"

// Options — зависимости guard.
type Options struct {
	Prefix    string
	LoginPath string
	Refresher apiclient.Refresher
	Policy    credentials.Policy
	Metrics   *metrics.Metrics
}

type Guard struct {
	prefix    string
	loginPath string
	refresher apiclient.Refresher
	policy    credentials.Policy
	metrics   *metrics.Metrics
}

func New(opts Options) *Guard {
	prefix := strings.TrimRight(opts.Prefix, "/")
	if prefix == "" {
		prefix = "/dashboard"
	}

	login := opts.LoginPath
	if login == "" {
		login = "/auth/login"
	}

	return &Guard{
		prefix:    prefix,
		loginPath: login,
		refresher: opts.Refresher,
		policy:    opts.Policy,
		metrics:   opts.Metrics,
	}
}

// Matches — путь лежит под защищённым префиксом: совпадает с ним
// или продолжается после "/". "/dashboards" под "/dashboard" не попадает.
// Страница логина не защищается никогда: она цель каждого редиректа.
func (g *Guard) Matches(path string) bool {
	if path == g.loginPath {
		return false
	}

	return path == g.prefix || strings.HasPrefix(path, g.prefix+"/")
}

// Middleware оборачивает обработчик проверкой guard.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Matches(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if fresh, ok := g.check(w, r); ok {
			next.ServeHTTP(w, fresh)
		}
	})
}

// check возвращает запрос для продолжения и true, либо уже записал редирект.
func (g *Guard) check(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	log := logctx.From(r.Context()).With(slog.String("path", r.URL.Path))
	jar := credentials.Read(r)

	if jar.Empty() {
		g.policy.ClearTokens(w)
		g.metrics.GuardDecision(metrics.GuardRedirectMissing)
		log.Info("edge_guard_redirect_missing")
		g.redirect(w, r)
		return nil, false
	}

	if jar.Refresh == "" {
		g.reject(w, r, log, "no refresh credential")
		return nil, false
	}

	pair, err := g.refresher.Refresh(r.Context(), jar.Refresh)
	if err != nil {
		g.reject(w, r, log, err.Error())
		return nil, false
	}

	g.policy.WritePair(w, pair)
	g.metrics.GuardDecision(metrics.GuardRenewed)
	log.Debug("edge_guard_renewed")

	return credentials.WithPair(r, pair), true
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, log *slog.Logger, reason string) {
	g.policy.ClearAll(w)
	g.metrics.GuardDecision(metrics.GuardRedirectRejected)
	log.Info("edge_guard_refresh_failed", slog.String("reason", reason))
	g.redirect(w, r)
}

func (g *Guard) redirect(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, LoginURL(g.loginPath, r.URL.RequestURI()), http.StatusFound)
}

// LoginURL — адрес логина с возвратом на next.
func LoginURL(loginPath, next string) string {
	if next == "" || next == "/" {
		return loginPath
	}

	return loginPath + "?" + url.Values{NextParam: {next}}.Encode()
}

// SafeNext оставляет только локальные пути вида "/...", иначе fallback.
// "//host" и "/\host" браузер трактует как внешний адрес.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") ||
		strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}

	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}

	return next
}
