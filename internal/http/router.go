package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/pribylovaa/go-outreach-web/internal/apiclient"
	"github.com/pribylovaa/go-outreach-web/internal/config"
	"github.com/pribylovaa/go-outreach-web/internal/credentials"
	"github.com/pribylovaa/go-outreach-web/internal/edgeguard"
	"github.com/pribylovaa/go-outreach-web/internal/http/handlers"
	"github.com/pribylovaa/go-outreach-web/internal/http/middleware"
	"github.com/pribylovaa/go-outreach-web/internal/invitation"
	"github.com/pribylovaa/go-outreach-web/internal/metrics"
	"github.com/pribylovaa/go-outreach-web/internal/session"
)

// SessionPath — JSON-состояние сессии для клиента.
const SessionPath = "/api/session"

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	Routes  config.RoutesConfig
	Policy  credentials.Policy
	Metrics *metrics.Metrics
	CORS    config.CORSConfig
}

// Deps — зависимости страниц. Client одновременно служит refresher'ом
// для guard и для тихого обновления, и источником пайплайна.
type Deps struct {
	Client *apiclient.Client
	Flow   *invitation.Flow
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(deps Deps, opts Options) http.Handler {
	root := chi.NewRouter()

	guard := edgeguard.New(edgeguard.Options{
		Prefix:    opts.Routes.ProtectedPrefix,
		LoginPath: opts.Routes.Login,
		Refresher: deps.Client,
		Policy:    opts.Policy,
		Metrics:   opts.Metrics,
	})

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
	)
	if opts.CORS.Enabled() {
		root.Use(corsHandler(opts.CORS)) // preflight отвечаем до guard
	}
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса, включая вызовы API
	}
	root.Use(
		guard.Middleware,                     // защищённые пути: обновление пары или редирект на логин
		middleware.Credentials(opts.Policy), // после guard: сессия видит уже обновлённые cookie
		session.Middleware(deps.Client.Pipeline(), deps.Client, opts.Metrics),
	)

	h := handlers.New(deps.Client, deps.Flow, opts.Policy, opts.Routes)
	registerRoutes(root, h, opts.Routes)

	return root
}

// corsHandler — cookie с учётными данными уходят только на явно перечисленные origin.
func corsHandler(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           int(cfg.MaxAge.Seconds()),
	})
}

// registerRoutes — единая точка регистрации всех маршрутов.
func registerRoutes(r chi.Router, h *handlers.Handlers, routes config.RoutesConfig) {
	dashboard := routes.ProtectedPrefix

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, dashboard, http.StatusFound)
	})

	// session
	r.Get(SessionPath, h.Session)

	// auth
	r.Get(routes.Login, h.LoginPage)
	r.Post(routes.Login, h.Login)
	r.Post(routes.Logout, h.Logout)

	// invitation
	r.Get(routes.Invitation, h.Invitation)

	// dashboard
	r.Get(dashboard, h.Dashboard)
	r.Get(dashboard+"/{organization_id}", h.Organization)
}
