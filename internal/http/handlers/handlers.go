package handlers

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/pribylovaa/go-outreach-web/internal/config"
	"github.com/pribylovaa/go-outreach-web/internal/credentials"
	apierrors "github.com/pribylovaa/go-outreach-web/internal/errors"
	"github.com/pribylovaa/go-outreach-web/internal/invitation"
	"github.com/pribylovaa/go-outreach-web/internal/models"
	logctx "github.com/pribylovaa/go-outreach-web/internal/pkg/log"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pages = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

//go:generate mockgen -destination=../../../mocks/mock_api.go -package=mocks github.com/pribylovaa/go-outreach-web/internal/http/handlers API

// API — вызовы удалённого API, нужные страницам (реализует *apiclient.Client).
type API interface {
	Login(ctx context.Context, req models.LoginRequest) (models.LoginResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Organization(ctx context.Context, id string) (models.Organization, error)
}

// Handlers агрегирует зависимости страниц.
type Handlers struct {
	api    API
	flow   *invitation.Flow
	policy credentials.Policy
	routes config.RoutesConfig
}

func New(api API, flow *invitation.Flow, policy credentials.Policy, routes config.RoutesConfig) *Handlers {
	return &Handlers{api: api, flow: flow, policy: policy, routes: routes}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

// render рендерит страницу в буфер, чтобы ошибка шаблона не оставила
// полуотданный ответ.
func render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		logctx.From(r.Context()).Error("template_failed",
			slog.String("template", name),
			slog.String("err", err.Error()),
		)
		apierrors.WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// errorPage — HTML-вариант apierrors.WriteError.
func errorPage(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := apierrors.ToHTTP(err)
	resp.Error.RequestID = r.Header.Get("X-Request-Id")
	render(w, r, status, "error.html", resp.Error)
}

// wantsJSON — клиент просит JSON (fetch из SPA), а не страницу.
func wantsJSON(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "application/json" {
			return true
		}
	}

	return false
}

// isJSONBody — тело запроса в JSON.
func isJSONBody(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func (h *Handlers) dashboardRoot() string {
	return strings.TrimRight(h.routes.ProtectedPrefix, "/")
}
