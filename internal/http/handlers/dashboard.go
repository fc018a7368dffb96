package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-outreach-web/internal/apiclient"
	"github.com/pribylovaa/go-outreach-web/internal/edgeguard"
	apierrors "github.com/pribylovaa/go-outreach-web/internal/errors"
	"github.com/pribylovaa/go-outreach-web/internal/models"
	logctx "github.com/pribylovaa/go-outreach-web/internal/pkg/log"
	"github.com/pribylovaa/go-outreach-web/internal/session"
)

type dashboardView struct {
	User         *models.Profile      `json:"user,omitempty"`
	Organization *models.Organization `json:"organization,omitempty"`
	LogoutAction string               `json:"-"`
}

// Dashboard — GET /dashboard. Если в снимке профиля есть организация,
// ведёт на её дашборд.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	st := session.FromContext(r.Context())

	if st.User != nil && st.User.OrganizationID != "" && !wantsJSON(r) {
		http.Redirect(w, r, h.dashboardRoot()+"/"+url.PathEscape(st.User.OrganizationID), http.StatusFound)
		return
	}

	h.writeDashboard(w, r, dashboardView{User: st.User})
}

// Organization — GET /dashboard/{organization_id}: организация из API.
// Просроченный access обновляется в пайплайне; если и обновление не удалось,
// cookie уже очищены и пользователь уходит на логин.
func (h *Handlers) Organization(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "organization_id"))
	if id == "" {
		apierrors.WriteError(w, r, &apiclient.StatusError{Status: http.StatusNotFound})
		return
	}

	org, err := h.api.Organization(r.Context(), id)
	if err != nil {
		if errors.Is(err, apiclient.ErrSessionExpired) {
			logctx.From(r.Context()).Info("dashboard_session_expired", slog.String("organization_id", id))
			h.toLogin(w, r)
			return
		}

		logctx.From(r.Context()).Warn("dashboard_organization_failed",
			slog.String("organization_id", id),
			slog.Int("status", apiclient.StatusOf(err)),
			slog.String("err", err.Error()),
		)
		if wantsJSON(r) {
			apierrors.WriteError(w, r, err)
			return
		}
		errorPage(w, r, err)
		return
	}

	h.writeDashboard(w, r, dashboardView{
		User:         session.FromContext(r.Context()).User,
		Organization: &org,
	})
}

func (h *Handlers) writeDashboard(w http.ResponseWriter, r *http.Request, v dashboardView) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, v)
		return
	}

	v.LogoutAction = h.routes.Logout
	render(w, r, http.StatusOK, "dashboard.html", v)
}

// toLogin — как редирект guard: JSON-клиент получает 401, браузер — 302 на логин.
func (h *Handlers) toLogin(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		apierrors.WriteError(w, r, apiclient.ErrSessionExpired)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, edgeguard.LoginURL(h.routes.Login, r.URL.RequestURI()), http.StatusFound)
}
