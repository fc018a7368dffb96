package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pribylovaa/go-outreach-web/internal/apiclient"
	"github.com/pribylovaa/go-outreach-web/internal/credentials"
	"github.com/pribylovaa/go-outreach-web/internal/edgeguard"
	apierrors "github.com/pribylovaa/go-outreach-web/internal/errors"
	"github.com/pribylovaa/go-outreach-web/internal/models"
	logctx "github.com/pribylovaa/go-outreach-web/internal/pkg/log"
	"github.com/pribylovaa/go-outreach-web/internal/pkg/redact"
)

const (
	msgBadCredentials = "Email ou mot de passe incorrect"
	msgMissingFields  = "Email et mot de passe requis"
	msgLoginFailed    = "Connexion impossible, réessayez plus tard"
)

var errMissingFields = &apiclient.StatusError{Status: http.StatusBadRequest, Message: "email and password are required"}

type loginView struct {
	Action string
	Next   string
	Email  string
	Error  string
}

// loginInput — форма или JSON логина.
type loginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Next     string `json:"next,omitempty"`
}

type loginResult struct {
	RedirectTo string          `json:"redirect_to"`
	User       *models.Profile `json:"user,omitempty"`
}

// LoginPage — GET /auth/login: универсальная цель редиректа guard.
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, "login.html", loginView{
		Action: h.routes.Login,
		Next:   edgeguard.SafeNext(r.URL.Query().Get(edgeguard.NextParam), ""),
	})
}

// Login — POST /auth/login: проксирует учётные данные в API и ставит
// cookie пары и профиля. Ведёт на next (только локальный путь) или на дашборд.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	asJSON := isJSONBody(r)

	in, err := readLogin(r, asJSON)
	if err != nil {
		apierrors.WriteError(w, r, errMissingFields)
		return
	}

	in.Email = strings.TrimSpace(in.Email)
	next := edgeguard.SafeNext(in.Next, h.dashboardRoot())
	log := logctx.From(r.Context()).With(slog.String("email", redact.Email(in.Email)))

	if in.Email == "" || in.Password == "" {
		h.loginFailed(w, r, asJSON, in, http.StatusBadRequest, msgMissingFields, errMissingFields)
		return
	}

	resp, err := h.api.Login(r.Context(), models.LoginRequest{Email: in.Email, Password: in.Password})
	if err != nil {
		log.Info("login_failed", slog.Int("status", apiclient.StatusOf(err)), slog.String("err", err.Error()))

		if apiclient.IsStatus(err, http.StatusUnauthorized) || apiclient.IsStatus(err, http.StatusBadRequest) {
			h.loginFailed(w, r, asJSON, in, http.StatusUnauthorized, msgBadCredentials, err)
			return
		}

		status, _ := apierrors.ToHTTP(err)
		h.loginFailed(w, r, asJSON, in, status, msgLoginFailed, err)
		return
	}

	h.policy.WritePair(w, resp.Pair())
	if resp.User.Valid() {
		if err := h.policy.WriteUser(w, resp.User); err != nil {
			log.Warn("login_user_cookie_failed", slog.String("err", err.Error()))
		}
	}

	log.Info("login_succeeded")

	if asJSON {
		writeJSON(w, http.StatusOK, loginResult{RedirectTo: next, User: resp.User})
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func readLogin(r *http.Request, asJSON bool) (loginInput, error) {
	var in loginInput
	if asJSON {
		err := decodeStrict(r, &in)
		return in, err
	}

	if err := r.ParseForm(); err != nil {
		return in, err
	}

	in.Email = r.PostForm.Get("email")
	in.Password = r.PostForm.Get("password")
	in.Next = r.PostForm.Get("next")

	return in, nil
}

func (h *Handlers) loginFailed(w http.ResponseWriter, r *http.Request, asJSON bool, in loginInput, status int, msg string, err error) {
	if asJSON {
		if status == http.StatusUnauthorized {
			err = &apiclient.StatusError{Status: http.StatusUnauthorized}
		}
		apierrors.WriteError(w, r, err)
		return
	}

	render(w, r, status, "login.html", loginView{
		Action: h.routes.Login,
		Next:   edgeguard.SafeNext(in.Next, ""),
		Email:  in.Email,
		Error:  msg,
	})
}

// Logout — POST /auth/logout: отзывает refresh в API (best effort),
// очищает все три cookie и ведёт на логин.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	log := logctx.From(r.Context())

	if refresh := credentials.Read(r).Refresh; refresh != "" {
		if err := h.api.Logout(r.Context(), refresh); err != nil {
			log.Warn("logout_remote_failed", slog.String("err", err.Error()))
		}
	}

	// Сессия запроса пишет очистку сама; без неё чистим напрямую.
	if s, ok := credentials.FromContext(r.Context()); ok {
		s.Invalidate()
	} else {
		h.policy.ClearAll(w)
	}

	log.Info("logout")

	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, h.routes.Login, http.StatusSeeOther)
}
