package handlers

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/pribylovaa/go-outreach-web/internal/invitation"
	logctx "github.com/pribylovaa/go-outreach-web/internal/pkg/log"
)

// invitationView — состояние страницы приглашения для шаблона и JSON.
type invitationView struct {
	Phase          string `json:"phase"`
	Kind           string `json:"kind,omitempty"`
	Message        string `json:"message,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	RedirectTo     string `json:"redirect_to,omitempty"`
}

func viewOf(st invitation.State) invitationView {
	v := invitationView{
		Phase:          st.Phase.String(),
		Message:        st.Message(),
		OrganizationID: st.OrganizationID,
		RedirectTo:     st.RedirectTo,
	}
	if st.Phase == invitation.PhaseError {
		v.Kind = st.Kind.String()
	}

	return v
}

// LoadParam — идентификатор уже состоявшейся загрузки страницы приглашения.
const LoadParam = "load"

// Invitation — GET /invitation?token=... и GET /invitation?load=...
//
// Без токена отдаёт состояние "нет приглашения" и не ходит в API.
// Каждая загрузка с токеном делает свой вызов приёма. При успехе передаёт
// браузеру Set-Cookie ответа API и ведёт 303 на дашборд организации;
// ошибку запоминает и ведёт 303 на ?load=..., чтобы обновление страницы
// перерисовало тот же исход без нового вызова. JSON-клиент получает
// состояние в теле сразу.
func (h *Handlers) Invitation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	log := logctx.From(r.Context())

	st := h.flow.Initial(token)
	switch {
	case st.Phase == invitation.PhaseLoading:
		st = h.flow.Run(r.Context(), token)
	case q.Get(LoadParam) != "":
		if recalled, ok := h.flow.Recall(r.Context(), q.Get(LoadParam)); ok {
			st = recalled
		}
	}

	if st.Phase == invitation.PhaseSuccess {
		for _, c := range st.SetCookies {
			w.Header().Add("Set-Cookie", c)
		}
	}

	log.Debug("invitation_rendered",
		slog.String("phase", st.Phase.String()),
		slog.Bool("replayed", st.Replayed),
	)

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, viewOf(st))
		return
	}

	if st.Phase == invitation.PhaseSuccess {
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, st.RedirectTo, http.StatusSeeOther)
		return
	}

	if st.Phase == invitation.PhaseError && !st.Replayed {
		id, err := h.flow.Remember(r.Context(), st)
		if err != nil {
			// Без хранилища показываем исход сразу.
			log.Warn("invitation_remember_failed", slog.String("err", err.Error()))
		}
		if id != "" {
			w.Header().Set("Cache-Control", "no-store")
			http.Redirect(w, r, h.routes.Invitation+"?"+url.Values{LoadParam: {id}}.Encode(), http.StatusSeeOther)
			return
		}
	}

	render(w, r, http.StatusOK, "invitation.html", viewOf(st))
}
