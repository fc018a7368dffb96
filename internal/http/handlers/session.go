package handlers

import (
	"net/http"

	"github.com/pribylovaa/go-outreach-web/internal/session"
)

// Session — GET /api/session: текущее состояние сессии для клиента.
// Только локальная проверка cookie, без обращения к API.
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, session.FromContext(r.Context()))
}
