// invitation — приём приглашения в организацию по одноразовому токену.
//
// Состояния: NoToken -> {Loading -> Success | Error(kind)}.
// Начальное состояние определяется синхронно по наличию токена.
// Каждая загрузка страницы делает ровно один вызов приёма; загрузки
// разных браузеров ничего не делят между собой. Ошибочный исход
// загрузки можно сохранить под идентификатором загрузки (Remember) и
// перерисовать по нему без нового вызова (Recall).
package invitation

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-outreach-web/internal/apiclient"
	"github.com/pribylovaa/go-outreach-web/internal/metrics"
	logctx "github.com/pribylovaa/go-outreach-web/internal/pkg/log"
	"github.com/pribylovaa/go-outreach-web/internal/pkg/redact"
)

//go:generate mockgen -destination=../../mocks/mock_acceptor.go -package=mocks github.com/pribylovaa/go-outreach-web/internal/invitation Acceptor

// Acceptor — вызов приёма приглашения в удалённом API.
type Acceptor interface {
	AcceptInvitation(ctx context.Context, token string) (apiclient.AcceptResult, error)
}

// Phase — фаза потока.
type Phase int

const (
	PhaseNoToken Phase = iota
	PhaseLoading
	PhaseSuccess
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseNoToken:
		return "no_token"
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// State — состояние страницы приглашения.
type State struct {
	Phase          Phase
	Kind           Kind
	OrganizationID string
	// RedirectTo — дашборд организации (только в PhaseSuccess).
	RedirectTo string
	// SetCookies — Set-Cookie ответа API для передачи браузеру.
	// Относятся только к вызову этой загрузки.
	SetCookies []string
	// Replayed — исход перерисован по идентификатору загрузки без вызова API.
	Replayed bool
}

// Message — текст ошибки для пользователя (пусто вне PhaseError).
func (s State) Message() string {
	if s.Phase != PhaseError {
		return ""
	}
	return s.Kind.Message()
}

// Options — зависимости потока.
type Options struct {
	Acceptor Acceptor
	// Store по умолчанию — MemoryStore.
	Store OutcomeStore
	// OutcomeTTL — сколько помнить исход загрузки; <= 0 выключает Remember.
	OutcomeTTL time.Duration
	// DashboardPrefix — куда вести после приёма: {prefix}/{organization_id}.
	DashboardPrefix string
	Metrics         *metrics.Metrics
}

type Flow struct {
	acceptor  Acceptor
	store     OutcomeStore
	ttl       time.Duration
	dashboard string
	metrics   *metrics.Metrics
}

func New(opts Options) *Flow {
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}

	dashboard := strings.TrimRight(opts.DashboardPrefix, "/")
	if dashboard == "" {
		dashboard = "/dashboard"
	}

	return &Flow{
		acceptor:  opts.Acceptor,
		store:     store,
		ttl:       opts.OutcomeTTL,
		dashboard: dashboard,
		metrics:   opts.Metrics,
	}
}

// Initial — состояние по одному лишь наличию токена.
func (f *Flow) Initial(token string) State {
	if strings.TrimSpace(token) == "" {
		return State{Phase: PhaseNoToken}
	}

	return State{Phase: PhaseLoading}
}

// Run доводит загрузку страницы до терминального состояния одним вызовом
// приёма с учётными данными из ctx. Без токена API не вызывается.
func (f *Flow) Run(ctx context.Context, token string) State {
	token = strings.TrimSpace(token)
	if token == "" {
		return State{Phase: PhaseNoToken}
	}

	log := logctx.From(ctx).With(slog.String("token", redact.Token(token)))

	res, err := f.acceptor.AcceptInvitation(ctx, token)
	if err != nil {
		kind := KindFromError(err)
		f.metrics.InvitationOutcome(kind.String())
		log.Info("invitation_rejected",
			slog.String("kind", kind.String()),
			slog.Int("status", apiclient.StatusOf(err)),
			slog.String("err", err.Error()),
		)

		return State{Phase: PhaseError, Kind: kind}
	}

	f.metrics.InvitationOutcome("accepted")
	log.Info("invitation_accepted", slog.String("organization_id", res.OrganizationID))

	return State{
		Phase:          PhaseSuccess,
		OrganizationID: res.OrganizationID,
		RedirectTo:     f.DashboardURL(res.OrganizationID),
		SetCookies:     res.SetCookies,
	}
}

// Remember сохраняет ошибочный исход загрузки и возвращает её идентификатор.
// Пустой идентификатор без ошибки — сохранять нечего (не ошибка или TTL выключен).
func (f *Flow) Remember(ctx context.Context, st State) (string, error) {
	if st.Phase != PhaseError || f.ttl <= 0 {
		return "", nil
	}

	id := uuid.NewString()
	if err := f.store.Put(ctx, id, Outcome{Kind: st.Kind}, f.ttl); err != nil {
		return "", err
	}

	return id, nil
}

// Recall — исход загрузки по её идентификатору. API не вызывается.
func (f *Flow) Recall(ctx context.Context, loadID string) (State, bool) {
	if _, err := uuid.Parse(loadID); err != nil {
		return State{}, false
	}

	o, ok, err := f.store.Get(ctx, loadID)
	if err != nil {
		logctx.From(ctx).Warn("invitation_store_get_failed", slog.String("err", err.Error()))
		return State{}, false
	}
	if !ok {
		return State{}, false
	}

	kind := o.Kind
	if kind == KindNone {
		kind = KindGeneric
	}

	return State{Phase: PhaseError, Kind: kind, Replayed: true}, true
}

// DashboardURL — путь дашборда организации.
func (f *Flow) DashboardURL(organizationID string) string {
	return f.dashboard + "/" + url.PathEscape(organizationID)
}
