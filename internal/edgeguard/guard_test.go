package edgeguard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-outreach-web/internal/apiclient"
	"github.com/pribylovaa/go-outreach-web/internal/config"
	"github.com/pribylovaa/go-outreach-web/internal/credentials"
	"github.com/pribylovaa/go-outreach-web/internal/metrics"
	"github.com/pribylovaa/go-outreach-web/internal/models"
	"github.com/pribylovaa/go-outreach-web/mocks"
)

type harness struct {
	guard   *Guard
	refr    *mocks.MockRefresher
	metrics *metrics.Metrics

	nextCalls int
	seen      credentials.Jar
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctrl := gomock.NewController(t)
	h := &harness{
		refr:    mocks.NewMockRefresher(ctrl),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	h.guard = New(Options{
		Prefix:    "/dashboard",
		LoginPath: "/auth/login",
		Refresher: h.refr,
		Policy: credentials.Policy{
			Secure:     true,
			SameSite:   http.SameSiteLaxMode,
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
			UserTTL:    24 * time.Hour,
		},
		Metrics: h.metrics,
	})

	return h
}

func (h *harness) serve(r *http.Request) *httptest.ResponseRecorder {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.nextCalls++
		h.seen = credentials.Read(r)
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	h.guard.Middleware(next).ServeHTTP(rr, r)
	return rr
}

func request(path string, cookies map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	for name, v := range cookies {
		r.AddCookie(&http.Cookie{Name: name, Value: v})
	}
	return r
}

func setCookies(rr *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rr.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func bothCookies() map[string]string {
	return map[string]string{
		credentials.AccessCookie:  "a1",
		credentials.RefreshCookie: "r1",
		credentials.UserCookie:    "eyJpZCI6InUtMSJ9",
	}
}

func TestGuard_NoCredentials_RedirectsWithoutRenewal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.refr.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

	rr := h.serve(request("/dashboard/org-1?tab=campaigns", nil))

	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, "/auth/login?next=%2Fdashboard%2Forg-1%3Ftab%3Dcampaigns", rr.Header().Get("Location"))
	require.Zero(t, h.nextCalls)

	cs := setCookies(rr)
	require.Equal(t, -1, cs[credentials.AccessCookie].MaxAge)
	require.Equal(t, -1, cs[credentials.RefreshCookie].MaxAge)
	_, userTouched := cs[credentials.UserCookie]
	require.False(t, userTouched)

	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GuardDecisions().WithLabelValues(metrics.GuardRedirectMissing)))
}

func TestGuard_RenewalFailure_RedirectsAndClearsAll(t *testing.T) {
	t.Parallel()

	failures := map[string]error{
		"unauthorized": &apiclient.StatusError{Status: http.StatusUnauthorized},
		"server_error": &apiclient.StatusError{Status: http.StatusInternalServerError},
		"network":      errors.New("dial tcp 127.0.0.1:8000: connect: connection refused"),
		"malformed":    apiclient.ErrMalformedResponse,
		"deadline":     context.DeadlineExceeded,
	}

	for name, failure := range failures {
		name, failure := name, failure
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			h.refr.EXPECT().Refresh(gomock.Any(), "r1").Return(models.TokenPair{}, failure).Times(1)

			rr := h.serve(request("/dashboard", bothCookies()))

			require.Equal(t, http.StatusFound, rr.Code)
			require.Equal(t, "/auth/login?next=%2Fdashboard", rr.Header().Get("Location"))
			require.Zero(t, h.nextCalls)

			cs := setCookies(rr)
			require.Len(t, cs, 3)
			for _, n := range []string{credentials.AccessCookie, credentials.RefreshCookie, credentials.UserCookie} {
				require.Equal(t, -1, cs[n].MaxAge, n)
				require.Empty(t, cs[n].Value, n)
			}

			require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GuardDecisions().WithLabelValues(metrics.GuardRedirectRejected)))
		})
	}
}

func TestGuard_RenewalSuccess_SetsCookiesAndProceeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.refr.EXPECT().Refresh(gomock.Any(), "r1").
		Return(models.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil).Times(1)

	rr := h.serve(request("/dashboard/org-1", bothCookies()))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Header().Get("Location"))
	require.Equal(t, 1, h.nextCalls)

	cs := setCookies(rr)
	require.Len(t, cs, 2)
	require.Equal(t, "a2", cs[credentials.AccessCookie].Value)
	require.Equal(t, "r2", cs[credentials.RefreshCookie].Value)
	for _, c := range cs {
		require.True(t, c.Secure)
		require.True(t, c.HttpOnly)
		require.Equal(t, http.SameSiteLaxMode, c.SameSite)
	}

	// Дальше по цепочке запрос видит уже свежую пару.
	require.Equal(t, "a2", h.seen.Access)
	require.Equal(t, "r2", h.seen.Refresh)
	require.Equal(t, "eyJpZCI6InUtMSJ9", h.seen.User)

	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GuardDecisions().WithLabelValues(metrics.GuardRenewed)))
}

func TestGuard_OnlyAccess_TreatedAsRenewalFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.refr.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

	rr := h.serve(request("/dashboard", map[string]string{credentials.AccessCookie: "a1"}))

	require.Equal(t, http.StatusFound, rr.Code)
	require.Len(t, setCookies(rr), 3)
	require.Zero(t, h.nextCalls)
}

func TestGuard_OnlyRefresh_Renews(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.refr.EXPECT().Refresh(gomock.Any(), "r1").
		Return(models.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil).Times(1)

	rr := h.serve(request("/dashboard", map[string]string{credentials.RefreshCookie: "r1"}))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, h.nextCalls)
}

func TestGuard_NonMatchedPaths_PassThroughUntouched(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.refr.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

	for _, p := range []string{"/", "/auth/login", "/invitation?token=x", "/dashboards", "/api/session"} {
		rr := h.serve(request(p, nil))
		require.Equal(t, http.StatusOK, rr.Code, p)
		require.Empty(t, rr.Result().Cookies(), p)
	}
	require.Equal(t, 5, h.nextCalls)
}

func TestGuard_NoCaching_EveryRequestRenews(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	gomock.InOrder(
		h.refr.EXPECT().Refresh(gomock.Any(), "r1").Return(models.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil),
		h.refr.EXPECT().Refresh(gomock.Any(), "r2").Return(models.TokenPair{AccessToken: "a3", RefreshToken: "r3"}, nil),
	)

	rr := h.serve(request("/dashboard", bothCookies()))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.serve(request("/dashboard/org-1", map[string]string{
		credentials.AccessCookie:  "a2",
		credentials.RefreshCookie: "r2",
	}))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "a3", setCookies(rr)[credentials.AccessCookie].Value)
	require.Equal(t, 2, h.nextCalls)
}

func TestGuard_Matches(t *testing.T) {
	t.Parallel()

	g := New(Options{Prefix: "/dashboard/"})
	require.True(t, g.Matches("/dashboard"))
	require.True(t, g.Matches("/dashboard/"))
	require.True(t, g.Matches("/dashboard/org-1/campaigns"))
	require.False(t, g.Matches("/dashboards"))
	require.False(t, g.Matches("/"))
	require.False(t, g.Matches("/invitation"))

	// "/" не означает «всё»: пустой префикс — дашборд по умолчанию.
	root := New(Options{Prefix: "/"})
	require.True(t, root.Matches("/dashboard/org-1"))
	require.False(t, root.Matches("/anything"))

	// Логин под защищённым префиксом всё равно не защищается.
	nested := New(Options{Prefix: "/app", LoginPath: "/app/login"})
	require.True(t, nested.Matches("/app/org-1"))
	require.False(t, nested.Matches("/app/login"))
}

// Guard с настоящим клиентом API: refresh-эндпоинт недоступен.
func TestGuard_WithAPIClient_UnreachableRefresh(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := apiclient.New(config.APIConfig{BaseURL: base, RefreshPath: "/auth/refresh", Timeout: time.Second}, nil, nil)
	require.NoError(t, err)

	g := New(Options{Prefix: "/dashboard", LoginPath: "/auth/login", Refresher: client})

	var called bool
	rr := httptest.NewRecorder()
	g.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })).
		ServeHTTP(rr, request("/dashboard", bothCookies()))

	require.False(t, called)
	require.Equal(t, http.StatusFound, rr.Code)
	require.Len(t, setCookies(rr), 3)
}

func TestLoginURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/auth/login", LoginURL("/auth/login", ""))
	require.Equal(t, "/auth/login", LoginURL("/auth/login", "/"))
	require.Equal(t, "/auth/login?next=%2Fdashboard", LoginURL("/auth/login", "/dashboard"))
}

func TestSafeNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "/dashboard"},
		{in: "/dashboard/org-1", want: "/dashboard/org-1"},
		{in: "/dashboard?tab=x", want: "/dashboard?tab=x"},
		{in: "https://evil.example", want: "/dashboard"},
		{in: "//evil.example/x", want: "/dashboard"},
		{in: "/\\evil.example", want: "/dashboard"},
		{in: "dashboard", want: "/dashboard"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, SafeNext(tt.in, "/dashboard"), tt.in)
	}
}
