package apiclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-outreach-web/internal/apiclient"
	"github.com/pribylovaa/go-outreach-web/internal/credentials"
	"github.com/pribylovaa/go-outreach-web/internal/metrics"
	"github.com/pribylovaa/go-outreach-web/internal/models"
	"github.com/pribylovaa/go-outreach-web/mocks"
)

// fakeAPI — транспорт, который отвечает 200 только на ожидаемый bearer.
type fakeAPI struct {
	validBearer string
	calls       int
	bodies      []string
	auths       []string
}

func (f *fakeAPI) do(req *http.Request) (*http.Response, error) {
	f.calls++
	f.auths = append(f.auths, req.Header.Get("Authorization"))
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		f.bodies = append(f.bodies, string(b))
	}

	rr := httptest.NewRecorder()
	if req.Header.Get("Authorization") == "Bearer "+f.validBearer {
		rr.WriteHeader(http.StatusOK)
		_, _ = rr.WriteString(`{"ok":true}`)
	} else {
		rr.WriteHeader(http.StatusUnauthorized)
		_, _ = rr.WriteString(`{"detail":"token expired"}`)
	}

	return rr.Result(), nil
}

type fixture struct {
	api      *fakeAPI
	pipeline *apiclient.Pipeline
	refr     *mocks.MockRefresher
	metrics  *metrics.Metrics
	rec      *httptest.ResponseRecorder
	sess     *credentials.Session
	ctx      context.Context
}

func newFixture(t *testing.T, access, refresh, validBearer string) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &fixture{
		api:     &fakeAPI{validBearer: validBearer},
		refr:    mocks.NewMockRefresher(ctrl),
		metrics: metrics.New(prometheus.NewRegistry()),
		rec:     httptest.NewRecorder(),
	}

	f.pipeline = apiclient.NewPipeline(f.api.do)
	f.pipeline.Use(apiclient.MetadataInterceptor, apiclient.WithMetadata("web-edge"))
	f.pipeline.Use(apiclient.RefreshInterceptor, apiclient.RefreshRetry(f.refr, f.metrics))

	in := httptest.NewRequest(http.MethodGet, "/dashboard/org-1", nil)
	if access != "" {
		in.AddCookie(&http.Cookie{Name: credentials.AccessCookie, Value: access})
	}
	if refresh != "" {
		in.AddCookie(&http.Cookie{Name: credentials.RefreshCookie, Value: refresh})
	}
	f.sess = credentials.NewSession(f.rec, in, credentials.Policy{AccessTTL: time.Minute, RefreshTTL: time.Hour, UserTTL: time.Hour})
	f.ctx = credentials.Into(context.Background(), f.sess)

	return f
}

func (f *fixture) post(t *testing.T, body string) (*http.Response, error) {
	t.Helper()

	req, err := http.NewRequestWithContext(f.ctx, http.MethodPost, "http://api.local/campaigns", strings.NewReader(body))
	require.NoError(t, err)
	return f.pipeline.Do(req)
}

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestRefreshRetry_NoRefreshOnSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "a1", "r1", "a1")

	resp, err := f.post(t, `{"name":"q3"}`)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, f.api.calls)
	require.Empty(t, f.rec.Result().Cookies())
}

func TestRefreshRetry_401_RefreshRotateAndReplayOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "a1", "r1", "a2")
	f.refr.EXPECT().Refresh(gomock.Any(), "r1").
		Return(models.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil).Times(1)

	resp, err := f.post(t, `{"name":"q3"}`)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, 2, f.api.calls)
	require.Equal(t, []string{"Bearer a1", "Bearer a2"}, f.api.auths)
	require.Equal(t, []string{`{"name":"q3"}`, `{"name":"q3"}`}, f.api.bodies, "тело повторяется без изменений")

	cs := cookiesByName(f.rec)
	require.Equal(t, "a2", cs[credentials.AccessCookie].Value)
	require.Equal(t, "r2", cs[credentials.RefreshCookie].Value)
	require.Equal(t, "a2", f.sess.AccessToken())

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TokenRefreshes().WithLabelValues(metrics.RefreshRotated)))
}

func TestRefreshRetry_RefreshFails_InvalidatesSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "a1", "r1", "never")
	upstream := &apiclient.StatusError{Status: http.StatusUnauthorized}
	f.refr.EXPECT().Refresh(gomock.Any(), "r1").Return(models.TokenPair{}, upstream).Times(1)

	resp, err := f.post(t, `{}`)
	require.Nil(t, resp)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.True(t, apiclient.IsStatus(err, http.StatusUnauthorized))
	require.Equal(t, 1, f.api.calls, "без повтора после неудачного обновления")

	require.True(t, f.sess.Invalidated())
	cs := cookiesByName(f.rec)
	require.Len(t, cs, 3)
	for _, name := range []string{credentials.AccessCookie, credentials.RefreshCookie, credentials.UserCookie} {
		require.Equal(t, -1, cs[name].MaxAge, name)
	}
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TokenRefreshes().WithLabelValues(metrics.RefreshFailed)))
}

func TestRefreshRetry_ReplayStill401_NoSecondRetry(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "a1", "r1", "never")
	f.refr.EXPECT().Refresh(gomock.Any(), "r1").
		Return(models.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil).Times(1)

	resp, err := f.post(t, `{}`)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 2, f.api.calls)
}

func TestRefreshRetry_NoRefreshToken_ExpiresWithoutCall(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "a1", "", "never")
	f.refr.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

	_, err := f.post(t, `{}`)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.Equal(t, 1, f.api.calls)
	require.True(t, f.sess.Invalidated())
}

func TestRefreshRetry_WithoutSession_PassesThrough(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	refr := mocks.NewMockRefresher(ctrl)
	refr.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

	api := &fakeAPI{validBearer: "x"}
	p := apiclient.NewPipeline(api.do)
	p.Use(apiclient.RefreshInterceptor, apiclient.RefreshRetry(refr, nil))

	req := httptest.NewRequest(http.MethodGet, "http://api.local/public", nil)
	resp, err := p.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 1, api.calls)
}

func TestRefreshRetry_NonRetryableBody_Returns401(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "a1", "r1", "a2")
	f.refr.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

	// Тело без GetBody нельзя перечитать — повтор невозможен.
	req, err := http.NewRequestWithContext(f.ctx, http.MethodPost, "http://api.local/upload", io.NopCloser(strings.NewReader("blob")))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	resp, err := f.pipeline.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefreshRetry_TransportError_NotRetried(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	refr := mocks.NewMockRefresher(ctrl)
	refr.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

	boom := errors.New("dial tcp: connection refused")
	p := apiclient.NewPipeline(func(*http.Request) (*http.Response, error) { return nil, boom })
	p.Use(apiclient.RefreshInterceptor, apiclient.RefreshRetry(refr, nil))

	rec := httptest.NewRecorder()
	in := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	in.AddCookie(&http.Cookie{Name: credentials.AccessCookie, Value: "a"})
	in.AddCookie(&http.Cookie{Name: credentials.RefreshCookie, Value: "r"})
	ctx := credentials.Into(context.Background(), credentials.NewSession(rec, in, credentials.Policy{}))

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://api.local/x", nil)
	_, err := p.Do(req)
	require.ErrorIs(t, err, boom)
	require.Empty(t, rec.Result().Cookies())
}
