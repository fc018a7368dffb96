package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/pribylovaa/go-outreach-web/internal/config"
	"github.com/pribylovaa/go-outreach-web/internal/models"
)

// maxBody — верхняя граница тела успешного ответа.
const maxBody = 1 << 20

// Client — типизированные вызовы удалённого API поверх Pipeline.
type Client struct {
	base     *url.URL
	paths    config.APIConfig
	pipeline *Pipeline
}

// AcceptResult — исход успешного приёма приглашения.
// SetCookies — сырые Set-Cookie ответа API: их выставляет сам API
// и они передаются браузеру без изменений.
type AcceptResult struct {
	OrganizationID string
	SetCookies     []string
}

// New создаёт клиент и пайплайн со стандартной цепочкой:
// metadata -> timeout -> logging. RefreshRetry ставится отдельно,
// при первом монтировании контекста сессии.
func New(cfg config.APIConfig, log *slog.Logger, transport Invoker) (*Client, error) {
	const op = "internal/apiclient/New"

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%s: invalid base url %q", op, cfg.BaseURL)
	}

	p := NewPipeline(transport)
	p.Use(MetadataInterceptor, WithMetadata(cfg.UserAgent))
	p.Use(TimeoutInterceptor, WithTimeout(cfg.Timeout))
	p.Use(LoggingInterceptor, Logging(log))

	return &Client{base: base, paths: cfg, pipeline: p}, nil
}

// Pipeline — пайплайн клиента (для установки дополнительных перехватчиков).
func (c *Client) Pipeline() *Pipeline { return c.pipeline }

// Refresh — POST /auth/refresh. Успех — только 2xx с обоими непустыми токенами.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	const op = "apiclient.Refresh"

	var pair models.TokenPair
	if _, err := c.call(skipRefresh(ctx), http.MethodPost, c.paths.RefreshPath,
		models.RefreshRequest{RefreshToken: refreshToken}, &pair); err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if !pair.Complete() {
		return models.TokenPair{}, fmt.Errorf("%s: incomplete token pair: %w", op, ErrMalformedResponse)
	}

	return pair, nil
}

// AcceptInvitation — приём приглашения по одноразовому токену.
func (c *Client) AcceptInvitation(ctx context.Context, token string) (AcceptResult, error) {
	const op = "apiclient.AcceptInvitation"

	var out models.AcceptInvitationResponse
	hdr, err := c.call(skipRefresh(ctx), http.MethodPost, c.paths.AcceptInvitationPath,
		models.AcceptInvitationRequest{Token: token}, &out)
	if err != nil {
		return AcceptResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if out.OrganizationID == "" {
		return AcceptResult{}, fmt.Errorf("%s: empty organization_id: %w", op, ErrMalformedResponse)
	}

	return AcceptResult{
		OrganizationID: out.OrganizationID,
		SetCookies:     hdr.Values("Set-Cookie"),
	}, nil
}

// Login — POST /auth/login.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (models.LoginResponse, error) {
	const op = "apiclient.Login"

	var out models.LoginResponse
	if _, err := c.call(skipRefresh(ctx), http.MethodPost, c.paths.LoginPath, req, &out); err != nil {
		return models.LoginResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	if !out.Pair().Complete() {
		return models.LoginResponse{}, fmt.Errorf("%s: incomplete token pair: %w", op, ErrMalformedResponse)
	}

	return out, nil
}

// Logout — POST /auth/logout; отзывает refresh-токен на стороне API.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	const op = "apiclient.Logout"

	if _, err := c.call(skipRefresh(ctx), http.MethodPost, c.paths.LogoutPath,
		models.LogoutRequest{RefreshToken: refreshToken}, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Organization — GET /organizations/{id}.
func (c *Client) Organization(ctx context.Context, id string) (models.Organization, error) {
	const op = "apiclient.Organization"

	var org models.Organization
	path := strings.TrimRight(c.paths.OrganizationsPath, "/") + "/" + url.PathEscape(id)
	if _, err := c.call(ctx, http.MethodGet, path, nil, &org); err != nil {
		return models.Organization{}, fmt.Errorf("%s: %w", op, err)
	}

	return org, nil
}

// call выполняет JSON-вызов через пайплайн и возвращает заголовки ответа.
func (c *Client) call(ctx context.Context, method, path string, in, out any) (http.Header, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		// bytes.Reader даёт запросу GetBody — нужен для повтора после обновления.
		body = bytes.NewReader(b)
	}

	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.pipeline.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, statusError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return resp.Header, nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return resp.Header, fmt.Errorf("decode response: %w: %w", ErrMalformedResponse, err)
	}

	return resp.Header, nil
}
