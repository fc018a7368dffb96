// credentials — cookie-хранилище учётных данных браузера.
//
// Три cookie:
//   - access_token — короткоживущий bearer-токен;
//   - refresh_token — долгоживущий одноразовый токен обновления;
//   - user — снимок профиля (JSON в base64url).
//
// Пакет не проверяет валидность токенов: это делает удалённый API.
// Здесь только чтение/запись/очистка cookie по единой политике.
package credentials

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pribylovaa/go-outreach-web/internal/config"
	"github.com/pribylovaa/go-outreach-web/internal/models"
)

// Имена cookie, общие для guard, контекста сессии и страниц.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
	UserCookie    = "user"
)

// Policy — атрибуты, с которыми пишутся cookie.
type Policy struct {
	Secure     bool
	Domain     string
	SameSite   http.SameSite
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	UserTTL    time.Duration

	// Now подменяется в тестах.
	Now func() time.Time
}

// PolicyFromConfig собирает политику из секции cookies.
func PolicyFromConfig(cfg config.CookieConfig) Policy {
	return Policy{
		Secure:     !cfg.Insecure,
		Domain:     cfg.Domain,
		SameSite:   cfg.SameSiteMode(),
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		UserTTL:    cfg.UserTTL,
	}
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}

	return time.Now()
}

// Jar — учётные данные, прочитанные из запроса.
type Jar struct {
	Access  string
	Refresh string
	User    string // сырое значение cookie user
}

// Read читает все три cookie; пустые значения считаются отсутствующими.
func Read(r *http.Request) Jar {
	return Jar{
		Access:  cookieValue(r, AccessCookie),
		Refresh: cookieValue(r, RefreshCookie),
		User:    cookieValue(r, UserCookie),
	}
}

func cookieValue(r *http.Request, name string) string {
	if r == nil {
		return ""
	}

	c, err := r.Cookie(name)
	if err != nil || c == nil {
		return ""
	}

	return strings.TrimSpace(c.Value)
}

// Complete — присутствуют оба токена.
func (j Jar) Complete() bool { return j.Access != "" && j.Refresh != "" }

// Empty — нет ни одного токена.
func (j Jar) Empty() bool { return j.Access == "" && j.Refresh == "" }

// Profile декодирует снимок профиля; false, если cookie нет или она битая.
func (j Jar) Profile() (*models.Profile, bool) {
	return DecodeProfile(j.User)
}

// WritePair пишет обе cookie с токенами.
// Срок access-cookie берётся из exp, если токен — JWT; иначе AccessTTL.
func (p Policy) WritePair(w http.ResponseWriter, pair models.TokenPair) {
	now := p.now()

	http.SetCookie(w, p.cookie(AccessCookie, pair.AccessToken, accessExpiry(pair.AccessToken, now, p.AccessTTL), now))
	http.SetCookie(w, p.cookie(RefreshCookie, pair.RefreshToken, now.Add(p.RefreshTTL), now))
}

// WriteUser пишет снимок профиля. Профиль без ID не пишется.
func (p Policy) WriteUser(w http.ResponseWriter, profile *models.Profile) error {
	if !profile.Valid() {
		return nil
	}

	raw, err := EncodeProfile(profile)
	if err != nil {
		return err
	}

	now := p.now()
	c := p.cookie(UserCookie, raw, now.Add(p.UserTTL), now)
	// Снимок профиля читается и на клиенте.
	c.HttpOnly = false
	http.SetCookie(w, c)

	return nil
}

// ClearTokens истекает access_token и refresh_token (идемпотентно).
func (p Policy) ClearTokens(w http.ResponseWriter) {
	p.expire(w, AccessCookie)
	p.expire(w, RefreshCookie)
}

// ClearAll истекает все три cookie — полная инвалидация сессии.
func (p Policy) ClearAll(w http.ResponseWriter) {
	p.ClearTokens(w)
	p.expire(w, UserCookie)
}

func (p Policy) expire(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   p.Domain,
		MaxAge:   -1,
		HttpOnly: name != UserCookie,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	})
}

func (p Policy) cookie(name, value string, expires, now time.Time) *http.Cookie {
	maxAge := int(expires.Sub(now).Seconds())
	if maxAge <= 0 {
		maxAge = 1
	}

	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.Domain,
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}

// accessExpiry читает exp без проверки подписи: подпись проверяет API,
// а нам нужен только срок жизни cookie.
func accessExpiry(token string, now time.Time, fallback time.Duration) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		if exp := claims.ExpiresAt.Time; exp.After(now) {
			return exp
		}
	}

	return now.Add(fallback)
}

// EncodeProfile сериализует профиль в значение cookie.
func EncodeProfile(p *models.Profile) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeProfile принимает base64url(JSON) и, для совместимости со старыми
// клиентами, URL-экранированный JSON.
func DecodeProfile(raw string) (*models.Profile, bool) {
	if raw == "" {
		return nil, false
	}

	var data []byte
	if b, err := base64.RawURLEncoding.DecodeString(raw); err == nil {
		data = b
	} else if s, err := url.QueryUnescape(raw); err == nil && strings.HasPrefix(s, "{") {
		data = []byte(s)
	} else {
		return nil, false
	}

	var p models.Profile
	if err := json.Unmarshal(data, &p); err != nil || !p.Valid() {
		return nil, false
	}

	return &p, true
}

// WithPair возвращает копию запроса, в которой cookie с токенами заменены
// на свежую пару. Остальные cookie сохраняются.
func WithPair(r *http.Request, pair models.TokenPair) *http.Request {
	out := r.Clone(r.Context())
	out.Header.Del("Cookie")

	for _, c := range r.Cookies() {
		if c.Name == AccessCookie || c.Name == RefreshCookie {
			continue
		}
		out.AddCookie(c)
	}

	out.AddCookie(&http.Cookie{Name: AccessCookie, Value: pair.AccessToken})
	out.AddCookie(&http.Cookie{Name: RefreshCookie, Value: pair.RefreshToken})

	return out
}
