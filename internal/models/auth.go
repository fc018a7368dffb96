// Модели REST-обмена с удалённым API (JSON), зеркалят его контракт.
package models

// RefreshRequest — тело POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenPair — пара учётных данных, выдаваемая при логине/обновлении.
// Refresh-токен одноразовый: каждое успешное обновление выдаёт новую пару.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Complete — обе части пары непусты.
func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// LoginRequest — учётные данные для POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse — ответ логина: пара токенов и снимок профиля.
type LoginResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	User         *Profile `json:"user,omitempty"`
}

// Pair вынимает пару токенов из ответа логина.
func (r LoginResponse) Pair() TokenPair {
	return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// LogoutRequest — тело POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}
