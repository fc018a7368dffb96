// errors стандартизирует ответы об ошибках HTTP-слоя web-edge.
// На вход он принимает ошибку (обычно от клиента удалённого API),
// а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Источник истинности по статусам: удалённый API (apiclient.StatusError).
// Тело ответа API наружу не пробрасывается.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"

	"github.com/pribylovaa/go-outreach-web/internal/apiclient"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует входную ошибку в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil - программная ошибка вызова: 500/internal;
//   - apiclient.ErrSessionExpired - 401/session_expired (обновление не удалось);
//   - apiclient.StatusError - маппим статус API через fromStatus();
//   - отмена/дедлайн контекста - 499/504;
//   - сетевые ошибки - 503/unavailable;
//   - прочее - 500/internal.
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)

	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func classify(err error) (int, string, string) {
	if err == nil {
		return http.StatusInternalServerError, "internal", "internal error"
	}

	if stderrors.Is(err, apiclient.ErrSessionExpired) {
		return http.StatusUnauthorized, "session_expired", "session expired"
	}

	var se *apiclient.StatusError
	if stderrors.As(err, &se) {
		return fromStatus(se.Status)
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	case stderrors.Is(err, apiclient.ErrMalformedResponse):
		return http.StatusBadGateway, "bad_gateway", "bad upstream response"
	}

	var ne net.Error
	if stderrors.As(err, &ne) {
		return http.StatusServiceUnavailable, "unavailable", "service unavailable"
	}

	return http.StatusInternalServerError, "internal", "internal error"
}

// fromStatus — базовый маппинг статуса удалённого API -> HTTP/FE-код/сообщение:
//   - 400, 422 -> 400/invalid_argument
//   - 401 -> 401/unauthenticated
//   - 403 -> 403/permission_denied
//   - 404 -> 404/not_found
//   - 409 -> 409/conflict
//   - 429 -> 429/resource_exhausted
//   - 5xx -> 502/bad_gateway (детали апстрима не показываем)
//   - прочее -> 500/internal
func fromStatus(s int) (int, string, string) {
	switch {
	case s == http.StatusBadRequest, s == http.StatusUnprocessableEntity:
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case s == http.StatusUnauthorized:
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case s == http.StatusForbidden:
		return http.StatusForbidden, "permission_denied", "permission denied"
	case s == http.StatusNotFound:
		return http.StatusNotFound, "not_found", "not found"
	case s == http.StatusConflict:
		return http.StatusConflict, "conflict", "conflict"
	case s == http.StatusTooManyRequests:
		return http.StatusTooManyRequests, "resource_exhausted", "resource exhausted"
	case s >= 500:
		return http.StatusBadGateway, "bad_gateway", "upstream error"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
