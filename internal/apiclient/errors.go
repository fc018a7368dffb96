package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrSessionExpired — тихое обновление не удалось, сессия сброшена.
	ErrSessionExpired = errors.New("session expired")
	// ErrMalformedResponse — 2xx, но тело не соответствует контракту.
	ErrMalformedResponse = errors.New("malformed api response")
)

// StatusError — не-2xx ответ удалённого API.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
	}

	return fmt.Sprintf("api status %d", e.Status)
}

// IsStatus — err содержит StatusError с указанным кодом.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// StatusOf возвращает HTTP-статус из цепочки ошибок (0, если его нет).
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}

	return 0
}

// maxErrorBody — сколько читаем из тела ошибки.
const maxErrorBody = 4 << 10

// statusError читает тело ответа об ошибке. API отвечает либо
// {"error":{"code","message"}}, либо {"detail": "..."}, либо чем угодно.
func statusError(resp *http.Response) *StatusError {
	se := &StatusError{Status: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(raw) == 0 {
		return se
	}

	var body struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Error != nil:
			se.Code = body.Error.Code
			se.Message = body.Error.Message
		case body.Detail != "":
			se.Message = body.Detail
		}
		return se
	}

	se.Message = strings.TrimSpace(string(raw))
	if len(se.Message) > 200 {
		se.Message = se.Message[:200]
	}

	return se
}
