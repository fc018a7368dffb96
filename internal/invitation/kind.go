package invitation

import (
	"errors"

	"github.com/pribylovaa/go-outreach-web/internal/apiclient"
)

// Kind — вид отказа в приёме приглашения.
type Kind int

const (
	KindNone Kind = iota
	KindTokenInvalid
	KindEmailMismatch
	KindAlreadyUsed
	KindGeneric
)

// kindByStatus — HTTP-статус ответа API -> вид отказа.
// Всё, чего нет в таблице (включая сетевые ошибки), — KindGeneric.
var kindByStatus = map[int]Kind{
	401: KindTokenInvalid,
	403: KindEmailMismatch,
	409: KindAlreadyUsed,
}

var kindMessages = map[Kind]string{
	KindTokenInvalid:  "Token invalide ou expiré",
	KindEmailMismatch: "L'email ne correspond pas à l'invitation",
	KindAlreadyUsed:   "Invitation déjà acceptée ou expirée",
	KindGeneric:       "Une erreur est survenue lors de l'acceptation",
}

var kindNames = map[Kind]string{
	KindNone:          "none",
	KindTokenInvalid:  "token_invalid",
	KindEmailMismatch: "email_mismatch",
	KindAlreadyUsed:   "already_used",
	KindGeneric:       "generic",
}

// KindFromStatus — вид отказа по статусу ответа.
func KindFromStatus(status int) Kind {
	if k, ok := kindByStatus[status]; ok {
		return k
	}

	return KindGeneric
}

// KindFromError — вид отказа по ошибке вызова: статус берётся из
// *apiclient.StatusError, остальное — KindGeneric.
func KindFromError(err error) Kind {
	if err == nil {
		return KindNone
	}

	var se *apiclient.StatusError
	if errors.As(err, &se) {
		return KindFromStatus(se.Status)
	}

	return KindGeneric
}

// Message — текст для пользователя.
func (k Kind) Message() string { return kindMessages[k] }

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}

	return "unknown"
}

// ParseKind — обратное к String (для хранилищ исходов).
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}

	return KindGeneric
}
