// redact — маскирование секретов перед записью в лог.
// Токены (access/refresh/invitation) и e-mail никогда не пишутся в лог целиком.
package redact

import "strings"

const tokenVisible = 4

// Email оставляет первые две руны локальной части и домен.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := []rune(parts[0]), parts[1]
	if len(local) > 2 {
		return string(local[:2]) + "***@" + domain
	}

	return "***@" + domain
}

// Token оставляет короткий префикс токена, чтобы в логах различать
// JWT ("eyJh…") и непрозрачные токены. Короткие токены скрываются целиком.
func Token(tok string) string {
	if len(tok) <= 2*tokenVisible {
		return "[REDACTED_TOKEN]"
	}

	return tok[:tokenVisible] + "…[REDACTED_TOKEN]"
}
