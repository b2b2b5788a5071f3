// redact маскирует чувствительные значения перед записью в лог.
package redact

import "strings"

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

// Token скрывает значение токена целиком; пустой токен помечается отдельно,
// чтобы в логах было видно, что заголовок не отправлялся.
func Token(tok string) string {
	if tok == "" {
		return "[NO_TOKEN]"
	}

	return "[REDACTED_TOKEN]"
}

func Password() string { return "[REDACTED_PASSWORD]" }

// Header маскирует значения Authorization/Cookie, прочие заголовки не трогает.
func Header(name, value string) string {
	switch strings.ToLower(name) {
	case "authorization", "cookie", "set-cookie":
		if scheme, _, ok := strings.Cut(value, " "); ok {
			return scheme + " " + Token(value)
		}
		return Token(value)
	default:
		return value
	}
}
