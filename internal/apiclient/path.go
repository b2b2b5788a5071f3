package apiclient

import (
	"net/url"
	"strings"
)

// DefaultPrefix - сегмент, который часто дублируют в путях вызовов,
// хотя он уже входит в BaseURL.
const DefaultPrefix = "/api"

// NormalizePath приводит путь запроса к виду "/x/y":
//   - абсолютные http(s) URL возвращаются без изменений;
//   - ведущие слэши схлопываются в один;
//   - избыточный префикс API (целым сегментом) снимается, "/api" превращается в "/".
//
// Функция идемпотентна: NormalizePath(NormalizePath(p)) == NormalizePath(p).
func NormalizePath(p, prefix string) string {
	if IsAbsoluteURL(p) {
		return p
	}

	s := "/" + strings.TrimLeft(p, "/")

	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return s
	}
	prefix = "/" + prefix

	for {
		switch {
		case s == prefix:
			return "/"
		case strings.HasPrefix(s, prefix+"/"):
			s = "/" + strings.TrimLeft(s[len(prefix):], "/")
		case strings.HasPrefix(s, prefix+"?"), strings.HasPrefix(s, prefix+"#"):
			return "/" + s[len(prefix):]
		default:
			return s
		}
	}
}

// IsAbsoluteURL - путь уже содержит схему http/https.
func IsAbsoluteURL(p string) bool {
	l := strings.ToLower(p)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Эндпоинты, 401 от которых означает неверные учётные данные, а не
// истёкший access-токен: refresh для них не запускается.
var authPaths = map[string]struct{}{
	"/auth/login":    {},
	"/auth/register": {},
	"/auth/refresh":  {},
	"/auth/revoke":   {},
}

// isAuthPath проверяет нормализованный путь. Для абсолютного URL
// сравнивается окончание его пути, так как префикс API там не снят.
func isAuthPath(normalized string) bool {
	if IsAbsoluteURL(normalized) {
		u, err := url.Parse(normalized)
		if err != nil {
			return false
		}
		p := strings.TrimRight(u.Path, "/")
		for ap := range authPaths {
			if strings.HasSuffix(p, ap) {
				return true
			}
		}

		return false
	}

	p := normalized
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	_, ok := authPaths[strings.TrimRight(p, "/")]

	return ok
}
