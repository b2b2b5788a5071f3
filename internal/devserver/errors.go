package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrWeakPassword       = errors.New("password is too weak")
	ErrEmailTaken         = errors.New("email already taken")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limit exceeded")
)

// APIError - единый формат ошибки для клиента.
// Code - короткий стабильный код, Message - безопасный текст для оператора.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse - корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP переводит доменную ошибку в HTTP-статус и тело ответа.
// Незнакомые ошибки (и nil) дают 500/internal без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := http.StatusInternalServerError, "internal", "internal error"

	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidArgument):
		status, code, msg = http.StatusBadRequest, "invalid_argument", "invalid argument"
	case errors.Is(err, ErrInvalidEmail):
		status, code, msg = http.StatusBadRequest, "invalid_argument", "invalid email format"
	case errors.Is(err, ErrWeakPassword):
		status, code, msg = http.StatusBadRequest, "invalid_argument", "password must be at least 8 characters"
	case errors.Is(err, ErrInvalidCredentials):
		status, code, msg = http.StatusUnauthorized, "unauthenticated", "Invalid email or password"
	case errors.Is(err, ErrTokenExpired):
		status, code, msg = http.StatusUnauthorized, "unauthenticated", "Session expired"
	case errors.Is(err, ErrTokenRevoked), errors.Is(err, ErrInvalidToken):
		status, code, msg = http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case errors.Is(err, ErrEmailTaken):
		status, code, msg = http.StatusConflict, "already_exists", "already exists"
	case errors.Is(err, ErrNotFound):
		status, code, msg = http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, ErrRateLimited):
		status, code, msg = http.StatusTooManyRequests, "resource_exhausted", "too many attempts, try again later"
	}

	return status, ErrorResponse{Error: APIError{Code: code, Message: msg}}
}

// WriteError пишет статус и тело ошибки, добавляя request_id из заголовка.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict - строгий JSON-декодер: неизвестные поля запрещены.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(value); err != nil {
		return ErrInvalidArgument
	}

	return nil
}
