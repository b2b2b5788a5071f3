package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FallbackMessage - сообщение, когда ни бэкенд, ни транспорт ничего не сообщили.
const FallbackMessage = "Something went wrong. Please try again."

var (
	// ErrMalformedResponse - успешный ответ не удалось разобрать
	// (или в ответе refresh нет пары токенов).
	ErrMalformedResponse = errors.New("malformed response")
	// ErrEncodeBody - тело запроса не сериализуется в JSON.
	ErrEncodeBody = errors.New("encode request body")
)

// HTTPError - бэкенд ответил статусом вне 2xx.
// Err содержит причину, если ошибка пережила попытку refresh (401 + неудачный refresh).
type HTTPError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	Body      []byte
	Err       error
}

func (e *HTTPError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "api: status %d", e.Status)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

func (e *HTTPError) Unwrap() error { return e.Err }

// TransportMessage - сообщение транспортного уровня для ответа без тела ошибки.
func (e *HTTPError) TransportMessage() string {
	return fmt.Sprintf("Request failed with status code %d", e.Status)
}

// TransportError - запрос не дошёл до бэкенда или ответ не был получен
// (сеть, DNS, таймаут, отмена контекста).
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("api: transport: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsUnauthorized сообщает, что err - ответ 401.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusUnauthorized
}

// Message возвращает самое конкретное человекочитаемое сообщение:
// сообщение бэкенда, затем транспортное, затем FallbackMessage.
func Message(err error) string {
	if err == nil {
		return FallbackMessage
	}

	var he *HTTPError
	if errors.As(err, &he) {
		if he.Message != "" {
			return he.Message
		}
		return he.TransportMessage()
	}

	var te *TransportError
	if errors.As(err, &te) && te.Err != nil && te.Err.Error() != "" {
		return te.Err.Error()
	}

	if msg := err.Error(); msg != "" {
		return msg
	}

	return FallbackMessage
}

// errorEnvelope покрывает обе формы тела ошибки бэкенда:
// {"message": "..."} и {"error": {"code","message","request_id"}}.
// Встречается и {"error": "..."}.
type errorEnvelope struct {
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Error   json.RawMessage `json:"error"`
}

type errorObject struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func newHTTPError(status int, body []byte, requestID string) *HTTPError {
	he := &HTTPError{Status: status, Body: body, RequestID: requestID}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return he
	}

	he.Message = env.Message
	he.Code = env.Code

	if len(env.Error) > 0 {
		var obj errorObject
		var str string
		switch {
		case json.Unmarshal(env.Error, &obj) == nil:
			if he.Message == "" {
				he.Message = obj.Message
			}
			if he.Code == "" {
				he.Code = obj.Code
			}
			if obj.RequestID != "" {
				he.RequestID = obj.RequestID
			}
		case json.Unmarshal(env.Error, &str) == nil:
			if he.Message == "" {
				he.Message = str
			}
		}
	}

	return he
}
