// Модели обмена с REST-бэкендом авторизации и внутренняя модель сессии.
package models

// AuthPayload - тело ответа login/register/refresh.
// User может отсутствовать (refresh обычно профиль не возвращает).
type AuthPayload struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         *StoredUser `json:"user,omitempty"`
}

// Valid сообщает, что ответ содержит оба токена.
func (p AuthPayload) Valid() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// Session - результат разбора AuthPayload.
type Session struct {
	Tokens TokenPair
	User   *StoredUser
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthRegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthRefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AuthRevokeRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AuthRevokeResponse struct {
	Ok bool `json:"ok"`
}
