package models

// TokenPair - пара токенов текущей сессии.
//
// Описание:
//   - AccessToken - короткоживущий bearer-токен для запросов к API;
//   - RefreshToken - долгоживущий секрет для выпуска новой пары.
//
// Пустая строка означает отсутствие токена. Формат токенов клиент не проверяет.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Empty сообщает, что в паре нет ни одного токена.
func (p TokenPair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}
