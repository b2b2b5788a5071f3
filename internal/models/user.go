package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidUser - сохранённый профиль не является JSON-объектом ожидаемой формы.
var ErrInvalidUser = errors.New("invalid stored user")

// StoredUser - закэшированный профиль текущего пользователя.
// Известные поля типизированы, остальные ключи бэкенда сохраняются в Extra
// и записываются обратно «плоско», без потери данных.
type StoredUser struct {
	Email    string
	Role     string
	TenantID string
	Extra    map[string]any
}

const (
	keyEmail         = "email"
	keyRole          = "role"
	keyTenantID      = "tenantId"
	keyTenantIDSnake = "tenant_id"
)

// MarshalJSON пишет известные поля поверх Extra.
func (u StoredUser) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Extra)+3)
	for k, v := range u.Extra {
		out[k] = v
	}

	out[keyEmail] = u.Email
	if u.Role != "" {
		out[keyRole] = u.Role
	}
	if u.TenantID != "" {
		out[keyTenantID] = u.TenantID
	}

	return json.Marshal(out)
}

// UnmarshalJSON принимает как tenantId, так и tenant_id.
func (u *StoredUser) UnmarshalJSON(data []byte) error {
	const op = "models.StoredUser.UnmarshalJSON"

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidUser, err)
	}
	if raw == nil {
		return fmt.Errorf("%s: %w: null", op, ErrInvalidUser)
	}

	var res StoredUser
	var err error
	if res.Email, err = optString(raw, keyEmail); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.Role, err = optString(raw, keyRole); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.TenantID, err = optString(raw, keyTenantID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.TenantID == "" {
		if res.TenantID, err = optString(raw, keyTenantIDSnake); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	delete(raw, keyEmail)
	delete(raw, keyRole)
	delete(raw, keyTenantID)
	delete(raw, keyTenantIDSnake)
	if len(raw) > 0 {
		res.Extra = raw
	}

	*u = res
	return nil
}

func optString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}

	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q is %T, want string", ErrInvalidUser, key, v)
	}

	return s, nil
}

// Clone возвращает копию без общих ссылок на Extra.
func (u StoredUser) Clone() StoredUser {
	if u.Extra == nil {
		return u
	}

	extra := make(map[string]any, len(u.Extra))
	for k, v := range u.Extra {
		extra[k] = v
	}
	u.Extra = extra

	return u
}
