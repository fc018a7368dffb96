package models

// Profile — снимок профиля пользователя, хранится в cookie "user".
// Источник истины — удалённый API; здесь только то, что нужно для отрисовки.
type Profile struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// Valid — минимально осмысленный снимок: есть идентификатор.
func (p *Profile) Valid() bool {
	return p != nil && p.ID != ""
}
