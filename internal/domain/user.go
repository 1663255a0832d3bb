package domain

// Profile - профиль пользователя из коллекции usuarios (только чтение)
type Profile struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

// Meta превращает профиль в запись кэша участников; пустое имя заменяется заглушкой
func (p *Profile) Meta() ParticipantMeta {
	if p == nil || p.DisplayName == "" {
		meta := PlaceholderMeta()
		if p != nil {
			meta.PhotoURL = p.PhotoURL
		}
		return meta
	}
	return ParticipantMeta{Name: p.DisplayName, PhotoURL: p.PhotoURL}
}
