package domain

import "time"

// Presence - последнее известное состояние пользователя; запись только перезаписывается
type Presence struct {
	UserID   string    `json:"userUid"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
	ChatID   string    `json:"chatId,omitempty"`
}
