package domain

import (
	"time"
)

// ChatStats - сводка по чату; LiveConnections заполняется из реестра соединений
type ChatStats struct {
	ChatID          string     `json:"chatId"`
	Participants    int        `json:"participants"`
	MessageCount    int64      `json:"messageCount"`
	FirstMessageAt  *time.Time `json:"firstMessageAt,omitempty"`
	LastMessageAt   *time.Time `json:"lastMessageAt,omitempty"`
	LiveConnections int        `json:"liveConnections"`
}
