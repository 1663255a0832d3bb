package domain

import (
	"time"
)

type AuditLog struct {
	ID        int64                  `json:"id"`
	EventTime time.Time              `json:"event_time"`
	ActorUID  string                 `json:"actor_uid"`
	ChatID    string                 `json:"chat_id"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
}

const (
	EventTypeChatCreated = "CHAT_CREATED"
	EventTypeChatClosed  = "CHAT_CLOSED"
)
