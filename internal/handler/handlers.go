package handler

import (
	"marketplace_chat/internal/config"
	"marketplace_chat/internal/relay"
	"marketplace_chat/internal/service"
	"marketplace_chat/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Chat      *ChatHandler
	Presence  *PresenceHandler
	Stats     *StatsHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, r *relay.Relay, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(cfg, r),
		Chat:      NewChatHandler(services.Chat, r, log),
		Presence:  NewPresenceHandler(services.Presence, log),
		Stats:     NewStatsHandler(services.Stats, r, log),
		WebSocket: NewWebSocketHandler(r, cfg.Relay, log),
	}
}
