package service

import (
	"marketplace_chat/internal/config"
	"marketplace_chat/internal/repository"
	"marketplace_chat/pkg/logger"
)

type Services struct {
	Chat      ChatService
	Message   MessageService
	Presence  PresenceService
	Profile   ProfileService
	RateLimit RateLimitService
	Audit     AuditService
	Stats     StatsService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	profiles := NewProfileService(repos.Profile, log)
	audit := NewAuditService(repos.Audit, log)

	services := &Services{
		Chat:      NewChatService(repos.Chat, profiles, audit, cfg.Relay.HistoryLimit, log),
		Message:   NewMessageService(repos.Chat, profiles, log),
		Presence:  NewPresenceService(repos.Presence, log),
		Profile:   profiles,
		RateLimit: NewRateLimitService(repos.RateLimit, log),
		Audit:     audit,
		Stats:     NewStatsService(repos.Chat, repos.Stats, log),
	}

	log.Info("Services initialized", "history_limit", cfg.Relay.HistoryLimit)

	return services
}
