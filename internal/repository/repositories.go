package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"marketplace_chat/pkg/logger"
)

type Repositories struct {
	Chat      ChatRepository
	Stats     StatsRepository
	Profile   ProfileRepository
	Presence  PresenceRepository
	Audit     AuditRepository
	RateLimit RateLimitRepository
}

func NewRepositories(db *pgxpool.Pool, redis *redis.Client, log logger.Logger) *Repositories {
	repos := &Repositories{
		Chat:      NewChatRepository(db, log),
		Stats:     NewStatsRepository(db, log),
		Profile:   NewProfileRepository(db, log),
		Presence:  NewPresenceRepository(redis, log),
		Audit:     NewAuditRepository(db, log),
		RateLimit: NewRateLimitRepository(redis, log),
	}

	log.Info("Repositories initialized", "driver", "postgres")

	return repos
}
