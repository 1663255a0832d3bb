package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"marketplace_chat/internal/domain"
	apperrors "marketplace_chat/pkg/errors"
	"marketplace_chat/pkg/logger"
)

const PresenceKeyPrefix = "presence:%s"

type PresenceRepository interface {
	SetOnline(ctx context.Context, uid, chatID string, at time.Time) error
	// SetOffline не трогает последний chatId
	SetOffline(ctx context.Context, uid string, at time.Time) error
	Get(ctx context.Context, uid string) (*domain.Presence, error)
}

type presenceRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewPresenceRepository(rdb *redis.Client, log logger.Logger) PresenceRepository {
	return &presenceRepository{rdb: rdb, log: log}
}

func (r *presenceRepository) key(uid string) string {
	return fmt.Sprintf(PresenceKeyPrefix, uid)
}

func (r *presenceRepository) SetOnline(ctx context.Context, uid, chatID string, at time.Time) error {
	err := r.rdb.HSet(ctx, r.key(uid),
		"online", "1",
		"lastSeen", at.UnixMilli(),
		"chatId", chatID,
	).Err()
	if err != nil {
		r.log.Error("Failed to set presence online", "error", err, "uid", uid)
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

func (r *presenceRepository) SetOffline(ctx context.Context, uid string, at time.Time) error {
	err := r.rdb.HSet(ctx, r.key(uid),
		"online", "0",
		"lastSeen", at.UnixMilli(),
	).Err()
	if err != nil {
		r.log.Error("Failed to set presence offline", "error", err, "uid", uid)
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

func (r *presenceRepository) Get(ctx context.Context, uid string) (*domain.Presence, error) {
	fields, err := r.rdb.HGetAll(ctx, r.key(uid)).Result()
	if err != nil {
		r.log.Error("Failed to get presence", "error", err, "uid", uid)
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}
	if len(fields) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return presenceFromHash(uid, fields), nil
}

// presenceFromHash разбирает хэш presence:<uid>; битый lastSeen дает нулевое время
func presenceFromHash(uid string, fields map[string]string) *domain.Presence {
	presence := &domain.Presence{
		UserID: uid,
		Online: fields["online"] == "1",
		ChatID: fields["chatId"],
	}
	if ms, err := strconv.ParseInt(fields["lastSeen"], 10, 64); err == nil {
		presence.LastSeen = time.UnixMilli(ms).UTC()
	}
	return presence
}
