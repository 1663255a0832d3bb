package service

import (
	"context"

	"marketplace_chat/internal/domain"
	"marketplace_chat/internal/repository"
	"marketplace_chat/pkg/logger"
)

type RateLimitService interface {
	// Allow проверяет лимит правила для subject и, если он не исчерпан,
	// засчитывает попытку. Отключенное правило пропускает все.
	Allow(ctx context.Context, rule domain.RateLimitRule, subject string) (bool, error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, rule domain.RateLimitRule, subject string) (bool, error) {
	if !rule.Enabled() {
		return true, nil
	}

	key := rule.Key(subject)
	allowed, err := s.rateLimitRepo.CheckLimit(ctx, key, rule.Limit, rule.Window)
	if err != nil || !allowed {
		return allowed, err
	}
	if _, err := s.rateLimitRepo.Increment(ctx, key, rule.Window); err != nil {
		s.log.Warn("Rate limit increment failed", "key", key, "error", err)
	}
	return true, nil
}
