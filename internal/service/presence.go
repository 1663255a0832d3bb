package service

import (
	"context"
	"time"

	"marketplace_chat/internal/domain"
	"marketplace_chat/internal/repository"
	"marketplace_chat/pkg/logger"
)

type PresenceService interface {
	MarkOnline(ctx context.Context, uid, chatID string) error
	MarkOffline(ctx context.Context, uid string) error
	Get(ctx context.Context, uid string) (*domain.Presence, error)
}

type presenceService struct {
	presenceRepo repository.PresenceRepository
	log          logger.Logger
	now          func() time.Time
}

func NewPresenceService(presenceRepo repository.PresenceRepository, log logger.Logger) PresenceService {
	return &presenceService{
		presenceRepo: presenceRepo,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *presenceService) MarkOnline(ctx context.Context, uid, chatID string) error {
	return s.presenceRepo.SetOnline(ctx, uid, chatID, s.now())
}

func (s *presenceService) MarkOffline(ctx context.Context, uid string) error {
	return s.presenceRepo.SetOffline(ctx, uid, s.now())
}

func (s *presenceService) Get(ctx context.Context, uid string) (*domain.Presence, error) {
	return s.presenceRepo.Get(ctx, uid)
}
