package service

import (
	"context"

	"marketplace_chat/internal/domain"
	"marketplace_chat/internal/repository"
	"marketplace_chat/pkg/logger"
)

// ProfileService читает профили участников для кэша метаданных чата
type ProfileService interface {
	// Meta никогда не возвращает ошибку: при сбое подставляется заглушка "Usuário"
	Meta(ctx context.Context, uid string) domain.ParticipantMeta
}

type profileService struct {
	profileRepo repository.ProfileRepository
	log         logger.Logger
}

func NewProfileService(profileRepo repository.ProfileRepository, log logger.Logger) ProfileService {
	return &profileService{
		profileRepo: profileRepo,
		log:         log,
	}
}

func (s *profileService) Meta(ctx context.Context, uid string) domain.ParticipantMeta {
	profile, err := s.profileRepo.GetByID(ctx, uid)
	if err != nil {
		s.log.Debug("Profile lookup failed, using placeholder", "uid", uid, "error", err)
		return domain.PlaceholderMeta()
	}
	return profile.Meta()
}
