package service

import (
	"context"

	"marketplace_chat/internal/domain"
	"marketplace_chat/internal/repository"
	"marketplace_chat/pkg/logger"
)

type StatsService interface {
	GetChatStats(ctx context.Context, chatID string) (*domain.ChatStats, error)
}

type statsService struct {
	chatRepo  repository.ChatRepository
	statsRepo repository.StatsRepository
	log       logger.Logger
}

func NewStatsService(chatRepo repository.ChatRepository, statsRepo repository.StatsRepository, log logger.Logger) StatsService {
	return &statsService{
		chatRepo:  chatRepo,
		statsRepo: statsRepo,
		log:       log,
	}
}

func (s *statsService) GetChatStats(ctx context.Context, chatID string) (*domain.ChatStats, error) {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}

	stats, err := s.statsRepo.GetChatStats(ctx, chatID)
	if err != nil {
		return nil, err
	}
	stats.ChatID = chat.ID
	stats.Participants = len(chat.Participants)
	return stats, nil
}
