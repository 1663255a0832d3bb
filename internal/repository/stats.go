package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"marketplace_chat/internal/domain"
	"marketplace_chat/pkg/logger"
)

type StatsRepository interface {
	// GetChatStats считает сообщения чата; ChatID и Participants не заполняет
	GetChatStats(ctx context.Context, chatID string) (*domain.ChatStats, error)
}

type statsRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewStatsRepository(db *pgxpool.Pool, log logger.Logger) StatsRepository {
	return &statsRepository{db: db, log: log}
}

func (r *statsRepository) GetChatStats(ctx context.Context, chatID string) (*domain.ChatStats, error) {
	query := `
		SELECT COUNT(*), MIN(ts), MAX(ts)
		FROM chat_messages
		WHERE chat_id = $1
	`

	stats := &domain.ChatStats{ChatID: chatID}
	err := r.db.QueryRow(ctx, query, chatID).Scan(&stats.MessageCount, &stats.FirstMessageAt, &stats.LastMessageAt)
	if err != nil {
		r.log.Error("Failed to get chat stats", "error", err, "chat_id", chatID)
		return nil, fmt.Errorf("failed to get chat stats: %w", err)
	}

	return stats, nil
}
