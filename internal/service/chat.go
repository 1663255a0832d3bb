package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"marketplace_chat/internal/domain"
	"marketplace_chat/internal/repository"
	apperrors "marketplace_chat/pkg/errors"
	"marketplace_chat/pkg/logger"
)

type ResolveInput struct {
	Participants  []string                          `json:"participants"`
	SubjectID     string                            `json:"subjectId"`
	SubjectName   string                            `json:"subjectName"`
	MetadataHints map[string]domain.ParticipantMeta `json:"metadataHints"`
	RequestedBy   string                            `json:"-"`
}

type ChatService interface {
	ResolveOrCreate(ctx context.Context, in ResolveInput) (*domain.Chat, bool, error)
	Get(ctx context.Context, chatID string) (*domain.Chat, error)
	History(ctx context.Context, chatID string) ([]*domain.Message, error)
	// Close удаляет сообщения и заголовок; возвращает заголовок до удаления
	Close(ctx context.Context, chatID, initiatorID string) (*domain.Chat, error)
	SyncParticipantMetadata(ctx context.Context, chatID string) error
}

type chatService struct {
	chatRepo     repository.ChatRepository
	profiles     ProfileService
	audit        AuditService
	historyLimit int
	log          logger.Logger
	now          func() time.Time
}

func NewChatService(chatRepo repository.ChatRepository, profiles ProfileService, audit AuditService, historyLimit int, log logger.Logger) ChatService {
	return &chatService{
		chatRepo:     chatRepo,
		profiles:     profiles,
		audit:        audit,
		historyLimit: historyLimit,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *chatService) ResolveOrCreate(ctx context.Context, in ResolveInput) (*domain.Chat, bool, error) {
	participants := domain.NormalizeParticipants(in.Participants)
	if len(participants) < 2 {
		return nil, false, fmt.Errorf("%w: at least two distinct participants are required", apperrors.ErrBadRequest)
	}
	subjectID := strings.TrimSpace(in.SubjectID)
	if subjectID == "" {
		return nil, false, fmt.Errorf("%w: subjectId is required", apperrors.ErrBadRequest)
	}

	// Подсказки принимаются только для перечисленных участников
	hints := lo.PickByKeys(in.MetadataHints, participants)

	chat := &domain.Chat{
		ID:               uuid.NewString(),
		Participants:     participants,
		ParticipantKey:   domain.ParticipantKey(participants),
		SubjectID:        subjectID,
		SubjectName:      strings.TrimSpace(in.SubjectName),
		ParticipantsMeta: domain.MergeMeta(hints, nil),
		CreatedAt:        s.now(),
	}

	created, err := s.chatRepo.ResolveOrCreate(ctx, chat)
	if err != nil {
		return nil, false, err
	}

	if created {
		s.log.Info("Chat created", "chat_id", chat.ID, "subject_id", chat.SubjectID)
		if err := s.audit.LogEvent(ctx, in.RequestedBy, chat.ID, domain.EventTypeChatCreated, map[string]interface{}{
			"participants": chat.Participants,
			"subjectId":    chat.SubjectID,
		}); err != nil {
			s.log.Warn("Failed to audit chat creation", "chat_id", chat.ID, "error", err)
		}
	}

	return chat, created, nil
}

func (s *chatService) Get(ctx context.Context, chatID string) (*domain.Chat, error) {
	return s.chatRepo.GetByID(ctx, chatID)
}

func (s *chatService) History(ctx context.Context, chatID string) ([]*domain.Message, error) {
	if _, err := s.chatRepo.GetByID(ctx, chatID); err != nil {
		return nil, err
	}
	return s.chatRepo.ListMessages(ctx, chatID, s.historyLimit)
}

func (s *chatService) Close(ctx context.Context, chatID, initiatorID string) (*domain.Chat, error) {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if err := s.chatRepo.Delete(ctx, chatID); err != nil {
		return nil, err
	}

	s.log.Info("Chat closed", "chat_id", chatID, "closed_by", initiatorID)
	if err := s.audit.LogEvent(ctx, initiatorID, chatID, domain.EventTypeChatClosed, map[string]interface{}{
		"participants": chat.Participants,
		"subjectId":    chat.SubjectID,
	}); err != nil {
		s.log.Warn("Failed to audit chat close", "chat_id", chatID, "error", err)
	}

	return chat, nil
}

func (s *chatService) SyncParticipantMetadata(ctx context.Context, chatID string) error {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return err
	}

	computed := make(map[string]domain.ParticipantMeta, len(chat.Participants))
	for _, uid := range chat.Participants {
		computed[uid] = s.profiles.Meta(ctx, uid)
	}

	// Запись только при расхождении: лишние ключи в кэше не считаются отличием,
	// так как запись идет слиянием и их не удалит.
	changed := lo.PickBy(computed, func(uid string, meta domain.ParticipantMeta) bool {
		stored, ok := chat.ParticipantsMeta[uid]
		return !ok || stored != meta
	})
	if len(changed) == 0 {
		return nil
	}

	err = s.chatRepo.UpdateHeader(ctx, chatID, domain.HeaderUpdate{ParticipantsMeta: changed})
	if err != nil && !errors.Is(err, apperrors.ErrChatNotFound) {
		s.log.Warn("Failed to sync participant metadata", "chat_id", chatID, "error", err)
	}
	return err
}
