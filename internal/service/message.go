package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"marketplace_chat/internal/domain"
	"marketplace_chat/internal/repository"
	apperrors "marketplace_chat/pkg/errors"
	"marketplace_chat/pkg/logger"
)

// MessageInput - входящее сообщение в том виде, в каком его заявил отправитель
type MessageInput struct {
	From         string `validate:"notblank"`
	FromName     string
	FromPhotoURL string
	Text         string `validate:"notblank"`
	Timestamp    *int64
	ReplyTo      *string
	SubjectID    string
	SubjectName  string
}

func MessageInputFromFrame(frame *domain.InboundFrame) MessageInput {
	return MessageInput{
		From:         frame.From,
		FromName:     frame.FromName,
		FromPhotoURL: frame.FromPhotoURL,
		Text:         frame.Text,
		Timestamp:    frame.Timestamp.Ptr(),
		ReplyTo:      frame.ReplyTo,
		SubjectID:    frame.ProdutoID,
		SubjectName:  frame.ProdutoNome,
	}
}

type MessageService interface {
	// Send проверяет, обогащает и сохраняет сообщение. Возвращенное сообщение
	// несет имя и аватар отправителя в том виде, в каком они записаны в кэш чата.
	Send(ctx context.Context, chatID string, in MessageInput) (*domain.Message, error)
}

type messageService struct {
	chatRepo repository.ChatRepository
	profiles ProfileService
	validate *validator.Validate
	log      logger.Logger
	now      func() time.Time
}

func NewMessageService(chatRepo repository.ChatRepository, profiles ProfileService, log logger.Logger) MessageService {
	return &messageService{
		chatRepo: chatRepo,
		profiles: profiles,
		validate: newValidator(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

func (s *messageService) Send(ctx context.Context, chatID string, in MessageInput) (*domain.Message, error) {
	in.From = strings.TrimSpace(in.From)
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}

	update := domain.HeaderUpdate{}

	// Самовосстановление: отправитель всегда входит в список участников
	if !chat.HasParticipant(in.From) {
		participants := append(append([]string(nil), chat.Participants...), in.From)
		update.Participants = participants
		chat.Participants = participants
	}

	meta := make(map[string]domain.ParticipantMeta, 2)
	meta[in.From] = s.senderMeta(chat, in)

	if len(chat.Participants) == 2 {
		if other, ok := chat.OtherParticipant(in.From); ok {
			if cached, has := chat.ParticipantsMeta[other]; !has || cached.Name == "" {
				meta[other] = s.profiles.Meta(ctx, other)
			}
		}
	}
	update.ParticipantsMeta = meta

	ts := s.now()
	if in.Timestamp != nil {
		ts = domain.TimeFromMillis(*in.Timestamp)
	}
	text := in.Text
	update.LastMessage = &text
	update.LastMessageAt = &ts

	if chat.SubjectID == "" && strings.TrimSpace(in.SubjectID) != "" {
		update.SubjectID = strings.TrimSpace(in.SubjectID)
		update.SubjectName = strings.TrimSpace(in.SubjectName)
	}

	if err := s.chatRepo.UpdateHeader(ctx, chatID, update); err != nil {
		return nil, err
	}

	committed := meta[in.From]
	var replyTo *string
	if in.ReplyTo != nil && strings.TrimSpace(*in.ReplyTo) != "" {
		ref := strings.TrimSpace(*in.ReplyTo)
		replyTo = &ref
	}

	message := &domain.Message{
		ID:           uuid.NewString(),
		ChatID:       chatID,
		From:         in.From,
		FromName:     committed.Name,
		FromPhotoURL: committed.PhotoURL,
		Text:         text,
		ReplyTo:      replyTo,
		Timestamp:    ts,
	}

	// Заголовок уже обновлен; при сбое здесь откат не выполняется
	if err := s.chatRepo.AddMessage(ctx, message); err != nil {
		s.log.Error("Header updated but message append failed", "chat_id", chatID, "error", err)
		return nil, err
	}

	return message, nil
}

// senderMeta: отправитель авторитетен для своих данных; пустое имя
// заменяется ранее сохраненным или заглушкой.
func (s *messageService) senderMeta(chat *domain.Chat, in MessageInput) domain.ParticipantMeta {
	meta := domain.ParticipantMeta{
		Name:     strings.TrimSpace(in.FromName),
		PhotoURL: strings.TrimSpace(in.FromPhotoURL),
	}
	if meta.Name == "" {
		if cached, ok := chat.ParticipantsMeta[in.From]; ok && cached.Name != "" {
			meta.Name = cached.Name
		} else {
			meta.Name = domain.PlaceholderName
		}
	}
	return meta
}

func (s *messageService) validateInput(in MessageInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	switch fieldErrs[0].Field() {
	case "From":
		return fmt.Errorf("%w: sender is required", apperrors.ErrValidation)
	case "Text":
		return fmt.Errorf("%w: message text must not be empty", apperrors.ErrValidation)
	default:
		return fmt.Errorf("%w: %s is invalid", apperrors.ErrValidation, fieldErrs[0].Field())
	}
}
