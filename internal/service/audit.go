package service

import (
	"context"
	"time"

	"marketplace_chat/internal/domain"
	"marketplace_chat/internal/repository"
	"marketplace_chat/pkg/logger"
)

type AuditService interface {
	LogEvent(ctx context.Context, actorUID, chatID, eventType string, payload map[string]interface{}) error
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		log:       log,
	}
}

func (s *auditService) LogEvent(ctx context.Context, actorUID, chatID, eventType string, payload map[string]interface{}) error {
	if payload == nil {
		payload = make(map[string]interface{})
	}

	auditLog := &domain.AuditLog{
		EventTime: time.Now().UTC(),
		ActorUID:  actorUID,
		ChatID:    chatID,
		EventType: eventType,
		Payload:   payload,
	}

	return s.auditRepo.CreateLog(ctx, auditLog)
}
