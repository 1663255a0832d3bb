// Package relay - живая часть чата: прием соединений, конвейер сообщений,
// присутствие, закрытие чата и широковещательная рассылка по реестру.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"marketplace_chat/internal/config"
	"marketplace_chat/internal/domain"
	"marketplace_chat/internal/service"
	apperrors "marketplace_chat/pkg/errors"
	"marketplace_chat/pkg/logger"
)

const defaultBackgroundTimeout = 5 * time.Second

// Тексты ошибок, которые видит клиент
const (
	errTextChatNotFound   = "chat not found"
	errTextHistory        = "failed to load chat history"
	errTextMessage        = "failed to send message"
	errTextClose          = "failed to close chat"
	errTextTooManyMessage = "too many messages, slow down"
)

type Relay struct {
	registry *Registry
	locks    *chatLocks

	chats    service.ChatService
	messages service.MessageService
	presence service.PresenceService
	limiter  service.RateLimitService

	cfg         config.RelayConfig
	messageRule domain.RateLimitRule
	log         logger.Logger

	tasks sync.WaitGroup
}

func New(services *service.Services, cfg config.RelayConfig, log logger.Logger) *Relay {
	if cfg.BackgroundTimeout <= 0 {
		cfg.BackgroundTimeout = defaultBackgroundTimeout
	}
	return &Relay{
		registry: NewRegistry(cfg.SendQueueSize),
		locks:    newChatLocks(),
		chats:    services.Chat,
		messages: services.Message,
		presence: services.Presence,
		limiter:  services.RateLimit,
		cfg:      cfg,
		messageRule: domain.RateLimitRule{
			Scope:  domain.RateLimitScopeMessage,
			Limit:  cfg.MessageRateLimit,
			Window: cfg.MessageRateWindow,
		},
		log: log.With("component", "relay"),
	}
}

func (r *Relay) Registry() *Registry {
	return r.registry
}

// Admit регистрирует соединение, отправляет ему историю чата и запускает
// фоновые задачи присутствия и синхронизации метаданных.
func (r *Relay) Admit(ctx context.Context, chatID, userID string, transport Transport) (*Connection, error) {
	unlock := r.locks.lock(strings.TrimSpace(chatID))
	conn, err := r.registry.Admit(chatID, userID, transport)
	if err != nil {
		unlock()
		r.log.Warn("Connection rejected", "chat_id", chatID, "user_uid", userID, "error", err)
		return nil, err
	}
	go conn.writeLoop(r.writeFailed)

	// Регистрация и история под одной блокировкой чата: сообщение попадет
	// либо в историю, либо в рассылку, но не в оба места
	r.sendHistory(ctx, conn)
	unlock()

	r.log.Info("Connection admitted", "chat_id", conn.ChatID, "user_uid", conn.UserID, "conn_id", conn.ID)

	r.goBackground("presence_online", func(ctx context.Context) error {
		defer close(conn.online)
		err := r.presence.MarkOnline(ctx, conn.UserID, conn.ChatID)
		r.Broadcast(conn.ChatID, domain.PresenceEvent{Type: domain.FrameTypeUserOnline, UserUID: conn.UserID})
		return err
	})

	r.goBackground("metadata_sync", func(ctx context.Context) error {
		err := r.chats.SyncParticipantMetadata(ctx, conn.ChatID)
		if errors.Is(err, apperrors.ErrChatNotFound) {
			return nil
		}
		return err
	})

	return conn, nil
}

func (r *Relay) sendHistory(ctx context.Context, conn *Connection) {
	history, err := r.chats.History(ctx, conn.ChatID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrChatNotFound) {
			r.log.Error("Failed to load history", "chat_id", conn.ChatID, "error", err)
		}
		r.replyError(conn, err, errTextHistory)
		return
	}
	r.send(conn, domain.NewHistoryEvent(history))
}

// HandleInbound разбирает и обрабатывает один фрейм клиента
func (r *Relay) HandleInbound(ctx context.Context, conn *Connection, data []byte) {
	var frame domain.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		r.log.Warn("Dropping malformed frame", "conn_id", conn.ID, "chat_id", conn.ChatID, "error", err)
		return
	}

	switch frame.Type {
	case domain.FrameTypeCloseChat:
		if err := r.CloseChat(ctx, conn.ChatID, conn.UserID, frame.FromName); err != nil {
			r.replyError(conn, err, errTextClose)
		}
	case domain.FrameTypeMessage:
		r.handleMessage(ctx, conn, &frame)
	default:
		r.log.Debug("Ignoring frame", "type", frame.Type, "conn_id", conn.ID)
	}
}

func (r *Relay) handleMessage(ctx context.Context, conn *Connection, frame *domain.InboundFrame) {
	// Отправитель - всегда владелец соединения; пустой from подставляется
	in := service.MessageInputFromFrame(frame)
	switch from := strings.TrimSpace(in.From); {
	case from == "":
		in.From = conn.UserID
	case from != conn.UserID:
		r.log.Warn("Sender mismatch", "conn_id", conn.ID, "chat_id", conn.ChatID, "user_uid", conn.UserID, "from", from)
		r.replyError(conn, fmt.Errorf("%w: sender does not match connection", apperrors.ErrValidation), errTextMessage)
		return
	default:
		in.From = from
	}

	if !r.allowMessage(ctx, conn) {
		r.replyError(conn, apperrors.ErrRateLimited, errTextTooManyMessage)
		return
	}

	unlock := r.locks.lock(conn.ChatID)
	defer unlock()

	message, err := r.messages.Send(ctx, conn.ChatID, in)
	if err != nil {
		if !errors.Is(err, apperrors.ErrValidation) && !errors.Is(err, apperrors.ErrChatNotFound) {
			r.log.Error("Failed to process message", "chat_id", conn.ChatID, "user_uid", conn.UserID, "error", err)
		}
		r.replyError(conn, err, errTextMessage)
		return
	}

	r.Broadcast(conn.ChatID, domain.NewMessageEvent(message))
}

// allowMessage - ограничение частоты сообщений пользователя; при сбое
// хранилища счетчиков сообщение пропускается
func (r *Relay) allowMessage(ctx context.Context, conn *Connection) bool {
	if !r.messageRule.Enabled() || r.limiter == nil {
		return true
	}
	allowed, err := r.limiter.Allow(ctx, r.messageRule, conn.UserID)
	if err != nil {
		r.log.Warn("Message rate limit check failed", "user_uid", conn.UserID, "error", err)
		return true
	}
	return allowed
}

// CloseChat удаляет чат и рассылает chat_closed всем его соединениям,
// включая инициатора. Соединения из реестра не удаляются.
func (r *Relay) CloseChat(ctx context.Context, chatID, initiatorID, initiatorName string) error {
	unlock := r.locks.lock(chatID)
	defer unlock()

	chat, err := r.chats.Close(ctx, chatID, initiatorID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrChatNotFound) {
			r.log.Error("Failed to close chat", "chat_id", chatID, "error", err)
		}
		return err
	}

	r.Broadcast(chatID, domain.ChatClosedEvent{
		Type:         domain.FrameTypeChatClosed,
		ClosedBy:     initiatorID,
		ClosedByName: closedByName(chat, initiatorID, initiatorName),
	})
	return nil
}

func closedByName(chat *domain.Chat, initiatorID, declared string) string {
	if name := strings.TrimSpace(declared); name != "" {
		return name
	}
	if meta, ok := chat.ParticipantsMeta[initiatorID]; ok && meta.Name != "" {
		return meta.Name
	}
	return domain.PlaceholderName
}

// Disconnect - единый путь закрытия: органический разрыв, таймаут живости
// или остановка сервера. Повторные вызовы ничего не делают.
func (r *Relay) Disconnect(conn *Connection) {
	if !conn.close() {
		return
	}
	r.registry.Remove(conn)

	r.log.Info("Connection closed", "chat_id", conn.ChatID, "user_uid", conn.UserID, "conn_id", conn.ID)

	r.goBackground("presence_offline", func(ctx context.Context) error {
		select {
		case <-conn.online:
		case <-ctx.Done():
		}
		err := r.presence.MarkOffline(ctx, conn.UserID)
		r.Broadcast(conn.ChatID, domain.PresenceEvent{Type: domain.FrameTypeUserOffline, UserUID: conn.UserID})
		return err
	})
}

// Broadcast ставит событие в очередь каждого записываемого соединения чата.
// Медленное или сломанное соединение отключается и не задерживает остальных.
func (r *Relay) Broadcast(chatID string, event any) {
	r.registry.ForEachInChat(chatID, func(conn *Connection) {
		r.send(conn, event)
	})
}

// send ставит событие в очередь соединения; переполнение очереди
// означает, что клиент не успевает читать, и соединение закрывается
func (r *Relay) send(conn *Connection, event any) {
	err := conn.Send(event)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrSendQueueFull):
		r.log.Warn("Send queue overflow, dropping connection", "conn_id", conn.ID, "chat_id", conn.ChatID, "user_uid", conn.UserID)
		r.Disconnect(conn)
	default:
		r.log.Debug("Send skipped", "conn_id", conn.ID, "chat_id", conn.ChatID, "error", err)
	}
}

// writeFailed вызывается горутиной записи на первой ошибке транспорта
func (r *Relay) writeFailed(conn *Connection, err error) {
	r.log.Debug("Write failed", "conn_id", conn.ID, "chat_id", conn.ChatID, "error", err)
	r.Disconnect(conn)
}

// Connections - число зарегистрированных соединений
func (r *Relay) Connections() int {
	return r.registry.Len()
}

// Wait дожидается завершения фоновых задач и доставки всего, что уже
// поставлено в очереди записи
func (r *Relay) Wait() {
	r.tasks.Wait()
	for _, conn := range r.registry.Snapshot() {
		conn.flush()
	}
	r.tasks.Wait()
}

// Shutdown закрывает все соединения и ждет фоновые задачи не дольше ctx
func (r *Relay) Shutdown(ctx context.Context) error {
	for _, conn := range r.registry.Snapshot() {
		r.Disconnect(conn)
	}

	done := make(chan struct{})
	go func() {
		r.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) replyError(conn *Connection, err error, fallback string) {
	r.send(conn, domain.NewErrorEvent(userMessage(err, fallback)))
}

// userMessage превращает ошибку в текст для клиента без внутренних деталей
func userMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return err.Error()
	case errors.Is(err, apperrors.ErrChatNotFound):
		return errTextChatNotFound
	case errors.Is(err, apperrors.ErrRateLimited):
		return errTextTooManyMessage
	default:
		return fallback
	}
}

// goBackground запускает задачу вне жизненного цикла сокета со своим
// таймаутом; ошибка только логируется
func (r *Relay) goBackground(name string, fn func(ctx context.Context) error) {
	r.tasks.Add(1)
	go func() {
		defer r.tasks.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.BackgroundTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			r.log.Warn("Background task failed", "task", name, "error", err)
		}
	}()
}
