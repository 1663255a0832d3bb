package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"marketplace_chat/internal/domain"
	"marketplace_chat/internal/middleware"
	"marketplace_chat/internal/relay"
	"marketplace_chat/internal/service"
	apperrors "marketplace_chat/pkg/errors"
	"marketplace_chat/pkg/logger"
)

type ChatHandler struct {
	chatService service.ChatService
	relay       *relay.Relay
	log         logger.Logger
}

func NewChatHandler(chatService service.ChatService, relay *relay.Relay, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		relay:       relay,
		log:         log,
	}
}

type ResolveRequest struct {
	Participants  []string                          `json:"participants" binding:"required"`
	SubjectID     string                            `json:"subjectId"`
	SubjectName   string                            `json:"subjectName"`
	MetadataHints map[string]domain.ParticipantMeta `json:"metadataHints"`
}

type ResolveResponse struct {
	ChatID  string `json:"chatId"`
	Created bool   `json:"created"`
}

// Resolve находит чат участников по предмету или создает новый
func (h *ChatHandler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requestedBy, authenticated := middleware.UserID(c)
	if authenticated && !lo.Contains(domain.NormalizeParticipants(req.Participants), requestedBy) {
		c.JSON(http.StatusForbidden, gin.H{"error": "requester must be a participant"})
		return
	}

	chat, created, err := h.chatService.ResolveOrCreate(c.Request.Context(), service.ResolveInput{
		Participants:  req.Participants,
		SubjectID:     req.SubjectID,
		SubjectName:   req.SubjectName,
		MetadataHints: req.MetadataHints,
		RequestedBy:   requestedBy,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ResolveResponse{ChatID: chat.ID, Created: created})
}

func (h *ChatHandler) Get(c *gin.Context) {
	chat, err := h.chatService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, chat)
}

// GetMessages возвращает историю в порядке доставки, в формате фрейма history
func (h *ChatHandler) GetMessages(c *gin.Context) {
	messages, err := h.chatService.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, domain.NewHistoryEvent(messages))
}

// Close - то же, что фрейм close_chat: удаление и рассылка chat_closed
func (h *ChatHandler) Close(c *gin.Context) {
	userUID := strings.TrimSpace(c.Query("userUid"))
	if userUID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userUid is required"})
		return
	}

	err := h.relay.CloseChat(c.Request.Context(), c.Param("id"), userUID, c.Query("fromName"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatusFromError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Chat request failed", "error", err, "path", c.FullPath())
		c.JSON(status, gin.H{"error": apperrors.ErrInternalServer.Error()})
		return
	}

	message := err.Error()
	if errors.Is(err, apperrors.ErrChatNotFound) {
		message = apperrors.ErrChatNotFound.Error()
	}
	c.JSON(status, gin.H{"error": message})
}
