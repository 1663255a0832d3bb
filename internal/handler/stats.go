package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"marketplace_chat/internal/relay"
	"marketplace_chat/internal/service"
	apperrors "marketplace_chat/pkg/errors"
	"marketplace_chat/pkg/logger"
)

type StatsHandler struct {
	statsService service.StatsService
	relay        *relay.Relay
	log          logger.Logger
}

func NewStatsHandler(statsService service.StatsService, relay *relay.Relay, log logger.Logger) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
		relay:        relay,
		log:          log,
	}
}

func (h *StatsHandler) GetChatStats(c *gin.Context) {
	chatID := c.Param("id")

	stats, err := h.statsService.GetChatStats(c.Request.Context(), chatID)
	if err != nil {
		status := apperrors.HTTPStatusFromError(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("Failed to get chat stats", "error", err, "chat_id", chatID)
			c.JSON(status, gin.H{"error": apperrors.ErrInternalServer.Error()})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	stats.LiveConnections = h.relay.Registry().CountInChat(chatID)
	c.JSON(http.StatusOK, stats)
}
