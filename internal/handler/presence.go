package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"marketplace_chat/internal/service"
	apperrors "marketplace_chat/pkg/errors"
	"marketplace_chat/pkg/logger"
)

type PresenceHandler struct {
	presenceService service.PresenceService
	log             logger.Logger
}

func NewPresenceHandler(presenceService service.PresenceService, log logger.Logger) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
		log:             log,
	}
}

func (h *PresenceHandler) Get(c *gin.Context) {
	presence, err := h.presenceService.Get(c.Request.Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "presence not found"})
			return
		}
		h.log.Error("Failed to get presence", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": apperrors.ErrInternalServer.Error()})
		return
	}

	c.JSON(http.StatusOK, presence)
}
